package remote

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/teslashibe/go-xrstream/pkg/codec"
	"github.com/teslashibe/go-xrstream/pkg/frame"
	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// maxMetas bounds the pose metadata kept while waiting for frames.
const maxMetas = 128

var errAlreadyLatched = errors.New("remote: frame already latched")

type eyeFrame struct {
	img       frame.Image
	ts        uint64
	decodedAt time.Time
}

type entry struct {
	latched   frame.Latched
	pairedAt  time.Time
	decodedAt time.Time
}

// mailbox pairs decoded eye images by timestamp and hands out the newest
// complete pair. Older pairs that were never latched are dropped.
type mailbox struct {
	mu      sync.Mutex
	ready   chan struct{}
	done    chan struct{}
	closed  bool
	eyes    [frame.NumEyes]*eyeFrame
	pending *entry
	latched *entry

	metas     map[uint64]codec.FrameMeta
	metaOrder []uint64

	pairs     uint64
	dropped   uint64
	delivery  ewma
	queue     ewma
	latchWait ewma
}

func newMailbox() *mailbox {
	return &mailbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
		metas: make(map[uint64]codec.FrameMeta),
	}
}

// putMeta records the pose a server frame was rendered with.
func (m *mailbox) putMeta(meta codec.FrameMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.metas[meta.TimestampUs]; !ok {
		m.metaOrder = append(m.metaOrder, meta.TimestampUs)
	}
	m.metas[meta.TimestampUs] = meta
	for len(m.metaOrder) > maxMetas {
		delete(m.metas, m.metaOrder[0])
		m.metaOrder = m.metaOrder[1:]
	}
}

// put stores a decoded eye image. The mailbox takes ownership of img.
func (m *mailbox) put(eye int, img frame.Image, ts uint64, submittedAt time.Time) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || eye < 0 || eye >= frame.NumEyes {
		closeImage(img)
		return
	}
	if !submittedAt.IsZero() {
		m.delivery.add(now.Sub(submittedAt))
	}
	if old := m.eyes[eye]; old != nil {
		closeImage(old.img)
		m.dropped++
	}
	m.eyes[eye] = &eyeFrame{img: img, ts: ts, decodedAt: now}

	left, right := m.eyes[0], m.eyes[1]
	if left == nil || right == nil {
		return
	}
	if left.ts != right.ts {
		// Keep the newer eye and wait for its partner.
		older := 0
		if right.ts < left.ts {
			older = 1
		}
		closeImage(m.eyes[older].img)
		m.eyes[older] = nil
		m.dropped++
		return
	}

	e := &entry{pairedAt: now, decodedAt: left.decodedAt}
	e.latched.Frames[0] = frame.VideoFrame{Image: left.img, TimestampUs: ts}
	e.latched.Frames[1] = frame.VideoFrame{Image: right.img, TimestampUs: ts}
	e.latched.PoseMatrix = xrmath.Identity().Matrix34()
	if meta, ok := m.metas[ts]; ok {
		e.latched.PoseID = meta.PoseID
		e.latched.PoseMatrix = meta.Pose
	}
	m.eyes = [frame.NumEyes]*eyeFrame{}

	if m.pending != nil {
		m.closeEntry(m.pending)
		m.dropped++
	}
	m.pending = e
	m.pairs++

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// latch waits up to timeout for a pending pair.
func (m *mailbox) latch(timeout time.Duration) (*frame.Latched, error) {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, frame.ErrFrameNotReady
		}
		if m.latched != nil {
			m.mu.Unlock()
			return nil, errAlreadyLatched
		}
		if e := m.pending; e != nil {
			m.pending = nil
			m.latched = e
			now := time.Now()
			m.queue.add(now.Sub(e.pairedAt))
			m.latchWait.add(now.Sub(start))
			m.mu.Unlock()
			return &e.latched, nil
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-m.done:
		case <-timer.C:
			return nil, frame.ErrFrameNotReady
		}
	}
}

// release returns the latched pair. Unknown or repeated releases are ignored.
func (m *mailbox) release(l *frame.Latched) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latched == nil || &m.latched.latched != l {
		return
	}
	m.closeEntry(m.latched)
	m.latched = nil
}

// close frees every image not currently latched and wakes waiters. The
// latched pair, if any, is freed when released.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
	for i, e := range m.eyes {
		if e != nil {
			closeImage(e.img)
			m.eyes[i] = nil
		}
	}
	if m.pending != nil {
		m.closeEntry(m.pending)
		m.pending = nil
	}
}

type mailboxCounters struct {
	pairs, dropped               uint64
	deliveryMs, queueMs, latchMs float32
}

func (m *mailbox) counters() mailboxCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mailboxCounters{
		pairs:      m.pairs,
		dropped:    m.dropped,
		deliveryMs: m.delivery.ms(),
		queueMs:    m.queue.ms(),
		latchMs:    m.latchWait.ms(),
	}
}

func (m *mailbox) closeEntry(e *entry) {
	for _, f := range e.latched.Frames {
		closeImage(f.Image)
	}
}

func closeImage(img frame.Image) {
	if c, ok := img.(io.Closer); ok {
		c.Close()
	}
}

// ewma is an exponentially weighted moving average of durations.
type ewma struct {
	avg float64
	set bool
}

const ewmaWeight = 0.1

func (e *ewma) add(d time.Duration) {
	x := float64(d) / float64(time.Millisecond)
	if !e.set {
		e.avg, e.set = x, true
		return
	}
	e.avg += (x - e.avg) * ewmaWeight
}

func (e *ewma) ms() float32 {
	return float32(e.avg)
}
