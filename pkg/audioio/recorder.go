package audioio

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder is a Sink that keeps everything played in memory. It backs the
// mock backend.
type Recorder struct {
	format Format
	logger *slog.Logger
	fail   error

	mu     sync.Mutex
	open   bool
	closed bool
	opens  int
	data   []byte
	n      Counters
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// FailPlay makes every Play return err.
func FailPlay(err error) RecorderOption {
	return func(r *Recorder) { r.fail = err }
}

// NewRecorder creates a Recorder for format.
func NewRecorder(format Format, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{format: format, logger: logger}
	r.n.Backend = BackendMock
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrNotOpen
	}
	r.open = true
	r.opens++
	r.logger.Debug("recorder opened", "rate", r.format.Rate, "channels", r.format.Channels)
	return nil
}

func (r *Recorder) Play(ctx context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.open:
		r.n.Rejected++
		return ErrNotOpen
	case r.format.Align(len(pcm)) != len(pcm):
		r.n.Rejected++
		return ErrMisaligned
	case r.fail != nil:
		r.n.Rejected++
		return r.fail
	}
	if err := ctx.Err(); err != nil {
		r.n.Rejected++
		return err
	}

	r.data = append(r.data, pcm...)
	r.n.Played++
	r.n.PlayedBytes += int64(len(pcm))
	return nil
}

// Discard forgets everything recorded so far.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) > 0 {
		r.n.Rejected++
	}
	r.data = r.data[:0]
}

func (r *Recorder) Format() Format   { return r.format }
func (r *Recorder) Backend() Backend { return BackendMock }

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.closed = true
	return nil
}

// Bytes returns a copy of the recorded PCM.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

// Samples returns the recorded PCM as samples.
func (r *Recorder) Samples() []int16 {
	return Decode16(r.Bytes())
}

// Opens returns how many times Open succeeded.
func (r *Recorder) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func (r *Recorder) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.n
	n.Open = r.open
	n.QueuedBytes = int64(len(r.data))
	return n
}

var _ Counted = (*Recorder)(nil)
