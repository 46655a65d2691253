package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/pkg/audioio"
	"github.com/teslashibe/go-xrstream/pkg/codec"
	"github.com/teslashibe/go-xrstream/pkg/compositor"
	"github.com/teslashibe/go-xrstream/pkg/frame"
	"github.com/teslashibe/go-xrstream/pkg/session"
)

// maxOpusFrame is the largest Opus frame in samples per channel (120 ms at
// 48 kHz).
const maxOpusFrame = 5760

// Receiver is one WebRTC connection to a render server.
type Receiver struct {
	id     uuid.UUID
	cfg    Config
	desc   session.ReceiverDesc
	logger *slog.Logger
	mb     *mailbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	pc  *webrtc.PeerConnection
	sig *signalling

	// cbMu orders callbacks against Destroy.
	cbMu      sync.RWMutex
	destroyed bool

	async     atomic.Bool
	connected atomic.Bool
	ended     atomic.Bool
	upCh      chan struct{}
	failCh    chan error

	nextEye atomic.Int32
	seq     atomic.Uint64

	statsMu sync.Mutex
	prev    videoCounters

	rtpWarn  rate.Sometimes
	sendWarn rate.Sometimes
}

var (
	_ session.Receiver = (*Receiver)(nil)
	_ frame.Source     = (*Receiver)(nil)
)

func newReceiver(id uuid.UUID, cfg Config, desc session.ReceiverDesc, logger *slog.Logger) *Receiver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Receiver{
		id:       id,
		cfg:      cfg,
		desc:     desc,
		logger:   logger,
		mb:       newMailbox(),
		ctx:      ctx,
		cancel:   cancel,
		upCh:     make(chan struct{}),
		failCh:   make(chan error, 1),
		rtpWarn:  rate.Sometimes{First: 3, Interval: 5 * time.Second},
		sendWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// ID returns the receiver's id.
func (r *Receiver) ID() uuid.UUID {
	return r.id
}

// Connect negotiates a session with server. With conn.Async the attempt
// runs in the background and its outcome is reported through the
// callbacks; otherwise Connect waits until media flows or the attempt fails.
func (r *Receiver) Connect(ctx context.Context, server string, conn session.ConnectionDesc) error {
	r.mu.Lock()
	busy := r.sig != nil || r.pc != nil
	r.mu.Unlock()
	if busy {
		return errors.New("remote: already connecting")
	}
	r.async.Store(conn.Async)

	if conn.Async {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.connect(r.ctx, server, conn); err != nil {
				r.fail(err)
			}
		}()
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	if err := r.connect(waitCtx, server, conn); err != nil {
		r.ended.Store(true)
		return err
	}
	select {
	case <-r.upCh:
		return nil
	case err := <-r.failCh:
		return err
	case <-waitCtx.Done():
		r.ended.Store(true)
		return fmt.Errorf("waiting for media: %w", waitCtx.Err())
	}
}

func (r *Receiver) connect(ctx context.Context, server string, conn session.ConnectionDesc) error {
	tokens := r.cfg.TokenSource
	if conn.SignallingToken != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conn.SignallingToken, TokenType: "Bearer"})
	}

	url := config.SignallingURL(server)
	r.logger.Info("connecting to signalling server", "url", url)
	sig, err := dialSignalling(ctx, url, tokens, r.cfg.ConnectTimeout, r.logger)
	if err != nil {
		return err
	}
	if !r.attach(sig, nil) {
		sig.Close()
		return session.ErrClosed
	}

	producerID, err := sig.producer(r.cfg.ProducerName, r.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	r.logger.Debug("found producer", "producer", producerID)

	pc, err := r.newPeerConnection()
	if err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	if !r.attach(nil, pc) {
		pc.Close()
		return session.ErrClosed
	}

	if err := sig.startSession(producerID, sessionMeta(r.id, r.desc, conn)); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sig.run(r)
	}()
	return nil
}

// sessionMeta is the client's connection preferences sent with
// startSession.
func sessionMeta(id uuid.UUID, desc session.ReceiverDesc, conn session.ConnectionDesc) meta {
	return meta{
		"receiver":       id.String(),
		"width":          strconv.Itoa(desc.Device.Width),
		"height":         strconv.Itoa(desc.Device.Height),
		"fps":            strconv.FormatFloat(float64(desc.Device.FPS), 'f', -1, 32),
		"ipd":            strconv.FormatFloat(float64(desc.Device.IPD), 'f', -1, 32),
		"foveation":      strconv.Itoa(desc.Device.Foveation),
		"streams":        strconv.Itoa(desc.NumStreams),
		"maxBitrateKbps": strconv.FormatUint(uint64(conn.MaxVideoBitrateKbps), 10),
		"clientNetwork":  string(conn.ClientNetwork),
		"topology":       string(conn.Topology),
	}
}

func (r *Receiver) newPeerConnection() (*webrtc.PeerConnection, error) {
	var ice []webrtc.ICEServer
	if len(r.cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: r.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return nil, err
	}

	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	for i := 0; i < r.desc.NumStreams; i++ {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
			pc.Close()
			return nil, err
		}
	}
	if r.desc.Device.ReceiveAudio {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
			pc.Close()
			return nil, err
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		r.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			eye := int(r.nextEye.Add(1) - 1)
			if eye >= frame.NumEyes {
				r.logger.Warn("ignoring extra video track", "index", eye)
				return
			}
			r.spawn(func() { r.readVideo(track, eye) })
		case webrtc.RTPCodecTypeAudio:
			r.spawn(func() { r.readAudio(track) })
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if sig := r.signaller(); sig != nil {
			if err := sig.sendICE(c.ToJSON()); err != nil {
				r.logger.Debug("send ICE candidate failed", "error", err)
			}
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.logger.Info("connection state", "state", state.String())
		if s, reason, ok := mapPeerState(state, r.connected.Load()); ok {
			r.report(s, reason)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != r.cfg.DataChannel {
			return
		}
		dc.OnOpen(func() {
			r.spawn(func() { r.sendTracking(dc) })
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			r.handleData(msg.Data)
		})
	})

	return pc, nil
}

// spawn runs fn unless the receiver is being destroyed.
func (r *Receiver) spawn(fn func()) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	if r.destroyed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// attach stores the connection parts unless the receiver was destroyed.
func (r *Receiver) attach(sig *signalling, pc *webrtc.PeerConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return false
	}
	if sig != nil {
		r.sig = sig
	}
	if pc != nil {
		r.pc = pc
	}
	return true
}

func (r *Receiver) signaller() *signalling {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sig
}

func (r *Receiver) peer() *webrtc.PeerConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pc
}

// mapPeerState turns a peer connection state into a session state.
// Transient states report nothing.
func mapPeerState(state webrtc.PeerConnectionState, wasConnected bool) (session.State, session.StateReason, bool) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		return session.StateStreamingSessionInProgress, session.ReasonNone, true
	case webrtc.PeerConnectionStateFailed:
		if wasConnected {
			return session.StateDisconnected, session.ReasonNetworkError, true
		}
		return session.StateConnectionAttemptFailed, session.ReasonNetworkError, true
	case webrtc.PeerConnectionStateClosed:
		if wasConnected {
			return session.StateDisconnected, session.ReasonServerDisconnected, true
		}
		return session.StateConnectionAttemptFailed, session.ReasonServerDisconnected, true
	default:
		return 0, 0, false
	}
}

// failReason classifies a connect error.
func failReason(err error) session.StateReason {
	switch {
	case errors.Is(err, errUnauthorized):
		return session.ReasonAuthorizationFailed
	case errors.Is(err, context.DeadlineExceeded):
		return session.ReasonTimeout
	default:
		return session.ReasonNetworkError
	}
}

func (r *Receiver) fail(err error) {
	r.logger.Error("connect failed", "error", err)
	r.report(session.StateConnectionAttemptFailed, failReason(err))
}

// report forwards a state change once. Streaming is reported on the first
// connect only and the terminal states once per receiver. An end before
// streaming is always a failed attempt. A synchronous connect reports its
// own outcome through Connect's return.
func (r *Receiver) report(state session.State, reason session.StateReason) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	if r.destroyed {
		return
	}

	switch state {
	case session.StateStreamingSessionInProgress:
		if r.ended.Load() || !r.connected.CompareAndSwap(false, true) {
			return
		}
		close(r.upCh)
		if !r.async.Load() {
			return
		}
	case session.StateConnectionAttemptFailed, session.StateDisconnected:
		if !r.ended.CompareAndSwap(false, true) {
			return
		}
		if !r.connected.Load() {
			state = session.StateConnectionAttemptFailed
			select {
			case r.failCh <- fmt.Errorf("remote: %s (%s)", state, reason):
			default:
			}
			if !r.async.Load() {
				return
			}
		}
	}
	r.desc.Callbacks.UpdateClientState(state, reason)
}

// onOffer answers the server's offer.
func (r *Receiver) onOffer(offer webrtc.SessionDescription) {
	pc, sig := r.peer(), r.signaller()
	if pc == nil || sig == nil {
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		r.fail(fmt.Errorf("set remote description: %w", err))
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		r.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		r.fail(fmt.Errorf("set local description: %w", err))
		return
	}
	if err := sig.sendSDP(answer); err != nil {
		r.fail(fmt.Errorf("send answer: %w", err))
	}
}

func (r *Receiver) onCandidate(c webrtc.ICECandidateInit) {
	if pc := r.peer(); pc != nil {
		if err := pc.AddICECandidate(c); err != nil {
			r.logger.Debug("add ICE candidate failed", "error", err)
		}
	}
}

func (r *Receiver) onSessionEnded(reason string) {
	if r.ctx.Err() != nil {
		return
	}
	r.logger.Info("signalling session ended", "reason", reason)
	if r.connected.Load() {
		r.report(session.StateDisconnected, session.ReasonServerDisconnected)
		return
	}
	r.report(session.StateConnectionAttemptFailed, session.ReasonServerDisconnected)
}

// decoderFailed ends the session when an eye's decoder cannot run. A
// session that never connected fails its attempt instead.
func (r *Receiver) decoderFailed(eye int, err error) {
	if !r.connected.Load() {
		r.fail(fmt.Errorf("video decoder for eye %d: %w", eye, err))
		return
	}
	r.logger.Error("video decoder failed", "eye", eye, "error", err)
	r.report(session.StateDisconnected, session.ReasonUnknown)
}

func (r *Receiver) readVideo(track *webrtc.TrackRemote, eye int) {
	hardware := r.desc.DebugFlags&session.DebugHardwareDecoder != 0
	dec, err := newDecoder(r.cfg.Decoder, hardware, func(img *compositor.Image, ts uint64, at time.Time) {
		r.mb.put(eye, img, ts, at)
	}, r.logger.With("eye", eye))
	if err != nil {
		r.decoderFailed(eye, err)
		return
	}
	defer dec.Close()

	var dp depacketizer
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		au, ok, err := dp.push(pkt)
		if err != nil {
			r.rtpWarn.Do(func() {
				r.logger.Warn("bad video packet", "eye", eye, "error", err)
			})
			continue
		}
		if !ok {
			continue
		}
		if err := dec.Write(au); err != nil {
			r.logger.Warn("video decoder write failed", "eye", eye, "error", err)
			return
		}
	}
}

func (r *Receiver) readAudio(track *webrtc.TrackRemote) {
	channels := audioio.StreamChannels
	dec, err := opus.NewDecoder(audioio.StreamRate, channels)
	if err != nil {
		r.logger.Error("opus decoder failed", "error", err)
		return
	}
	pcm := make([]int16, maxOpusFrame*channels)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			r.rtpWarn.Do(func() {
				r.logger.Warn("opus decode failed", "error", err, "payload", len(pkt.Payload))
			})
			continue
		}
		r.renderAudio(audioio.Encode16(pcm[:n*channels]))
	}
}

func (r *Receiver) renderAudio(pcm []byte) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	if !r.destroyed {
		r.desc.Callbacks.RenderAudio(pcm)
	}
}

// sendTracking pushes the tracking state upstream once per display frame.
func (r *Receiver) sendTracking(dc *webrtc.DataChannel) {
	fps := r.desc.Device.FPS
	if fps <= 0 {
		fps = session.TargetFPS
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(fps)))
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			data, err := r.trackingMessage(now)
			if err != nil {
				r.logger.Error("encode tracking failed", "error", err)
				continue
			}
			if err := dc.Send(data); err != nil {
				if dc.ReadyState() == webrtc.DataChannelStateClosed {
					return
				}
				r.sendWarn.Do(func() {
					r.logger.Warn("send tracking failed", "error", err)
				})
			}
		}
	}
}

func (r *Receiver) trackingMessage(now time.Time) ([]byte, error) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	if r.destroyed {
		return nil, session.ErrClosed
	}
	snap := r.desc.Callbacks.TrackingState()
	return codec.EncodeTracking(r.seq.Add(1), now.UnixMicro(), snap)
}

// handleData processes one control message from the server.
func (r *Receiver) handleData(data []byte) {
	env, err := codec.Decode(data)
	if err != nil {
		r.logger.Warn("bad control message", "error", err)
		return
	}

	switch env.Type {
	case codec.TypeHaptic:
		var h codec.Haptic
		if err := env.Into(codec.TypeHaptic, &h); err != nil {
			r.logger.Warn("bad haptic message", "error", err)
			return
		}
		r.cbMu.RLock()
		if !r.destroyed {
			r.desc.Callbacks.TriggerHaptic(h.Controller, h.Amplitude, h.Seconds)
		}
		r.cbMu.RUnlock()

	case codec.TypeFrameMeta:
		var m codec.FrameMeta
		if err := env.Into(codec.TypeFrameMeta, &m); err != nil {
			r.logger.Warn("bad frame metadata", "error", err)
			return
		}
		r.mb.putMeta(m)

	default:
		r.logger.Debug("ignoring control message", "type", env.Type.String())
	}
}

// LatchFrame waits up to timeout for the next stereo pair.
func (r *Receiver) LatchFrame(timeout time.Duration) (*frame.Latched, error) {
	return r.mb.latch(timeout)
}

// ReleaseFrame returns a latched pair.
func (r *Receiver) ReleaseFrame(l *frame.Latched) {
	r.mb.release(l)
}

// ConnectionStats reports transport counters and frame timings.
func (r *Receiver) ConnectionStats() (session.ConnectionStats, error) {
	pc := r.peer()
	if pc == nil || !r.connected.Load() {
		return session.ConnectionStats{}, session.ErrNotStreaming
	}
	report := pc.GetStats()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	cs, cur := statsFromReport(report, r.mb.counters(), time.Now(), r.prev)
	r.prev = cur
	return cs, nil
}

// Destroy tears the connection down. No callbacks run after it returns.
func (r *Receiver) Destroy() {
	r.cbMu.Lock()
	if r.destroyed {
		r.cbMu.Unlock()
		return
	}
	r.destroyed = true
	r.cbMu.Unlock()

	r.cancel()

	r.mu.Lock()
	sig, pc := r.sig, r.pc
	r.mu.Unlock()
	if sig != nil {
		sig.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			r.logger.Warn("close peer connection failed", "error", err)
		}
	}

	r.wg.Wait()
	r.mb.close()
	r.logger.Info("receiver destroyed")
}
