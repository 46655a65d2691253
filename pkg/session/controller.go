package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/pkg/audioio"
	"github.com/teslashibe/go-xrstream/pkg/frame"
	"github.com/teslashibe/go-xrstream/pkg/tracking"
)

// PollInterval is the pause watcher's safety-net tick.
const PollInterval = 100 * time.Millisecond

// active is the receiver of the current session and what it plays into.
type active struct {
	receiver Receiver
	sink     audioio.Sink
	gen      uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithSynchronousConnect makes Start wait for the connection outcome.
func WithSynchronousConnect() Option {
	return func(c *Controller) {
		c.async = false
	}
}

// WithResolver resolves the configured server reference before connecting.
func WithResolver(r Resolver) Option {
	return func(c *Controller) {
		c.resolver = r
	}
}

// WithHaptics sets the haptic actuator.
func WithHaptics(h HapticActuator) Option {
	return func(c *Controller) {
		c.haptics = h
	}
}

// WithSinkFactory sets how audio output is opened.
func WithSinkFactory(f SinkFactory) Option {
	return func(c *Controller) {
		c.newSink = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller is the session lifecycle state machine. Start and Stop are
// serialized; State, ActiveSource and the callbacks are safe from any
// goroutine.
type Controller struct {
	svc      Service
	opts     config.Options
	host     Host
	bridge   *tracking.Bridge
	haptics  HapticActuator
	newSink  SinkFactory
	resolver Resolver
	async    bool
	logger   *slog.Logger

	mu      sync.Mutex // serializes Start and Stop
	stateMu sync.Mutex // pairs the generation check with the state store
	state   atomic.Int32
	current atomic.Pointer[active]
	gen     atomic.Uint64

	paused    atomic.Bool
	wasPaused bool // owned by the watcher
	wake      chan struct{}

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewController creates a Controller in StateReadyToConnect and paused. The
// session starts once SetPaused(false) is observed by Run.
func NewController(svc Service, opts config.Options, host Host, bridge *tracking.Bridge, options ...Option) *Controller {
	c := &Controller{
		svc:       svc,
		opts:      opts,
		host:      host,
		bridge:    bridge,
		async:     true,
		logger:    slog.Default(),
		wasPaused: true,
		wake:      make(chan struct{}, 1),
		subs:      make(map[int]chan Event),
	}
	c.newSink = func(cfg audioio.Config) (audioio.Sink, error) {
		return audioio.New(cfg, c.logger)
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With("component", "session")
	c.paused.Store(true)
	c.state.Store(int32(StateReadyToConnect))
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Paused reports the requested pause state.
func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// SetPaused records the desired pause state and wakes the watcher.
func (c *Controller) SetPaused(paused bool) {
	c.logger.Info("set paused", "paused", paused)
	c.paused.Store(paused)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run watches the pause state until ctx is done, starting the session on
// resume from StateReadyToConnect and stopping it on pause. The session is
// stopped when Run returns.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	defer c.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		case <-ticker.C:
		}
		c.reconcile(ctx)
	}
}

func (c *Controller) reconcile(ctx context.Context) {
	paused := c.paused.Load()
	if paused == c.wasPaused {
		return
	}
	c.wasPaused = paused

	switch {
	case !paused && c.State() == StateReadyToConnect:
		if err := c.Start(ctx); err != nil {
			c.logger.Error("start failed", "error", err)
		}
	case paused:
		c.Stop()
	}
}

// Start creates a receiver and begins connecting to the configured server.
// It is a no-op while a receiver exists. With an asynchronous connect it
// returns once the attempt is under way; the outcome arrives through the
// receiver's state callback.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != nil {
		c.logger.Debug("start ignored, receiver exists")
		return nil
	}

	server := c.opts.ServerAddress
	if server == "" {
		c.logger.Error("no server address specified")
		return ErrNoServerAddress
	}
	if c.resolver != nil {
		addr, err := c.resolver.Resolve(ctx, server)
		if err != nil {
			return fmt.Errorf("resolve server %q: %w", server, err)
		}
		server = addr
	}

	desc := BuildDeviceDesc(c.opts, c.host)
	c.bridge.SetIPD(desc.IPD)
	c.logger.Info("device description",
		"width", desc.Width,
		"height", desc.Height,
		"fps", desc.FPS,
		"ipd", desc.IPD,
		"foveation", desc.Foveation,
		"play_area", fmt.Sprintf("%.2f x %.2f", desc.Chaperone.PlayArea[0], desc.Chaperone.PlayArea[1]),
	)

	var sink audioio.Sink
	if desc.ReceiveAudio {
		s, err := c.openSink(ctx)
		if err != nil {
			return err
		}
		sink = s
	}

	gen := c.gen.Add(1)
	c.logger.Info("creating receiver", "server", server)
	receiver, err := c.svc.CreateReceiver(ctx, ReceiverDesc{
		Device:       desc,
		Callbacks:    &callbacks{c: c, gen: gen},
		ShareContext: c.host.GraphicsContext(),
		NumStreams:   DefaultNumStreams,
		DebugFlags:   EffectiveDebugFlags(c.opts.DebugFlags),
	})
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		c.logger.Error("failed to create receiver", "error", err)
		return fmt.Errorf("create receiver: %w", err)
	}
	c.current.Store(&active{receiver: receiver, sink: sink, gen: gen})
	c.transition(gen, StateConnectionAttemptInProgress, ReasonNone)

	conn := ConnectionDesc{
		Async:               c.async,
		MaxVideoBitrateKbps: c.opts.MaxVideoBitrateKbps,
		ClientNetwork:       c.opts.ClientNetwork,
		Topology:            c.opts.Topology,
		SignallingToken:     c.opts.SignallingToken,
	}
	err = receiver.Connect(ctx, server, conn)
	if c.async {
		if err != nil {
			// the receiver reports the failure through its state callback
			c.logger.Warn("async connect returned error", "server", server, "error", err)
		}
		return nil
	}
	if err != nil {
		c.logger.Error("failed to connect", "server", server, "error", err)
		c.teardown()
		return fmt.Errorf("connect %s: %w", server, err)
	}
	c.transition(gen, StateStreamingSessionInProgress, ReasonNone)
	c.logger.Info("receiver connected", "server", server)
	return nil
}

func (c *Controller) openSink(ctx context.Context) (audioio.Sink, error) {
	cfg := audioio.DefaultConfig()
	if c.opts.AudioBackend != "" {
		cfg.Backend = audioio.Backend(c.opts.AudioBackend)
	}
	sink, err := c.newSink(cfg)
	if err != nil {
		c.logger.Error("failed to open playback stream", "error", err)
		return nil, fmt.Errorf("open audio: %w", err)
	}
	if err := sink.Open(ctx); err != nil {
		sink.Close()
		c.logger.Error("failed to start playback stream", "error", err)
		return nil, fmt.Errorf("start audio: %w", err)
	}
	return sink, nil
}

// Stop tears the session down and returns to StateReadyToConnect. It is a
// no-op when already there with no receiver.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
}

// teardown requires c.mu.
func (c *Controller) teardown() {
	if c.State() == StateReadyToConnect && c.current.Load() == nil {
		return
	}
	c.logger.Info("tearing down receiver")

	// callbacks from the old receiver are ignored from here on
	c.stateMu.Lock()
	gen := c.gen.Add(1)
	cur := c.current.Swap(nil)
	c.stateMu.Unlock()
	c.transition(gen, StateReadyToConnect, ReasonClientRequested)

	if cur == nil {
		return
	}
	if cur.sink != nil {
		if err := cur.sink.Close(); err != nil {
			c.logger.Warn("audio close failed", "error", err)
		}
	}
	cur.receiver.Destroy()
}

// ActiveSource returns the receiver while streaming.
func (c *Controller) ActiveSource() (frame.Source, bool) {
	if c.State() != StateStreamingSessionInProgress {
		return nil, false
	}
	cur := c.current.Load()
	if cur == nil {
		return nil, false
	}
	return cur.receiver, true
}

// ConnectionStats returns the live receiver's counters while streaming.
func (c *Controller) ConnectionStats() (ConnectionStats, error) {
	if c.State() != StateStreamingSessionInProgress {
		return ConnectionStats{}, ErrNotStreaming
	}
	cur := c.current.Load()
	if cur == nil {
		return ConnectionStats{}, ErrNotStreaming
	}
	return cur.receiver.ConnectionStats()
}

// Subscribe returns a channel of state transitions and a cancel func. Events
// are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// transition stores s unless gen is no longer the current generation.
// Events go out under the same lock so subscribers see them in store order.
func (c *Controller) transition(gen uint64, s State, reason StateReason) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	c.state.Store(int32(s))

	logStateChange(c.logger, s, reason)
	c.publish(s, reason)
	return true
}

// publish requires c.stateMu.
func (c *Controller) publish(s State, reason StateReason) {
	ev := Event{State: s, Reason: reason, At: time.Now()}
	c.subMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	c.subMu.Unlock()
}

func logStateChange(logger *slog.Logger, s State, reason StateReason) {
	switch s {
	case StateReadyToConnect:
		logger.Info("ready to connect", "reason", reason)
	case StateConnectionAttemptInProgress:
		logger.Info("connection attempt in progress")
	case StateConnectionAttemptFailed:
		logger.Error("connection attempt failed", "reason", reason)
	case StateStreamingSessionInProgress:
		logger.Info("streaming session in progress")
	case StateDisconnected:
		logger.Error("server disconnected", "reason", reason)
	default:
		logger.Error("client state updated", "state", s, "reason", reason)
	}
}

// callbacks binds a receiver to the controller for one session generation.
type callbacks struct {
	c   *Controller
	gen uint64
}

func (cb *callbacks) live() (*active, bool) {
	cur := cb.c.current.Load()
	if cur == nil || cur.gen != cb.gen {
		return nil, false
	}
	return cur, true
}

func (cb *callbacks) TrackingState() tracking.Snapshot {
	return cb.c.bridge.Snapshot()
}

func (cb *callbacks) TriggerHaptic(controller int, amplitude, seconds float32) {
	if seconds <= 0 || cb.c.haptics == nil {
		return
	}
	d := time.Duration(float64(seconds) * float64(time.Second))
	cb.c.haptics.Vibrate(controller, amplitude, d)
}

func (cb *callbacks) RenderAudio(pcm []byte) bool {
	cur, ok := cb.live()
	if !ok || cur.sink == nil {
		return false
	}

	timeout := max(cur.sink.Format().Duration(len(pcm)), time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cur.sink.Play(ctx, pcm); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			cb.c.logger.Warn("audio write failed", "error", err)
		}
		return false
	}
	return true
}

func (cb *callbacks) UpdateClientState(state State, reason StateReason) {
	if !cb.c.transition(cb.gen, state, reason) {
		cb.c.logger.Debug("state from stale receiver ignored", "state", state, "reason", reason)
	}
}

var _ frame.SourceProvider = (*Controller)(nil)
