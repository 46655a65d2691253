package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// processSink feeds a player process over stdin. A writer goroutine drains
// a bounded queue so Play never waits on the device itself.
type processSink struct {
	cfg     Config
	backend Backend
	argv    []string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	queue  chan []byte
	done   chan struct{}

	played      atomic.Int64
	playedBytes atomic.Int64
	rejected    atomic.Int64
	queued      atomic.Int64
}

func newProcessSink(cfg Config, backend Backend, logger *slog.Logger) (*processSink, error) {
	argv, err := playerArgs(cfg, backend)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("audioio: %s: %w", backend, err)
	}
	return &processSink{cfg: cfg, backend: backend, argv: argv, logger: logger}, nil
}

// playerArgs returns a command line that plays raw PCM16 from stdin.
func playerArgs(cfg Config, backend Backend) ([]string, error) {
	rate := strconv.Itoa(cfg.Format.Rate)
	channels := strconv.Itoa(cfg.Format.Channels)

	switch backend {
	case BackendALSA:
		argv := []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels}
		if cfg.Device != "" {
			argv = append(argv, "-D", cfg.Device)
		}
		return append(argv, "-"), nil
	case BackendFFplay:
		return []string{"ffplay",
			"-nodisp",
			"-loglevel", "error",
			"-fflags", "nobuffer",
			"-f", "s16le",
			"-ar", rate,
			"-ac", channels,
			"-i", "pipe:0",
		}, nil
	default:
		return nil, fmt.Errorf("audioio: no player for backend %q", backend)
	}
}

// depth is the queue length in buffers, assuming the server's 10ms packets.
func (s *processSink) depth() int {
	return max(int(s.cfg.Latency/(10*time.Millisecond)), 4)
}

func (s *processSink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotOpen
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audioio: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioio: start %s: %w", s.argv[0], err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.queue = make(chan []byte, s.depth())
	s.done = make(chan struct{})
	go s.feed(s.queue, s.done, stdin)

	s.logger.Info("playback started", "pid", cmd.Process.Pid, "rate", s.cfg.Format.Rate, "channels", s.cfg.Format.Channels)
	return nil
}

func (s *processSink) feed(queue <-chan []byte, done chan<- struct{}, w io.Writer) {
	defer close(done)
	for pcm := range queue {
		s.queued.Add(-int64(len(pcm)))
		if _, err := w.Write(pcm); err != nil {
			s.logger.Error("playback write failed", "error", err)
			for rest := range queue {
				s.queued.Add(-int64(len(rest)))
				s.rejected.Add(1)
			}
			return
		}
	}
}

func (s *processSink) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		s.rejected.Add(1)
		return ErrNotOpen
	}
	if s.cfg.Format.Align(len(pcm)) != len(pcm) {
		s.rejected.Add(1)
		return ErrMisaligned
	}

	// the caller may reuse pcm
	buf := append([]byte(nil), pcm...)
	select {
	case s.queue <- buf:
		s.queued.Add(int64(len(buf)))
		s.played.Add(1)
		s.playedBytes.Add(int64(len(buf)))
		return nil
	case <-ctx.Done():
		s.rejected.Add(1)
		return ctx.Err()
	}
}

func (s *processSink) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return
	}
	for {
		select {
		case pcm := <-s.queue:
			s.queued.Add(-int64(len(pcm)))
			s.rejected.Add(1)
		default:
			return
		}
	}
}

func (s *processSink) Format() Format   { return s.cfg.Format }
func (s *processSink) Backend() Backend { return s.backend }

// Close ends the player's input and waits briefly for it to exit.
func (s *processSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd, stdin, queue, done := s.cmd, s.stdin, s.queue, s.done
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	close(queue)
	<-done
	stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case <-exited:
	case <-time.After(500 * time.Millisecond):
		cmd.Process.Kill()
		<-exited
	}
	s.logger.Info("playback stopped")
	return nil
}

func (s *processSink) Counters() Counters {
	s.mu.Lock()
	open := s.cmd != nil
	s.mu.Unlock()
	return Counters{
		Backend:     s.backend,
		Open:        open,
		Played:      s.played.Load(),
		PlayedBytes: s.playedBytes.Load(),
		Rejected:    s.rejected.Load(),
		QueuedBytes: s.queued.Load(),
	}
}

var _ Counted = (*processSink)(nil)
