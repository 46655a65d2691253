package audioio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// New creates a sink for cfg. BackendAuto picks the first entry of
// Backends.
func New(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = Backends()[0]
	}
	logger = logger.With("backend", backend)

	switch backend {
	case BackendMock:
		return NewRecorder(cfg.Format, logger), nil
	case BackendALSA, BackendFFplay:
		return newProcessSink(cfg, backend, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", backend)
	}
}

// Backends lists the backends usable on this machine, best first. The mock
// backend is always last.
func Backends() []Backend {
	var out []Backend
	if runtime.GOOS == "linux" && onPath("aplay") {
		out = append(out, BackendALSA)
	}
	if onPath("ffplay") {
		out = append(out, BackendFFplay)
	}
	return append(out, BackendMock)
}

func onPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
