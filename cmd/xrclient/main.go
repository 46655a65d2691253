// xrclient is a headless streaming client. It connects to a render server,
// drives a synthetic head pose, composites the received eye images into
// offscreen targets and serves a status dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/internal/log"
	"github.com/teslashibe/go-xrstream/pkg/cloudhost"
	"github.com/teslashibe/go-xrstream/pkg/remote"
	"github.com/teslashibe/go-xrstream/pkg/session"
	"github.com/teslashibe/go-xrstream/pkg/stats"
	"github.com/teslashibe/go-xrstream/pkg/tracking"
	"github.com/teslashibe/go-xrstream/pkg/web"
)

type flags struct {
	configPath  string
	launchPath  string
	server      string
	logLevel    string
	logFormat   string
	width       int
	height      int
	ipd         float32
	dashboard   bool
	iceServers  []string
	syncConnect bool
}

func main() {
	f := parseFlags()

	opts, err := config.Load(f.configPath, f.launchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if f.server != "" {
		opts.ServerAddress = f.server
	}
	if f.logLevel != "" {
		opts.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		opts.LogFormat = f.logFormat
	}
	logger := log.Setup(opts.LogLevel, log.Format(opts.LogFormat))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, f, opts, logger); err != nil {
		logger.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags
	pflag.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	pflag.StringVar(&f.launchPath, "launch-options", "CloudXRLaunchOptions.txt", "launch options file")
	pflag.StringVarP(&f.server, "server", "s", "", "render server address or gce://project/zone/instance (overrides config)")
	pflag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pflag.StringVar(&f.logFormat, "log-format", "", "text or json (overrides config)")
	pflag.IntVar(&f.width, "width", 1832, "per-eye width")
	pflag.IntVar(&f.height, "height", 1920, "per-eye height")
	pflag.Float32Var(&f.ipd, "ipd", 0, "measured IPD in meters, 0 for the default")
	pflag.BoolVar(&f.dashboard, "dashboard", true, "serve the status dashboard")
	pflag.StringSliceVar(&f.iceServers, "ice-server", nil, "STUN/TURN server URL (repeatable)")
	pflag.BoolVar(&f.syncConnect, "sync-connect", false, "connect synchronously")
	pflag.Parse()
	return f
}

func run(ctx context.Context, f flags, opts config.Options, logger *slog.Logger) error {
	logger.Info("starting xrclient",
		"server", opts.ServerAddress,
		"bitrate_kbps", opts.MaxVideoBitrateKbps,
		"network", opts.ClientNetwork,
		"topology", opts.Topology,
	)

	bridge := tracking.NewBridge(tracking.Config{
		EyeHeight:      opts.EyeHeight,
		ControllerTilt: opts.ControllerTilt,
		IPD:            tracking.DefaultIPD,
	})
	if f.ipd > 0 {
		bridge.SetIPD(f.ipd)
	}

	svc := remote.NewService(remote.Config{ICEServers: f.iceServers}, logger)
	host := &headlessHost{width: f.width, height: f.height, ipd: f.ipd}

	ctlOpts := []session.Option{
		session.WithResolver(cloudhost.NewResolver(cloudhost.WithLogger(log.Component(logger, "cloudhost")))),
		session.WithHaptics(logHaptics{log.Component(logger, "haptics")}),
		session.WithLogger(logger),
	}
	if f.syncConnect {
		ctlOpts = append(ctlOpts, session.WithSynchronousConnect())
	}
	ctl := session.NewController(svc, opts, host, bridge, ctlOpts...)

	var dash *web.Server
	monitor := stats.NewMonitor(ctl,
		stats.WithInterval(opts.StatsInterval),
		stats.WithLogger(log.Component(logger, "stats")),
		stats.WithPublisher(stats.PublisherFunc(func(s stats.Sample) {
			if dash != nil {
				dash.PublishStats(s)
			}
		})),
	)
	if f.dashboard {
		dash = web.NewServer(opts.DashboardPort, opts.ServerAddress, ctl, monitor, logger)
	}

	r := newRenderer(ctl, bridge, host, opts, logger)
	defer r.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })
	g.Go(func() error { return r.Run(ctx) })
	if dash != nil {
		events, unsubscribe := ctl.Subscribe()
		defer unsubscribe()
		g.Go(func() error {
			dash.WatchSession(ctx, events)
			return nil
		})
		g.Go(func() error { return dash.Start(ctx) })
	}

	// the headless client has focus as soon as it starts
	ctl.SetPaused(false)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("xrclient stopped")
	return nil
}

// logHaptics stands in for controller vibration motors.
type logHaptics struct {
	logger *slog.Logger
}

func (h logHaptics) Vibrate(controller int, amplitude float32, duration time.Duration) {
	h.logger.Debug("vibrate", "controller", controller, "amplitude", amplitude, "duration", duration)
}
