// Package config provides configuration for go-xrstream commands.
//
// Options are built in layers: DefaultOptions, then an optional YAML file,
// then an optional launch-options file (one line of command-line style flags,
// as dropped onto the headset by a provisioning tool), then environment
// overrides. The result is passed explicitly to the session controller.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMaxVideoBitrateKbps = 50000
	DefaultEyeHeight           = 1.7
	DefaultControllerTilt      = 0.45
	DefaultLatchTimeout        = 500 * time.Millisecond
	DefaultStatsInterval       = 100 * time.Millisecond
	DefaultBackgroundColor     = 0xFF000000 // opaque black
	DefaultDashboardPort       = "8090"
	DefaultAudioBackend        = "auto"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// ClientNetwork hints the server about the client's link type.
type ClientNetwork string

const (
	NetworkUnknown  ClientNetwork = "unknown"
	NetworkEthernet ClientNetwork = "ethernet"
	NetworkWiFi5    ClientNetwork = "wifi5"
	NetworkWiFi24   ClientNetwork = "wifi24"
	NetworkMobile5G ClientNetwork = "mobile5g"
	NetworkMobile4G ClientNetwork = "mobile4g"
)

// Topology hints the server about the network path between client and server.
type Topology string

const (
	TopologyUnknown Topology = "unknown"
	TopologyLocal   Topology = "local"
	TopologyLAN     Topology = "lan"
	TopologyWAN     Topology = "wan"
	TopologyWAN5G   Topology = "wan5g"
)

// Options holds everything the client reads once at session start.
type Options struct {
	// ServerAddress is the render host. Either host[:port] or
	// gce://project/zone/instance for a cloud-hosted server.
	ServerAddress string `yaml:"server"`

	// SignallingToken is sent as a bearer token to the signalling server.
	SignallingToken string `yaml:"signalling_token"`

	MaxVideoBitrateKbps uint32        `yaml:"max_video_bitrate_kbps"`
	ClientNetwork       ClientNetwork `yaml:"client_network"`
	Topology            Topology      `yaml:"topology"`
	DebugFlags          uint32        `yaml:"debug_flags"`

	// Foveation overrides the model default when in [1,99].
	Foveation int `yaml:"foveation"`

	// DeviceModel selects per-model defaults (e.g. foveation).
	DeviceModel string `yaml:"device_model"`

	EyeHeight      float32 `yaml:"eye_height"`
	ControllerTilt float32 `yaml:"controller_tilt"`

	LatchTimeout    time.Duration `yaml:"latch_timeout"`
	StatsInterval   time.Duration `yaml:"stats_interval"`
	BackgroundColor uint32        `yaml:"background_color"` // packed ARGB

	AudioBackend  string `yaml:"audio_backend"`
	DashboardPort string `yaml:"dashboard_port"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"` // text or json
}

// DefaultOptions returns the baseline configuration. ServerAddress is empty;
// starting a session without one fails.
func DefaultOptions() Options {
	return Options{
		MaxVideoBitrateKbps: DefaultMaxVideoBitrateKbps,
		ClientNetwork:       NetworkUnknown,
		Topology:            TopologyUnknown,
		EyeHeight:           DefaultEyeHeight,
		ControllerTilt:      DefaultControllerTilt,
		LatchTimeout:        DefaultLatchTimeout,
		StatsInterval:       DefaultStatsInterval,
		BackgroundColor:     DefaultBackgroundColor,
		AudioBackend:        DefaultAudioBackend,
		DashboardPort:       DefaultDashboardPort,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
	}
}

// FoveationOverride returns the configured foveation and whether it is a
// valid override.
func (o Options) FoveationOverride() (int, bool) {
	if o.Foveation > 0 && o.Foveation < 100 {
		return o.Foveation, true
	}
	return 0, false
}

// Validate checks ranges and enumerations. A missing server address is not
// a validation error; it is reported when a session is started.
func (o Options) Validate() error {
	switch o.ClientNetwork {
	case NetworkUnknown, NetworkEthernet, NetworkWiFi5, NetworkWiFi24, NetworkMobile5G, NetworkMobile4G:
	default:
		return fmt.Errorf("client_network %q is not recognized", o.ClientNetwork)
	}
	switch o.Topology {
	case TopologyUnknown, TopologyLocal, TopologyLAN, TopologyWAN, TopologyWAN5G:
	default:
		return fmt.Errorf("topology %q is not recognized", o.Topology)
	}
	if o.Foveation < 0 || o.Foveation > 100 {
		return fmt.Errorf("foveation must be in [0,100], got %d", o.Foveation)
	}
	if o.LatchTimeout <= 0 {
		return fmt.Errorf("latch_timeout must be positive, got %v", o.LatchTimeout)
	}
	if o.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive, got %v", o.StatsInterval)
	}
	if o.EyeHeight < 0 {
		return fmt.Errorf("eye_height must not be negative, got %v", o.EyeHeight)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if o.LogFormat != "text" && o.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", o.LogFormat)
	}
	return nil
}
