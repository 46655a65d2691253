// Package remote connects to a render server over WebRTC. Eye video arrives
// as H264 tracks decoded by ffmpeg into OpenCV images, server audio as Opus,
// and tracking goes upstream on a data channel. Session negotiation runs
// over a websocket signaller.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teslashibe/go-xrstream/pkg/session"
)

var errUnauthorized = errors.New("remote: signalling unauthorized")

// Defaults for Config.
const (
	DefaultProducerName   = "xrstream"
	DefaultConnectTimeout = 15 * time.Second
	DefaultDecoder        = "ffmpeg"
	DefaultDataChannel    = "xr"
)

// Config configures the service.
type Config struct {
	// ProducerName selects the server's producer by its advertised name.
	ProducerName string

	// ConnectTimeout bounds signalling reads and a synchronous connect.
	ConnectTimeout time.Duration

	// ICEServers are STUN/TURN URLs.
	ICEServers []string

	// TokenSource authorizes signalling when the connection carries no
	// token of its own.
	TokenSource oauth2.TokenSource

	// Decoder is the ffmpeg binary.
	Decoder string

	// DataChannel is the label of the tracking and control channel.
	DataChannel string
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		ProducerName:   DefaultProducerName,
		ConnectTimeout: DefaultConnectTimeout,
		Decoder:        DefaultDecoder,
		DataChannel:    DefaultDataChannel,
	}
}

// Service creates WebRTC receivers.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

var _ session.Service = (*Service)(nil)

// NewService creates a Service.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ProducerName == "" {
		cfg.ProducerName = def.ProducerName
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Decoder == "" {
		cfg.Decoder = def.Decoder
	}
	if cfg.DataChannel == "" {
		cfg.DataChannel = def.DataChannel
	}
	return &Service{cfg: cfg, logger: logger.With("component", "remote")}
}

// CreateReceiver validates desc and returns an unconnected receiver.
func (s *Service) CreateReceiver(ctx context.Context, desc session.ReceiverDesc) (session.Receiver, error) {
	if desc.Callbacks == nil {
		return nil, errors.New("remote: receiver needs callbacks")
	}
	if desc.NumStreams <= 0 {
		desc.NumStreams = session.DefaultNumStreams
	}
	if desc.Device.Width <= 0 || desc.Device.Height <= 0 {
		return nil, fmt.Errorf("remote: invalid eye size %dx%d", desc.Device.Width, desc.Device.Height)
	}

	id := uuid.New()
	r := newReceiver(id, s.cfg, desc, s.logger.With("receiver", id.String()[:8]))
	s.logger.Info("receiver created",
		"receiver", id.String(),
		"streams", desc.NumStreams,
		"width", desc.Device.Width,
		"height", desc.Device.Height,
		"foveation", desc.Device.Foveation,
		"debug_flags", fmt.Sprintf("%#x", uint32(desc.DebugFlags)),
	)
	return r, nil
}
