package session

import (
	"context"
	"time"

	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/pkg/audioio"
	"github.com/teslashibe/go-xrstream/pkg/frame"
	"github.com/teslashibe/go-xrstream/pkg/tracking"
)

// Callbacks is what the streaming service calls back into, from its own
// goroutines. None of the methods may block.
type Callbacks interface {
	// TrackingState returns the latest device tracking snapshot.
	TrackingState() tracking.Snapshot

	// TriggerHaptic vibrates a controller. Durations <= 0 are ignored.
	TriggerHaptic(controller int, amplitude, seconds float32)

	// RenderAudio plays interleaved PCM16 at the stream format and reports
	// whether it was accepted.
	RenderAudio(pcm []byte) bool

	// UpdateClientState reports an asynchronous state change.
	UpdateClientState(state State, reason StateReason)
}

// ReceiverDesc is everything the service needs to create a receiver.
type ReceiverDesc struct {
	Device       DeviceDesc
	Callbacks    Callbacks
	ShareContext any
	NumStreams   int
	DebugFlags   DebugFlags
}

// ConnectionDesc carries the per-connection parameters.
type ConnectionDesc struct {
	// Async connects in the background; the outcome arrives through
	// UpdateClientState.
	Async               bool
	MaxVideoBitrateKbps uint32
	ClientNetwork       config.ClientNetwork
	Topology            config.Topology
	SignallingToken     string
}

// Service creates receivers. It is the opaque remote rendering service.
type Service interface {
	CreateReceiver(ctx context.Context, desc ReceiverDesc) (Receiver, error)
}

// Receiver is one live connection to a render server.
type Receiver interface {
	frame.Source

	// Connect starts connecting to server. With conn.Async it returns once the
	// attempt is under way.
	Connect(ctx context.Context, server string, conn ConnectionDesc) error

	// ConnectionStats returns the current connection quality counters.
	ConnectionStats() (ConnectionStats, error)

	// Destroy closes the connection and frees all resources. The receiver
	// makes no callbacks after Destroy returns.
	Destroy()
}

// ConnectionStats are the connection quality counters of a receiver.
type ConnectionStats struct {
	FramesPerSecond          float32 `json:"fps"`
	FrameDeliveryTimeMs      float32 `json:"frame_delivery_ms"`
	FrameQueueTimeMs         float32 `json:"frame_queue_ms"`
	FrameLatchTimeMs         float32 `json:"frame_latch_ms"`
	BandwidthAvailableKbps   uint32  `json:"bandwidth_available_kbps"`
	BandwidthUtilizationKbps uint32  `json:"bandwidth_utilization_kbps"`
	BandwidthUtilizationPct  uint32  `json:"bandwidth_utilization_pct"`
	RoundTripDelayMs         uint32  `json:"rtt_ms"`
	JitterUs                 uint32  `json:"jitter_us"`
	TotalPacketsReceived     uint32  `json:"packets_received"`
	TotalPacketsLost         uint32  `json:"packets_lost"`
	TotalPacketsDropped      uint32  `json:"packets_dropped"`
	Quality                  uint32  `json:"quality"`
	QualityReasons           uint32  `json:"quality_reasons"`
}

// Host is the display runtime the session describes itself from.
type Host interface {
	// RecommendedViewSize is the per-eye render size.
	RecommendedViewSize() (width, height int)

	// IPD returns the measured IPD in meters, if the runtime provides one.
	IPD() (float32, bool)

	// GraphicsContext is handed to the service to share with its decoder.
	GraphicsContext() any
}

// HapticActuator drives controller vibration.
type HapticActuator interface {
	Vibrate(controller int, amplitude float32, duration time.Duration)
}

// SinkFactory opens the audio output for a session.
type SinkFactory func(cfg audioio.Config) (audioio.Sink, error)

// Resolver turns a configured server reference into a dialable address.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
