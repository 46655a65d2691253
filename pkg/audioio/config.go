// Package audioio plays the PCM stream received from the render server.
//
// Playback runs through a child process fed over stdin (aplay on Linux,
// ffplay elsewhere) or through an in-memory Recorder when no device is
// wanted.
package audioio

import (
	"fmt"
	"time"
)

// Backend names a playback implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendALSA   Backend = "alsa"
	BackendFFplay Backend = "ffplay"
	BackendMock   Backend = "mock"
)

// Stream format of server audio: 48 kHz interleaved stereo PCM16.
const (
	StreamRate     = 48000
	StreamChannels = 2
	SampleBytes    = 2

	// BytesPerMs is the byte rate of the stream format.
	BytesPerMs = StreamRate / 1000 * StreamChannels * SampleBytes
)

// Format describes interleaved little-endian PCM16.
type Format struct {
	Rate     int `yaml:"rate" json:"rate"`
	Channels int `yaml:"channels" json:"channels"`
}

// StreamFormat is the format the server sends.
var StreamFormat = Format{Rate: StreamRate, Channels: StreamChannels}

// FrameBytes is the size of one sample frame.
func (f Format) FrameBytes() int {
	return f.Channels * SampleBytes
}

// BytesPerMs returns the byte rate.
func (f Format) BytesPerMs() int {
	return f.Rate * f.FrameBytes() / 1000
}

// Duration returns the playback time of n bytes, rounded down to whole
// milliseconds.
func (f Format) Duration(n int) time.Duration {
	perMs := f.BytesPerMs()
	if perMs <= 0 {
		return 0
	}
	return time.Duration(n/perMs) * time.Millisecond
}

// Frames returns the number of whole sample frames in n bytes.
func (f Format) Frames(n int) int {
	if fb := f.FrameBytes(); fb > 0 {
		return n / fb
	}
	return 0
}

// Align truncates n bytes to a whole number of frames.
func (f Format) Align(n int) int {
	return f.Frames(n) * f.FrameBytes()
}

// Config selects and tunes a playback backend.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`
	Format  Format  `yaml:"format" json:"format"`

	// Latency bounds how much audio may be queued ahead of the device.
	Latency time.Duration `yaml:"latency" json:"latency"`

	// Device is the ALSA device name; other backends ignore it.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig matches the server stream with 100ms of queueing.
func DefaultConfig() Config {
	return Config{
		Backend: BackendAuto,
		Format:  StreamFormat,
		Latency: 100 * time.Millisecond,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Format.Rate <= 0 {
		return fmt.Errorf("audioio: rate must be positive, got %d", c.Format.Rate)
	}
	if c.Format.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Format.Channels)
	}
	if c.Latency <= 0 {
		return fmt.Errorf("audioio: latency must be positive, got %v", c.Latency)
	}
	return nil
}
