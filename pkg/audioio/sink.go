package audioio

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotOpen is returned by Play before Open or after Close.
	ErrNotOpen = errors.New("audioio: sink not open")

	// ErrMisaligned is returned for a buffer that is not a whole number of
	// sample frames.
	ErrMisaligned = errors.New("audioio: buffer is not frame aligned")
)

// Sink plays interleaved PCM16 in its Format.
type Sink interface {
	// Open acquires the device. Play fails until it succeeds.
	Open(ctx context.Context) error

	// Play queues pcm. It blocks while Latency worth of audio is already
	// queued, until ctx is done.
	Play(ctx context.Context, pcm []byte) error

	// Discard drops queued audio that has not reached the device.
	Discard()

	Format() Format
	Backend() Backend

	// Close releases the device. A closed sink cannot be reopened.
	io.Closer
}

// Counters describe a sink's lifetime.
type Counters struct {
	Backend Backend `json:"backend"`
	Open    bool    `json:"open"`

	// Played counts buffers accepted by Play.
	Played      int64 `json:"played"`
	PlayedBytes int64 `json:"played_bytes"`

	// Rejected counts buffers refused by Play or dropped by Discard.
	Rejected int64 `json:"rejected"`

	// QueuedBytes is audio accepted but not yet handed to the device.
	QueuedBytes int64 `json:"queued_bytes"`
}

// Counted is a Sink that reports Counters.
type Counted interface {
	Sink
	Counters() Counters
}
