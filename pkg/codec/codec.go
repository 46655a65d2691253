// Package codec encodes the messages exchanged with the render server over
// the session's data channel. Messages are CBOR with integer keys, wrapped
// in a typed envelope.
package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/teslashibe/go-xrstream/pkg/tracking"
	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// ErrUnexpectedType is returned when an envelope does not carry the
// requested message type.
var ErrUnexpectedType = errors.New("codec: unexpected message type")

// Type identifies the body of an envelope.
type Type uint8

const (
	// TypeTracking carries a tracking snapshot upstream.
	TypeTracking Type = iota + 1

	// TypeHaptic carries a controller vibration request downstream.
	TypeHaptic

	// TypeFrameMeta carries the pose a video frame pair was rendered with.
	TypeFrameMeta
)

func (t Type) String() string {
	switch t {
	case TypeTracking:
		return "tracking"
	case TypeHaptic:
		return "haptic"
	case TypeFrameMeta:
		return "frame_meta"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Envelope is the outer message.
type Envelope struct {
	Type Type            `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// Tracking is an upstream pose report.
type Tracking struct {
	Seq         uint64            `cbor:"1,keyasint"`
	TimestampUs int64             `cbor:"2,keyasint"`
	State       tracking.Snapshot `cbor:"3,keyasint"`
}

// Haptic asks the client to vibrate a controller.
type Haptic struct {
	Controller int     `cbor:"1,keyasint"`
	Amplitude  float32 `cbor:"2,keyasint"`
	Seconds    float32 `cbor:"3,keyasint"`
}

// FrameMeta associates a frame timestamp with the pose it was rendered for.
type FrameMeta struct {
	PoseID      uint64          `cbor:"1,keyasint"`
	TimestampUs uint64          `cbor:"2,keyasint"`
	Pose        xrmath.Matrix34 `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal wraps v in an envelope of type t.
func Marshal(t Type, v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return encMode.Marshal(Envelope{Type: t, Body: body})
}

// Decode parses the envelope without decoding its body.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Into decodes the envelope body into v after checking its type.
func (e Envelope) Into(t Type, v any) error {
	if e.Type != t {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, e.Type, t)
	}
	if err := decMode.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", t, err)
	}
	return nil
}

// EncodeTracking encodes a tracking report.
func EncodeTracking(seq uint64, timestampUs int64, snap tracking.Snapshot) ([]byte, error) {
	return Marshal(TypeTracking, Tracking{Seq: seq, TimestampUs: timestampUs, State: snap})
}

// EncodeHaptic encodes a vibration request.
func EncodeHaptic(h Haptic) ([]byte, error) {
	return Marshal(TypeHaptic, h)
}

// EncodeFrameMeta encodes frame pose metadata.
func EncodeFrameMeta(m FrameMeta) ([]byte, error) {
	return Marshal(TypeFrameMeta, m)
}
