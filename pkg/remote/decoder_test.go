package remote

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func jpegBytes(body ...byte) []byte {
	out := append([]byte{0xFF, 0xD8}, body...)
	return append(out, 0xFF, 0xD9)
}

func TestSplitJPEG(t *testing.T) {
	a := jpegBytes(0x01, 0x02)
	b := jpegBytes(0xFF, 0x00, 0x03)

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // junk before the first image
	stream.Write(a)
	stream.Write(b)
	stream.Write([]byte{0xFF, 0xD8, 0x05}) // truncated tail

	sc := bufio.NewScanner(&stream)
	sc.Split(splitJPEG)

	var got [][]byte
	for sc.Scan() {
		got = append(got, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("images: %x", got)
	}
}

func TestSplitJPEG_NeedsMoreData(t *testing.T) {
	adv, tok, err := splitJPEG([]byte{0x00, 0xFF, 0xD8, 0x01}, false)
	if err != nil || tok != nil || adv != 1 {
		t.Errorf("got adv=%d tok=%x err=%v", adv, tok, err)
	}
	adv, tok, _ = splitJPEG([]byte{0x00, 0x00, 0xFF}, false)
	if tok != nil || adv != 2 {
		t.Errorf("trailing 0xFF: adv=%d tok=%x", adv, tok)
	}
}

func TestDecoderArgs(t *testing.T) {
	soft := strings.Join(decoderArgs(false), " ")
	if strings.Contains(soft, "-hwaccel") {
		t.Error("software decode should not request hwaccel")
	}
	if !strings.Contains(soft, "-f h264 -i pipe:0") || !strings.HasSuffix(soft, "pipe:1") {
		t.Errorf("args: %s", soft)
	}
	if hw := strings.Join(decoderArgs(true), " "); !strings.Contains(hw, "-hwaccel auto") {
		t.Errorf("args: %s", hw)
	}
}

func testDecoder() *decoder {
	return &decoder{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestDecoder_ResyncAfterSkippedPicture(t *testing.T) {
	d := testDecoder()
	now := time.Now()
	d.track(1, now) // never produces a picture

	var labels []uint64
	for ts := uint64(2); ts < 2+3*resyncWindow; ts++ {
		d.track(ts, now)
		got, _ := d.popPending()
		labels = append(labels, got)
	}

	if labels[0] != 1 {
		t.Errorf("first picture labelled %d, want the stale unit", labels[0])
	}
	for i := resyncWindow - 1; i < len(labels); i++ {
		if want := uint64(i + 2); labels[i] != want {
			t.Fatalf("picture %d labelled %d, want %d", i, labels[i], want)
		}
	}
	if d.resyncs != 1 || len(d.pending) != 0 {
		t.Errorf("resyncs %d pending %d", d.resyncs, len(d.pending))
	}
}

func TestDecoder_NoResyncWhenBacklogDrains(t *testing.T) {
	d := testDecoder()
	now := time.Now()
	for ts := uint64(1); ts < 4*resyncWindow; ts += 2 {
		d.track(ts, now)
		d.track(ts+1, now)
		for _, want := range []uint64{ts, ts + 1} {
			if got, _ := d.popPending(); got != want {
				t.Fatalf("labelled %d, want %d", got, want)
			}
		}
	}
	if d.resyncs != 0 {
		t.Errorf("resyncs %d", d.resyncs)
	}
}

func TestDecoder_PendingBounded(t *testing.T) {
	d := testDecoder()
	for ts := uint64(1); ts <= 100; ts++ {
		d.track(ts, time.Time{})
	}
	if len(d.pending) != maxPending || d.pending[0].ts != 100-maxPending+1 {
		t.Errorf("pending %d, oldest %d", len(d.pending), d.pending[0].ts)
	}
	if got, _ := d.popPending(); got != 100-maxPending+1 {
		t.Errorf("popped %d", got)
	}
}

func TestDecoder_EmptyPopHasNoTimestamp(t *testing.T) {
	d := testDecoder()
	if ts, at := d.popPending(); ts != 0 || !at.IsZero() {
		t.Errorf("got %d %v", ts, at)
	}
}

// One eye's decoder swallows the first unit. Pairing must settle back on
// pictures of the same frame once that eye resyncs.
func TestMailbox_PairingRecoversAfterSkippedPicture(t *testing.T) {
	m := newMailbox()
	left, right := testDecoder(), testDecoder()
	now := time.Now()

	left.track(1, now)
	right.track(1, now)
	ts, _ := right.popPending()
	m.put(1, img("r1"), ts, now)

	last := uint64(3 * resyncWindow)
	for k := uint64(2); k <= last; k++ {
		left.track(k, now)
		right.track(k, now)
		lts, _ := left.popPending()
		m.put(0, img(fmt.Sprint("l", k)), lts, now)
		rts, _ := right.popPending()
		m.put(1, img(fmt.Sprint("r", k)), rts, now)
	}

	l, err := m.latch(time.Second)
	if err != nil {
		t.Fatalf("latch: %v", err)
	}
	defer m.release(l)
	ln, rn := l.Frames[0].Image.(*testImage).name, l.Frames[1].Image.(*testImage).name
	if ln != fmt.Sprint("l", last) || rn != fmt.Sprint("r", last) {
		t.Errorf("latched %s/%s, want frame %d for both eyes", ln, rn, last)
	}
	if l.Frames[0].TimestampUs != last {
		t.Errorf("timestamp %d, want %d", l.Frames[0].TimestampUs, last)
	}
	if left.resyncs != 1 || right.resyncs != 0 {
		t.Errorf("resyncs left %d right %d", left.resyncs, right.resyncs)
	}
}
