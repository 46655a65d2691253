package remote

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-xrstream/pkg/compositor"
)

const (
	// maxJPEGSize bounds a single decoded frame read from the decoder.
	maxJPEGSize = 16 << 20

	// maxPending bounds the units waiting for a picture.
	maxPending = 32

	// resyncWindow is the number of pictures over which the smallest
	// backlog is measured. A backlog that never drains to the current
	// unit means earlier units produced no picture.
	resyncWindow = 30
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}

	// accessUnitDelimiter ends a unit for ffmpeg's parser so the picture
	// comes out without waiting for the next unit.
	accessUnitDelimiter = []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}
)

// frameFunc receives a decoded image, the timestamp of the access unit it
// came from and when that unit was submitted. It takes ownership of img.
type frameFunc func(img *compositor.Image, timestampUs uint64, submittedAt time.Time)

type pendingUnit struct {
	ts uint64
	at time.Time
}

// decoder runs one persistent ffmpeg process per video stream. Annex-B
// access units go in on stdin and MJPEG pictures come out on stdout.
type decoder struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	logger  *slog.Logger
	onFrame frameFunc

	mu         sync.Mutex
	pending    []pendingUnit
	minBacklog int
	window     int
	resyncs    uint64
	closed     bool
	done       chan struct{}
}

// decoderArgs is the ffmpeg command line for a low-latency H264 to MJPEG
// pipe: raw Annex-B on stdin, concatenated JPEGs at quality 3 on stdout.
func decoderArgs(hardware bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if hardware {
		args = append(args, "-hwaccel", "auto")
	}
	return append(args,
		"-flags", "low_delay",
		"-fflags", "nobuffer",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
}

func newDecoder(binary string, hardware bool, onFrame frameFunc, logger *slog.Logger) (*decoder, error) {
	cmd := exec.Command(binary, decoderArgs(hardware)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	d := &decoder{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		logger:  logger,
		onFrame: onFrame,
		done:    make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// Write submits one access unit.
func (d *decoder) Write(au accessUnit) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return io.ErrClosedPipe
	}
	d.track(au.timestampUs, time.Now())
	d.mu.Unlock()

	if _, err := d.stdin.Write(au.data); err != nil {
		return err
	}
	_, err := d.stdin.Write(accessUnitDelimiter)
	return err
}

// track queues a submitted unit. Callers hold d.mu.
func (d *decoder) track(ts uint64, at time.Time) {
	d.pending = append(d.pending, pendingUnit{ts: ts, at: at})
	if n := len(d.pending) - maxPending; n > 0 {
		d.pending = d.pending[n:]
		d.resyncs++
	}
}

func (d *decoder) readLoop() {
	defer close(d.done)

	scanner := bufio.NewScanner(d.stdout)
	scanner.Buffer(make([]byte, 0, 256<<10), maxJPEGSize)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		mat, err := gocv.IMDecode(scanner.Bytes(), gocv.IMReadColor)
		if err != nil || mat.Empty() {
			d.logger.Debug("drop undecodable frame", "error", err)
			mat.Close()
			d.popPending()
			continue
		}
		ts, at := d.popPending()
		d.onFrame(compositor.FromMat(mat), ts, at)
	}
	if err := scanner.Err(); err != nil {
		d.logger.Warn("decoder output ended", "error", err)
	}
}

// popPending pairs an output picture with the oldest submitted unit. When
// every picture in a window found stale units queued ahead of its own,
// those units are dropped.
func (d *decoder) popPending() (uint64, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.pending)
	if n == 0 {
		d.window = 0
		return 0, time.Time{}
	}
	if d.window == 0 || n < d.minBacklog {
		d.minBacklog = n
	}
	d.window++
	if d.window >= resyncWindow {
		if stale := d.minBacklog - 1; stale > 0 {
			d.pending = d.pending[stale:]
			d.resyncs++
			d.logger.Debug("decoder resync", "dropped", stale)
		}
		d.window = 0
	}
	p := d.pending[0]
	d.pending = d.pending[1:]
	return p.ts, p.at
}

// Close stops the decoder process and waits for its output to drain.
func (d *decoder) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	<-d.done
	d.cmd.Wait()
}

// splitJPEG is a bufio.SplitFunc yielding whole JPEG images from a
// concatenated MJPEG stream. Bytes before a start-of-image marker are
// skipped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF that may begin a marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
