package remote

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v3"
)

type recordingHandler struct {
	offers     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	ended      []string
}

func (h *recordingHandler) onOffer(o webrtc.SessionDescription)   { h.offers = append(h.offers, o) }
func (h *recordingHandler) onCandidate(c webrtc.ICECandidateInit) { h.candidates = append(h.candidates, c) }
func (h *recordingHandler) onSessionEnded(reason string)          { h.ended = append(h.ended, reason) }

func TestFindProducer(t *testing.T) {
	producers := []producer{
		{ID: "a", Meta: meta{"name": "other"}},
		{ID: "b", Meta: meta{"name": "xrstream"}},
	}
	if id, err := findProducer(producers, "xrstream"); err != nil || id != "b" {
		t.Errorf("got %q, %v", id, err)
	}
	if _, err := findProducer(producers, "missing"); err == nil {
		t.Error("expected error")
	}
	if id, err := findProducer(producers[:1], ""); err != nil || id != "a" {
		t.Errorf("single producer: got %q, %v", id, err)
	}
}

func TestDispatch(t *testing.T) {
	s := &signalling{logger: slog.Default()}
	h := &recordingHandler{}

	if s.dispatch([]byte(`{"type":"sessionStarted","sessionId":"sess-1"}`), h) {
		t.Fatal("sessionStarted should not end")
	}
	if s.session() != "sess-1" {
		t.Errorf("session: %q", s.session())
	}

	s.dispatch([]byte(`{"type":"peer","sessionId":"sess-1","sdp":{"type":"offer","sdp":"v=0"}}`), h)
	s.dispatch([]byte(`{"type":"peer","sdp":{"type":"answer","sdp":"v=0"}}`), h)
	if len(h.offers) != 1 || h.offers[0].SDP != "v=0" || h.offers[0].Type != webrtc.SDPTypeOffer {
		t.Errorf("offers: %+v", h.offers)
	}

	s.dispatch([]byte(`{"type":"peer","ice":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":2}}`), h)
	if len(h.candidates) != 1 {
		t.Fatalf("candidates: %d", len(h.candidates))
	}
	c := h.candidates[0]
	if c.Candidate != "candidate:1" || c.SDPMid == nil || *c.SDPMid != "0" || c.SDPMLineIndex == nil || *c.SDPMLineIndex != 2 {
		t.Errorf("candidate: %+v", c)
	}

	if s.dispatch([]byte(`not json`), h) {
		t.Error("bad json should not end the session")
	}
	if !s.dispatch([]byte(`{"type":"endSession"}`), h) || len(h.ended) != 1 {
		t.Error("endSession should end the session")
	}
}

func TestMessageEncoding(t *testing.T) {
	data, err := json.Marshal(message{Type: msgStartSession, PeerID: "p", Meta: meta{"fps": "90"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"startSession","peerId":"p","meta":{"fps":"90"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
