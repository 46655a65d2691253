package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"golang.org/x/oauth2"
)

// Signalling message types.
const (
	msgWelcome        = "welcome"
	msgList           = "list"
	msgStartSession   = "startSession"
	msgSessionStarted = "sessionStarted"
	msgPeer           = "peer"
	msgEndSession     = "endSession"
	msgError          = "error"
)

// message is the signalling envelope. Peer messages carry either an SDP or
// an ICE candidate.
type message struct {
	Type      string     `json:"type"`
	PeerID    string     `json:"peerId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Producers []producer `json:"producers,omitempty"`
	SDP       *sdpBody   `json:"sdp,omitempty"`
	ICE       *iceBody   `json:"ice,omitempty"`
	Meta      meta       `json:"meta,omitempty"`
	Details   string     `json:"details,omitempty"`
}

type meta map[string]string

type producer struct {
	ID   string `json:"id"`
	Meta meta   `json:"meta"`
}

type sdpBody struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceBody struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

func (b *iceBody) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     b.Candidate,
		SDPMid:        b.SDPMid,
		SDPMLineIndex: b.SDPMLineIndex,
	}
}

// findProducer picks the producer advertising name, or the only producer
// when name is empty.
func findProducer(producers []producer, name string) (string, error) {
	if name == "" && len(producers) == 1 {
		return producers[0].ID, nil
	}
	for _, p := range producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%q producer not found in %d producers", name, len(producers))
}

// signalling is a websocket connection to the render server's signaller.
type signalling struct {
	ws      *websocket.Conn
	wsMutex sync.Mutex
	logger  *slog.Logger

	peerID    string
	sessionMu sync.RWMutex
	sessionID string
}

// dialSignalling connects and waits for the welcome message. A non-nil
// token source adds a bearer Authorization header.
func dialSignalling(ctx context.Context, url string, tokens oauth2.TokenSource, timeout time.Duration, logger *slog.Logger) (*signalling, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}

	header := http.Header{}
	if tokens != nil {
		tok, err := tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("signalling token: %w", err)
		}
		tok.SetAuthHeader(&http.Request{Header: header})
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("signalling connect failed: %w", errUnauthorized)
		}
		return nil, fmt.Errorf("signalling connect failed: %w", err)
	}

	s := &signalling{ws: ws, logger: logger}
	welcome, err := s.read(timeout)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("welcome failed: %w", err)
	}
	if welcome.Type != msgWelcome {
		ws.Close()
		return nil, fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	s.peerID = welcome.PeerID
	return s, nil
}

func (s *signalling) read(timeout time.Duration) (message, error) {
	var msg message
	if timeout > 0 {
		s.ws.SetReadDeadline(time.Now().Add(timeout))
		defer s.ws.SetReadDeadline(time.Time{})
	}
	err := s.ws.ReadJSON(&msg)
	return msg, err
}

func (s *signalling) write(msg message) error {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return s.ws.WriteJSON(msg)
}

// producer lists the server's producers and returns the one named name.
func (s *signalling) producer(name string, timeout time.Duration) (string, error) {
	if err := s.write(message{Type: msgList}); err != nil {
		return "", err
	}
	resp, err := s.read(timeout)
	if err != nil {
		return "", err
	}
	return findProducer(resp.Producers, name)
}

// startSession asks producerID to stream to us. m carries the client's
// connection preferences.
func (s *signalling) startSession(producerID string, m meta) error {
	return s.write(message{Type: msgStartSession, PeerID: producerID, Meta: m})
}

func (s *signalling) session() string {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.sessionID
}

func (s *signalling) sendSDP(sdp webrtc.SessionDescription) error {
	return s.write(message{
		Type:      msgPeer,
		SessionID: s.session(),
		SDP:       &sdpBody{Type: sdp.Type.String(), SDP: sdp.SDP},
	})
}

func (s *signalling) sendICE(c webrtc.ICECandidateInit) error {
	sessionID := s.session()
	if sessionID == "" {
		return nil
	}
	return s.write(message{
		Type:      msgPeer,
		SessionID: sessionID,
		ICE:       &iceBody{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex},
	})
}

// peerHandler reacts to session messages from the signaller.
type peerHandler interface {
	onOffer(offer webrtc.SessionDescription)
	onCandidate(c webrtc.ICECandidateInit)
	onSessionEnded(reason string)
}

// run dispatches messages until the connection closes.
func (s *signalling) run(h peerHandler) {
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			h.onSessionEnded(err.Error())
			return
		}
		if done := s.dispatch(raw, h); done {
			return
		}
	}
}

// dispatch handles one raw message and reports whether the session ended.
func (s *signalling) dispatch(raw []byte, h peerHandler) bool {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("bad signalling message", "error", err)
		return false
	}

	switch msg.Type {
	case msgSessionStarted:
		s.sessionMu.Lock()
		s.sessionID = msg.SessionID
		s.sessionMu.Unlock()

	case msgPeer:
		if msg.SDP != nil && msg.SDP.Type == "offer" {
			h.onOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP})
		}
		if msg.ICE != nil {
			h.onCandidate(msg.ICE.init())
		}

	case msgEndSession:
		h.onSessionEnded("session ended by server")
		return true

	case msgError:
		s.logger.Error("signalling error", "details", msg.Details)
	}
	return false
}

func (s *signalling) Close() error {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.ws.Close()
}
