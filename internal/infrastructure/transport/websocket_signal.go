package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Signaling message types exchanged with the ingest server.
const (
	signalTypeOffer     = "offer"
	signalTypeAnswer    = "answer"
	signalTypeCandidate = "candidate"
	signalTypeError     = "error"
)

// SignalMessage is the JSON envelope for SDP and ICE exchange.
type SignalMessage struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// SignalHandlers receives decoded messages from the read loop.
type SignalHandlers struct {
	OnAnswer    func(webrtc.SessionDescription)
	OnCandidate func(webrtc.ICECandidateInit)
	OnError     func(string)
	OnClosed    func(error)
}

// SignalClient is the websocket signaling connection toward the ingest
// server. Writes are serialized; reads happen on a single loop goroutine.
type SignalClient struct {
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// DialSignal opens the signaling connection.
func DialSignal(ctx context.Context, url string, logger *zap.SugaredLogger) (*SignalClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}

	return &SignalClient{
		logger: logger,
		conn:   conn,
		done:   make(chan struct{}),
	}, nil
}

// Run reads messages until the connection closes and dispatches them to
// the handlers. Blocks; intended to run on its own goroutine.
func (c *SignalClient) Run(handlers SignalHandlers) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				err = nil
			default:
			}
			if handlers.OnClosed != nil {
				handlers.OnClosed(err)
			}
			return
		}

		var msg SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("malformed signaling message", "error", err)
			continue
		}

		switch msg.Type {
		case signalTypeAnswer:
			if handlers.OnAnswer != nil {
				handlers.OnAnswer(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  msg.SDP,
				})
			}
		case signalTypeCandidate:
			if msg.Candidate != nil && handlers.OnCandidate != nil {
				handlers.OnCandidate(*msg.Candidate)
			}
		case signalTypeError:
			if handlers.OnError != nil {
				handlers.OnError(msg.Error)
			}
		default:
			c.logger.Debugw("ignoring signaling message", "type", msg.Type)
		}
	}
}

// SendOffer forwards the local SDP offer.
func (c *SignalClient) SendOffer(offer webrtc.SessionDescription) error {
	return c.send(SignalMessage{Type: signalTypeOffer, SDP: offer.SDP})
}

// SendCandidate forwards a local ICE candidate.
func (c *SignalClient) SendCandidate(candidate webrtc.ICECandidateInit) error {
	return c.send(SignalMessage{Type: signalTypeCandidate, Candidate: &candidate})
}

func (c *SignalClient) send(msg SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signaling message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write signaling message: %w", err)
	}
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (c *SignalClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
