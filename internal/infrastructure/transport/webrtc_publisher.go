package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"livepush/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// opusClockRate is the RTP clock for the audio track.
const opusClockRate = 48000

// opusPayloadType matches the dynamic payload type negotiated for Opus.
const opusPayloadType = 111

// PublisherConfig tunes the WebRTC publisher transport.
type PublisherConfig struct {
	ICEServers    []webrtc.ICEServer
	AnswerTimeout time.Duration
	UDPPortRange  struct{ Min, Max uint16 }
}

// DefaultPublisherConfig returns a configuration using public STUN.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		AnswerTimeout: 10 * time.Second,
	}
}

// WebRTCPublisher pushes the encoded audio stream to an ingest server
// over a WebRTC peer connection, with SDP and ICE exchanged over a
// websocket signaling channel.
type WebRTCPublisher struct {
	logger *zap.SugaredLogger
	cfg    PublisherConfig

	mu        sync.Mutex
	callbacks ports.TransportCallbacks
	pc        *webrtc.PeerConnection
	signal    *SignalClient
	track     *webrtc.TrackLocalStaticRTP

	connected atomic.Bool

	// RTP packetizer state, touched only by WriteSample callers.
	ssrc     uint32
	sequence uint16
}

func NewWebRTCPublisher(cfg PublisherConfig, logger *zap.SugaredLogger) *WebRTCPublisher {
	return &WebRTCPublisher{
		logger: logger,
		cfg:    cfg,
		ssrc:   rand.Uint32(),
	}
}

func (p *WebRTCPublisher) SetCallbacks(cb ports.TransportCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = cb
}

func (p *WebRTCPublisher) getCallbacks() ports.TransportCallbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callbacks
}

// Start dials the signaling server, negotiates the peer connection and
// begins ICE. The connection callbacks report the final outcome; an error
// here means negotiation could not even begin.
func (p *WebRTCPublisher) Start(ctx context.Context, url string) error {
	p.mu.Lock()
	p.closeLocked()

	signal, err := DialSignal(ctx, url, p.logger)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	pc, track, err := p.createPeerConnection()
	if err != nil {
		signal.Close()
		p.mu.Unlock()
		return err
	}

	p.signal = signal
	p.pc = pc
	p.track = track
	cb := p.callbacks
	p.mu.Unlock()

	answerCh := make(chan webrtc.SessionDescription, 1)
	go signal.Run(SignalHandlers{
		OnAnswer: func(answer webrtc.SessionDescription) {
			select {
			case answerCh <- answer:
			default:
			}
		},
		OnCandidate: func(candidate webrtc.ICECandidateInit) {
			if err := pc.AddICECandidate(candidate); err != nil {
				p.logger.Warnw("failed to add remote ICE candidate", "error", err)
			}
		},
		OnError: func(reason string) {
			if cb.OnConnectionFailed != nil {
				cb.OnConnectionFailed("server rejected publish: " + reason)
			}
		},
		OnClosed: func(err error) {
			if err != nil && p.connected.CompareAndSwap(true, false) {
				if cb.OnDisconnect != nil {
					cb.OnDisconnect()
				}
			}
		},
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := signal.SendCandidate(candidate.ToJSON()); err != nil {
			p.logger.Warnw("failed to send local ICE candidate", "error", err)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.logger.Infow("ICE connection state changed", "state", state.String())

		switch state {
		case webrtc.ICEConnectionStateConnected:
			if p.connected.CompareAndSwap(false, true) && cb.OnConnectionSuccess != nil {
				cb.OnConnectionSuccess()
			}
		case webrtc.ICEConnectionStateFailed:
			p.connected.Store(false)
			if cb.OnConnectionFailed != nil {
				cb.OnConnectionFailed("ICE negotiation failed")
			}
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateClosed:
			if p.connected.CompareAndSwap(true, false) && cb.OnDisconnect != nil {
				cb.OnDisconnect()
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.Stop()
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		p.Stop()
		return fmt.Errorf("failed to set local description: %w", err)
	}
	if err := signal.SendOffer(offer); err != nil {
		p.Stop()
		return err
	}

	timeout := p.cfg.AnswerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	case <-time.After(timeout):
		p.Stop()
		return fmt.Errorf("timed out waiting for SDP answer")
	case answer := <-answerCh:
		if err := pc.SetRemoteDescription(answer); err != nil {
			p.Stop()
			return fmt.Errorf("failed to set remote description: %w", err)
		}
	}

	return nil
}

func (p *WebRTCPublisher) createPeerConnection() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticRTP, error) {
	settingEngine := webrtc.SettingEngine{}
	if p.cfg.UDPPortRange.Min > 0 && p.cfg.UDPPortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(p.cfg.UDPPortRange.Min, p.cfg.UDPPortRange.Max); err != nil {
			return nil, nil, fmt.Errorf("failed to set UDP port range: %w", err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   p.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"livepush-audio",
	)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("failed to add audio track: %w", err)
	}

	go p.processRTCP(sender)

	return pc, track, nil
}

// processRTCP extracts latency and bandwidth feedback from the remote
// receiver reports.
func (p *WebRTCPublisher) processRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}

		cb := p.getCallbacks()
		for _, packet := range packets {
			switch pkt := packet.(type) {
			case *rtcp.ReceiverReport:
				for _, report := range pkt.Reports {
					if report.LastSenderReport == 0 || report.Delay == 0 {
						continue
					}
					rtt := time.Duration(report.Delay) * time.Second / 65536
					if cb.OnLatency != nil {
						cb.OnLatency(float64(rtt.Microseconds()) / 1000)
					}
				}
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				if cb.OnNewBitrate != nil {
					cb.OnNewBitrate(int(pkt.Bitrate / 1000))
				}
			}
		}
	}
}

// WriteSample packetizes one encoded audio frame and writes it to the
// track. ptsUs maps onto the 48kHz RTP clock.
func (p *WebRTCPublisher) WriteSample(data []byte, ptsUs int64) error {
	p.mu.Lock()
	track := p.track
	p.mu.Unlock()

	if track == nil || !p.connected.Load() {
		return fmt.Errorf("transport not connected")
	}

	p.sequence++
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         false,
			PayloadType:    opusPayloadType,
			SequenceNumber: p.sequence,
			Timestamp:      uint32(ptsUs * opusClockRate / 1_000_000),
			SSRC:           p.ssrc,
		},
		Payload: data,
	}

	if err := track.WriteRTP(packet); err != nil {
		return fmt.Errorf("failed to write RTP packet: %w", err)
	}
	return nil
}

// Stop closes the peer connection and the signaling channel.
func (p *WebRTCPublisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *WebRTCPublisher) closeLocked() error {
	p.connected.Store(false)

	var firstErr error
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			firstErr = err
		}
		p.pc = nil
	}
	if p.signal != nil {
		if err := p.signal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.signal = nil
	}
	p.track = nil
	return firstErr
}

// Connected reports whether ICE is currently established.
func (p *WebRTCPublisher) Connected() bool {
	return p.connected.Load()
}
