package peer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	pion "github.com/pion/webrtc/v4"
)

const dataChannelLabel = "lightspeed"

// MessageHandler receives the data channel messages of a peer.
type MessageHandler func(peerId string, data []byte)

type pionConnection struct {
	peerId string
	pc     *pion.PeerConnection
	logger hclog.Logger

	onMessage MessageHandler

	mu      sync.Mutex
	channel *pion.DataChannel
}

// NewPionFactory returns a Factory creating data-only pion peer connections. iceServers are STUN or
// TURN urls, none means host candidates only. onMessage may be nil.
func NewPionFactory(iceServers []string, onMessage MessageHandler, logger hclog.Logger) Factory {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cfg := pion.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []pion.ICEServer{{URLs: iceServers}}
	}
	return func(peerId string, onCandidate func(candidate json.RawMessage)) (Connection, error) {
		pc, err := pion.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		c := &pionConnection{
			peerId:    peerId,
			pc:        pc,
			logger:    logger.With("peer", peerId),
			onMessage: onMessage,
		}
		pc.OnICECandidate(func(candidate *pion.ICECandidate) {
			if candidate == nil {
				return
			}
			raw, err := json.Marshal(candidate.ToJSON())
			if err != nil {
				c.logger.Warn("could not marshal ice candidate", "error", err)
				return
			}
			onCandidate(raw)
		})
		pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
			c.logger.Debug("connection state changed", "state", state.String())
		})
		// the answering side receives the channel created by the offerer
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() == dataChannelLabel {
				c.setChannel(dc)
			}
		})
		return c, nil
	}
}

func (c *pionConnection) setChannel(dc *pion.DataChannel) {
	c.mu.Lock()
	c.channel = dc
	c.mu.Unlock()
	dc.OnOpen(func() {
		c.logger.Info("data channel open")
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if c.onMessage != nil {
			c.onMessage(c.peerId, msg.Data)
		}
	})
}

// Send writes data to the peer's data channel.
func (c *pionConnection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.channel
	c.mu.Unlock()
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return fmt.Errorf("data channel to %s not open", c.peerId)
	}
	return dc.Send(data)
}

func (c *pionConnection) CreateOffer() (json.RawMessage, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(dataChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	c.setChannel(dc)
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	// candidates are trickled through OnICECandidate
	return json.Marshal(c.pc.LocalDescription())
}

func (c *pionConnection) AcceptOffer(raw json.RawMessage) (json.RawMessage, error) {
	offer := pion.SessionDescription{}
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if offer.Type != pion.SDPTypeOffer {
		return nil, fmt.Errorf("unexpected session description type %s", offer.Type)
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(c.pc.LocalDescription())
}

func (c *pionConnection) AcceptAnswer(raw json.RawMessage) error {
	answer := pion.SessionDescription{}
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if answer.Type != pion.SDPTypeAnswer {
		return fmt.Errorf("unexpected session description type %s", answer.Type)
	}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *pionConnection) AddCandidate(raw json.RawMessage) error {
	candidate := pion.ICECandidateInit{}
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	if err := c.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}
