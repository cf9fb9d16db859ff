package peer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-signal/types"
)

// Connection is the negotiation state with one remote participant. Payloads are the JSON forms
// relayed by the server: session descriptions for offers and answers, candidate inits for ICE.
type Connection interface {
	CreateOffer() (json.RawMessage, error)
	// AcceptOffer applies a remote offer and returns the local answer.
	AcceptOffer(offer json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(answer json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error
	// Send writes data directly to the peer, bypassing the relay.
	Send(data []byte) error
	Close() error
}

// Factory creates the connection to peerId. onCandidate must be called for every locally gathered
// ICE candidate.
type Factory func(peerId string, onCandidate func(candidate json.RawMessage)) (Connection, error)

// Signaler sends negotiation payloads to a single peer, usually a *SignalClient.
type Signaler interface {
	SendSignal(event, to string, payload json.RawMessage) error
}

// Table holds one connection per remote participant, keyed by user id.
//
// The newcomer of a room initiates: it offers to everyone listed in room-users, while existing
// members only answer. So two peers never offer to each other at the same time.
type Table struct {
	factory  Factory
	signaler Signaler
	logger   hclog.Logger

	mu    sync.Mutex
	peers map[string]Connection
}

func NewTable(factory Factory, signaler Signaler, logger hclog.Logger) *Table {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Table{
		factory:  factory,
		signaler: signaler,
		logger:   logger,
		peers:    make(map[string]Connection),
	}
}

// Peers returns the sorted ids of the current connections.
func (t *Table) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Table) get(peerId string) (Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.peers[peerId]
	return conn, ok
}

func (t *Table) getOrCreate(peerId string) (Connection, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.peers[peerId]; ok {
		return conn, false, nil
	}
	conn, err := t.factory(peerId, func(candidate json.RawMessage) {
		if err := t.signaler.SendSignal(types.EventICECandidate, peerId, candidate); err != nil {
			t.logger.Warn("could not send ice candidate", "peer", peerId, "error", err)
		}
	})
	if err != nil {
		return nil, false, fmt.Errorf("could not create connection to %s: %w", peerId, err)
	}
	t.peers[peerId] = conn
	return conn, true, nil
}

func (t *Table) remove(peerId string) {
	t.mu.Lock()
	conn, ok := t.peers[peerId]
	delete(t.peers, peerId)
	t.mu.Unlock()
	if ok {
		if err := conn.Close(); err != nil {
			t.logger.Debug("could not close connection", "peer", peerId, "error", err)
		}
	}
}

// Handle applies one server event to the table. Events which do not concern negotiation are
// ignored.
func (t *Table) Handle(msg types.WebsocketMessage) error {
	switch msg.Event {
	case types.EventRoomUsers:
		var users []string
		if err := json.Unmarshal(msg.Data, &users); err != nil {
			return fmt.Errorf("could not decode %s: %w", msg.Event, err)
		}
		for _, peerId := range users {
			if err := t.offer(peerId); err != nil {
				t.logger.Warn("could not offer", "peer", peerId, "error", err)
			}
		}

	case types.EventUserDisconnected:
		user := types.UserDisconnected{}
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			return fmt.Errorf("could not decode %s: %w", msg.Event, err)
		}
		t.remove(user.UserId)

	case types.EventOffer, types.EventAnswer, types.EventICECandidate:
		signal := types.Signal{}
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			return fmt.Errorf("could not decode %s: %w", msg.Event, err)
		}
		return t.handleSignal(msg.Event, &signal)
	}
	return nil
}

func (t *Table) offer(peerId string) error {
	conn, created, err := t.getOrCreate(peerId)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	offer, err := conn.CreateOffer()
	if err != nil {
		t.remove(peerId)
		return err
	}
	return t.signaler.SendSignal(types.EventOffer, peerId, offer)
}

func (t *Table) handleSignal(event string, signal *types.Signal) error {
	payload := signal.Payload(event)
	if signal.From == "" || len(payload) == 0 {
		return nil
	}
	switch event {
	case types.EventOffer:
		conn, _, err := t.getOrCreate(signal.From)
		if err != nil {
			return err
		}
		answer, err := conn.AcceptOffer(payload)
		if err != nil {
			return fmt.Errorf("could not accept offer of %s: %w", signal.From, err)
		}
		return t.signaler.SendSignal(types.EventAnswer, signal.From, answer)

	case types.EventAnswer:
		conn, ok := t.get(signal.From)
		if !ok {
			t.logger.Debug("dropping answer of unknown peer", "peer", signal.From)
			return nil
		}
		return conn.AcceptAnswer(payload)

	case types.EventICECandidate:
		conn, ok := t.get(signal.From)
		if !ok {
			t.logger.Debug("dropping candidate of unknown peer", "peer", signal.From)
			return nil
		}
		return conn.AddCandidate(payload)
	}
	return nil
}

// SendAll writes data directly to every peer and returns the number of peers reached.
func (t *Table) SendAll(data []byte) int {
	t.mu.Lock()
	conns := make(map[string]Connection, len(t.peers))
	for id, conn := range t.peers {
		conns[id] = conn
	}
	t.mu.Unlock()
	sent := 0
	for id, conn := range conns {
		if err := conn.Send(data); err != nil {
			t.logger.Debug("could not send directly", "peer", id, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Close closes and forgets every connection.
func (t *Table) Close() {
	for _, peerId := range t.Peers() {
		t.remove(peerId)
	}
}
