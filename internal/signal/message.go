package signal

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypePeerOffer    MessageType = "peer_offer"
	TypePeerAnswer   MessageType = "peer_answer"
	TypeIceCandidate MessageType = "ice_candidate"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
	TypePeerList     MessageType = "peer_list"
)

// Message is an inbound signaling frame, parsed into its variant.
type Message interface {
	Type() MessageType
}

type Register struct {
	PeerID string `json:"peerId"`
}

func (Register) Type() MessageType { return TypeRegister }

type PeerOffer struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

func (PeerOffer) Type() MessageType { return TypePeerOffer }

type PeerAnswer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

func (PeerAnswer) Type() MessageType { return TypePeerAnswer }

type IceCandidate struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

func (IceCandidate) Type() MessageType { return TypeIceCandidate }

type Ping struct{}

func (Ping) Type() MessageType { return TypePing }

// Parse decodes one frame into its tagged variant, checking the fields
// each variant cannot do without. Unknown or malformed frames come back
// as an error; the relay drops them without replying.
func Parse(raw []byte) (Message, error) {
	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case TypeRegister:
		var m Register
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed register: %w", err)
		}
		if m.PeerID == "" {
			return nil, fmt.Errorf("register: peerId is required")
		}
		return m, nil
	case TypePeerOffer:
		var m PeerOffer
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed peer_offer: %w", err)
		}
		if err := checkRoute(m.From, m.To); err != nil {
			return nil, fmt.Errorf("peer_offer: %w", err)
		}
		return m, nil
	case TypePeerAnswer:
		var m PeerAnswer
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed peer_answer: %w", err)
		}
		if err := checkRoute(m.From, m.To); err != nil {
			return nil, fmt.Errorf("peer_answer: %w", err)
		}
		return m, nil
	case TypeIceCandidate:
		var m IceCandidate
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed ice_candidate: %w", err)
		}
		if err := checkRoute(m.From, m.To); err != nil {
			return nil, fmt.Errorf("ice_candidate: %w", err)
		}
		return m, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func checkRoute(from, to string) error {
	if from == "" {
		return fmt.Errorf("from is required")
	}
	if to == "" {
		return fmt.Errorf("to is required")
	}
	return nil
}

// Pong is the reply to a ping.
type Pong struct {
	Type MessageType `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Forward is an offer/answer/candidate relayed to its target. Only the
// payload field matching Type is set; the payload bytes pass through
// untouched.
type Forward struct {
	Type      MessageType     `json:"type"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
