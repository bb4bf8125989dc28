package signal

import (
	"github.com/sirupsen/logrus"

	"github.com/peerbeam/beacon/internal/registry"
)

// Relay routes signaling frames between channels. It answers pings and
// registrations locally and forwards offer/answer/candidate frames to
// the channel the directory holds for the target peer. Forwarding is
// at-most-once: an unreachable target is logged and the frame dropped,
// with no feedback to the sender.
type Relay struct {
	dir *Directory
	reg *registry.Registry
	log *logrus.Logger
}

func NewRelay(dir *Directory, reg *registry.Registry, log *logrus.Logger) *Relay {
	if log == nil {
		log = logrus.New()
	}
	return &Relay{dir: dir, reg: reg, log: log}
}

// Session tracks one channel through the connected -> registered ->
// closed lifecycle. A session starts anonymous; it gains a peer id when
// the channel sends a register frame.
type Session struct {
	ch     Channel
	peerID string
}

func (r *Relay) NewSession(ch Channel) *Session {
	return &Session{ch: ch}
}

func (s *Session) PeerID() string {
	return s.peerID
}

// HandleMessage processes one inbound frame for s. Malformed and unknown
// frames are logged and dropped without a reply.
func (r *Relay) HandleMessage(s *Session, raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		r.log.Warnf("Dropping signaling frame from channel %s: %v", s.ch.ID(), err)
		return
	}

	switch m := msg.(type) {
	case Register:
		r.handleRegister(s, m)
	case PeerOffer:
		r.forward(m.To, Forward{Type: TypePeerOffer, From: m.From, Offer: m.Offer})
	case PeerAnswer:
		r.forward(m.To, Forward{Type: TypePeerAnswer, From: m.From, Answer: m.Answer})
	case IceCandidate:
		r.forward(m.To, Forward{Type: TypeIceCandidate, From: m.From, Candidate: m.Candidate})
	case Ping:
		if err := s.ch.Send(NewPong()); err != nil {
			r.log.Debugf("Failed to send pong on channel %s: %v", s.ch.ID(), err)
		}
	}
}

func (r *Relay) handleRegister(s *Session, m Register) {
	prev := r.dir.Bind(m.PeerID, s.ch)
	s.peerID = m.PeerID
	if prev != nil && prev.ID() != s.ch.ID() {
		// Last registration wins. The old channel stays open but is no
		// longer addressable; it is not notified.
		r.log.Infof("Peer %s re-registered on channel %s, evicting channel %s", m.PeerID, s.ch.ID(), prev.ID())
	}
	r.log.Infof("Channel %s registered as peer %s", s.ch.ID(), m.PeerID)

	snapshot := struct {
		Type  MessageType        `json:"type"`
		Peers []registry.Summary `json:"peers"`
	}{
		Type:  TypePeerList,
		Peers: r.reg.Snapshot(),
	}
	if err := s.ch.Send(snapshot); err != nil {
		r.log.Warnf("Failed to send peer list to %s: %v", m.PeerID, err)
	}
}

// CloseSession finishes the lifecycle for s. The directory entry is
// removed only if it still points at this session's channel, so a close
// racing a newer registration leaves the newer binding intact.
func (r *Relay) CloseSession(s *Session) {
	if s.peerID == "" {
		return
	}
	if r.dir.Release(s.peerID, s.ch) {
		r.log.Infof("Peer %s unbound from signaling directory", s.peerID)
	}
}

func (r *Relay) forward(to string, msg Forward) {
	ch, ok := r.dir.Lookup(to)
	if !ok {
		r.log.Warnf("Delivery failure: no signaling channel for peer %s (%s)", to, msg.Type)
		return
	}
	if err := ch.Send(msg); err != nil {
		r.log.Warnf("Delivery failure: peer %s unreachable (%s): %v", to, msg.Type, err)
	}
}
