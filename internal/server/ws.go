package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/peerbeam/beacon/internal/journal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	ch := newWSChannel(conn, s.log)
	s.trackChannel(ch)
	s.log.Infof("Signaling channel %s opened (%s)", ch.ID(), r.RemoteAddr)

	go s.readLoop(conn, ch)
}

func (s *Server) readLoop(conn *websocket.Conn, ch *wsChannel) {
	sess := s.relay.NewSession(ch)
	defer func() {
		s.relay.CloseSession(sess)
		if id := sess.PeerID(); id != "" {
			s.jour.Record(journal.KindUnbind, id, ch.ID())
		}
		_ = ch.Close()
		s.untrackChannel(ch)
		s.log.Infof("Signaling channel %s closed", ch.ID())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		before := sess.PeerID()
		s.relay.HandleMessage(sess, raw)
		if after := sess.PeerID(); after != "" && after != before {
			s.jour.Record(journal.KindBind, after, ch.ID())
		}
	}
}

func (s *Server) trackChannel(ch *wsChannel) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	s.channels[ch.ID()] = ch
}

func (s *Server) untrackChannel(ch *wsChannel) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	delete(s.channels, ch.ID())
}

func (s *Server) closeChannels() {
	s.chMu.Lock()
	open := make([]*wsChannel, 0, len(s.channels))
	for _, ch := range s.channels {
		open = append(open, ch)
	}
	s.chMu.Unlock()

	for _, ch := range open {
		_ = ch.Close()
	}
}
