package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const sendBufferSize = 32

var (
	errChannelClosed = errors.New("signaling channel closed")
	errChannelFull   = errors.New("signaling channel send buffer full")
)

// wsChannel adapts one websocket connection to signal.Channel. Writes go
// through a buffered queue drained by a single pump goroutine, so Send
// never blocks: a full queue or closed channel is an immediate error,
// which the relay treats as delivery failure.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
	log  *logrus.Logger
}

func newWSChannel(conn *websocket.Conn, log *logrus.Logger) *wsChannel {
	ch := &wsChannel{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, sendBufferSize),
		done: make(chan struct{}),
		log:  log,
	}
	go ch.writePump()
	return ch
}

func (c *wsChannel) ID() string { return c.id }

func (c *wsChannel) Send(v any) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- v:
		return nil
	case <-c.done:
		return errChannelClosed
	default:
		return errChannelFull
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) writePump() {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			if err := c.conn.WriteJSON(v); err != nil {
				c.log.Debugf("Write failed on channel %s: %v", c.id, err)
				_ = c.Close()
				return
			}
		}
	}
}
