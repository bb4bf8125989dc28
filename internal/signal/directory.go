package signal

import "sync"

// Channel is a live, addressable signaling connection bound to at most
// one peer id at a time. Send must never block: implementations return
// an error immediately when the channel is closed or its buffer is full.
type Channel interface {
	ID() string
	Send(v any) error
	Close() error
}

// Directory maps logical peer ids to open signaling channels. Its
// lifecycle is independent of the peer registry: entries appear when a
// channel announces an identity and vanish when that channel goes away.
type Directory struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewDirectory() *Directory {
	return &Directory{channels: make(map[string]Channel)}
}

// Bind associates peerID with ch, unconditionally replacing any prior
// binding (last registration wins). The evicted channel, if any, is
// returned; it is left open and receives no notification.
func (d *Directory) Bind(peerID string, ch Channel) Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.channels[peerID]
	d.channels[peerID] = ch
	return prev
}

func (d *Directory) Lookup(peerID string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.channels[peerID]
	return ch, ok
}

// Release removes the binding for peerID only if it still points at ch.
// A close racing a newer registration for the same id must not tear down
// the newer channel's entry.
func (d *Directory) Release(peerID string, ch Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.channels[peerID]
	if !ok || cur.ID() != ch.ID() {
		return false
	}
	delete(d.channels, peerID)
	return true
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.channels)
}
