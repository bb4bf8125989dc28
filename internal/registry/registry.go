package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Peer is a discovery record for one network participant. The id is an
// opaque string chosen by the peer itself; a record exists independently
// of any signaling connection the peer may hold.
type Peer struct {
	ID              string
	IP              string
	Port            int
	Name            string
	Version         string
	Capabilities    []string
	RegisteredAt    time.Time
	LastSeen        time.Time
	UpdatedAt       time.Time
	ConnectionCount int

	seq uint64
}

// Summary is the reduced view sent to signaling channels right after they
// register.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Registration is the validated input to Register.
type Registration struct {
	ID           string
	IP           string
	Port         int
	Name         string
	Capabilities []string
	Version      string
}

type Filter struct {
	ActiveOnly bool
	Capability string
	Version    string
}

type Page struct {
	Limit  int
	Offset int
}

type Options struct {
	// ActiveWindow bounds how stale lastSeen may be for a peer to count
	// as active. Distinct from the sweeper's inactivity threshold.
	ActiveWindow    time.Duration
	DefaultPageSize int
	MaxPageSize     int
	Clock           func() time.Time
	Logger          *logrus.Logger
}

// Registry owns every peer record. All access goes through one RWMutex:
// reads may run together, writes exclude everything else, so a listing
// never observes a record mid-update.
type Registry struct {
	mu      sync.RWMutex
	peers   map[string]*Peer
	nextSeq uint64

	activeWindow    time.Duration
	defaultPageSize int
	maxPageSize     int
	clock           func() time.Time
	log             *logrus.Logger
}

func New(opts Options) *Registry {
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = 2 * time.Minute
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Registry{
		peers:           make(map[string]*Peer),
		activeWindow:    opts.ActiveWindow,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		clock:           opts.Clock,
		log:             opts.Logger,
	}
}

// Register validates reg and upserts the record. Re-registering an
// existing id keeps its original RegisteredAt and bumps ConnectionCount;
// a fresh id starts at ConnectionCount 1. Returns the stored record.
func (r *Registry) Register(reg Registration) (Peer, error) {
	if violations := validateRegistration(reg); len(violations) > 0 {
		return Peer{}, &ValidationError{Violations: violations}
	}

	if reg.Name == "" {
		reg.Name = defaultName(reg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	p, exists := r.peers[reg.ID]
	if exists {
		p.IP = reg.IP
		p.Port = reg.Port
		p.Name = reg.Name
		p.Version = reg.Version
		p.Capabilities = cloneCaps(reg.Capabilities)
		p.ConnectionCount++
	} else {
		r.nextSeq++
		p = &Peer{
			ID:              reg.ID,
			IP:              reg.IP,
			Port:            reg.Port,
			Name:            reg.Name,
			Version:         reg.Version,
			Capabilities:    cloneCaps(reg.Capabilities),
			RegisteredAt:    now,
			ConnectionCount: 1,
			seq:             r.nextSeq,
		}
		r.peers[reg.ID] = p
	}
	p.LastSeen = now
	p.UpdatedAt = now

	r.log.Debugf("Registered peer %s (connections: %d)", p.ID, p.ConnectionCount)
	return copyPeer(p), nil
}

// Heartbeat refreshes lastSeen for a known peer and returns the new value.
func (r *Registry) Heartbeat(id string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return time.Time{}, &NotFoundError{ID: id}
	}
	now := r.clock()
	p.LastSeen = now
	p.UpdatedAt = now
	return now, nil
}

func (r *Registry) Get(id string) (Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, &NotFoundError{ID: id}
	}
	return copyPeer(p), nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.peers, id)
	return nil
}

// List returns the filtered records sorted by lastSeen descending (ties
// by registration order) and paginated. The returned total is the
// filtered count before pagination.
func (r *Registry) List(f Filter, page Page) ([]Peer, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	matched := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if f.ActiveOnly && now.Sub(p.LastSeen) >= r.activeWindow {
			continue
		}
		if f.Capability != "" && !hasCapability(p, f.Capability) {
			continue
		}
		if f.Version != "" && p.Version != f.Version {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastSeen.Equal(matched[j].LastSeen) {
			return matched[i].LastSeen.After(matched[j].LastSeen)
		}
		return matched[i].seq < matched[j].seq
	})

	total := len(matched)

	limit := page.Limit
	if limit <= 0 {
		limit = r.defaultPageSize
	}
	if limit > r.maxPageSize {
		limit = r.maxPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]Peer, 0, end-offset)
	for _, p := range matched[offset:end] {
		out = append(out, copyPeer(p))
	}
	return out, total
}

// Snapshot is the read-only view handed to freshly registered signaling
// channels. It never mutates the registry.
func (r *Registry) Snapshot() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, Summary{
			ID:           p.ID,
			Name:         p.Name,
			Capabilities: cloneCaps(p.Capabilities),
			LastSeen:     p.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts reports the total number of records and how many fall inside the
// active window.
func (r *Registry) Counts() (total, active int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	total = len(r.peers)
	for _, p := range r.peers {
		if now.Sub(p.LastSeen) < r.activeWindow {
			active++
		}
	}
	return total, active
}

// Sweep removes every record whose lastSeen is older than threshold
// relative to now and returns the removed ids. The registry lock is held
// for the whole pass; fine for the peer-set sizes this server targets.
func (r *Registry) Sweep(now time.Time, threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > threshold {
			delete(r.peers, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		r.log.Infof("Swept %d inactive peers", len(removed))
	}
	return removed
}

func defaultName(id string) string {
	if len(id) > 8 {
		return "peer-" + id[:8]
	}
	return "peer-" + id
}

func hasCapability(p *Peer, cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func cloneCaps(caps []string) []string {
	if caps == nil {
		return nil
	}
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

func copyPeer(p *Peer) Peer {
	cp := *p
	cp.Capabilities = cloneCaps(p.Capabilities)
	return cp
}
