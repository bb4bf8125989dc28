package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *Registry {
	return New(Options{Clock: clock.Now})
}

func validRegistration(id string) Registration {
	return Registration{
		ID:   id,
		IP:   "192.168.1.10",
		Port: 4001,
	}
}

func TestRegisterValidationCollectsAllViolations(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	_, err := reg.Register(Registration{ID: "short", IP: "999.300.0.1", Port: 70000})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Violations) != 3 {
		t.Errorf("expected 3 violations, got %d: %v", len(ve.Violations), ve.Violations)
	}
}

func TestRegisterValidationShortID(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	_, err := reg.Register(Registration{ID: "abc", IP: "10.0.0.1", Port: 8080})
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Violations) != 1 {
		t.Errorf("expected 1 violation, got %v", ve.Violations)
	}
}

func TestRegisterValidationMissingFields(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	_, err := reg.Register(Registration{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// id missing, ip missing, port out of range
	if len(ve.Violations) != 3 {
		t.Errorf("expected 3 violations, got %v", ve.Violations)
	}
}

func TestRegisterAcceptsLooseIPv6(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	if _, err := reg.Register(Registration{ID: "peer-ipv6-test", IP: "fe80::1", Port: 4001}); err != nil {
		t.Fatalf("expected IPv6 address to be accepted, got %v", err)
	}
}

func TestReRegisterPreservesRegisteredAt(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	first, err := reg.Register(validRegistration("peer-aaaa-0001"))
	if err != nil {
		t.Fatal(err)
	}
	if first.ConnectionCount != 1 {
		t.Errorf("expected ConnectionCount 1, got %d", first.ConnectionCount)
	}

	clock.Advance(30 * time.Second)

	second, err := reg.Register(validRegistration("peer-aaaa-0001"))
	if err != nil {
		t.Fatal(err)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("RegisteredAt changed on re-registration: %v -> %v", first.RegisteredAt, second.RegisteredAt)
	}
	if second.ConnectionCount != 2 {
		t.Errorf("expected ConnectionCount 2, got %d", second.ConnectionCount)
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Error("expected LastSeen to advance on re-registration")
	}

	total, _ := reg.Counts()
	if total != 1 {
		t.Errorf("expected 1 record, got %d", total)
	}
}

func TestRegisterDefaultName(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	p, err := reg.Register(validRegistration("abcdefghij"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "peer-abcdefgh" {
		t.Errorf("expected default name peer-abcdefgh, got %q", p.Name)
	}
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	p, err := reg.Register(validRegistration("peer-aaaa-0001"))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	lastSeen, err := reg.Heartbeat("peer-aaaa-0001")
	if err != nil {
		t.Fatal(err)
	}
	if !lastSeen.After(p.LastSeen) {
		t.Error("expected heartbeat to advance lastSeen")
	}
}

func TestHeartbeatUnknownPeer(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	_, err := reg.Heartbeat("peer-never-seen")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestGetAndDelete(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	if _, err := reg.Get("peer-aaaa-0001"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if _, err := reg.Register(validRegistration("peer-aaaa-0001")); err != nil {
		t.Fatal(err)
	}

	p, err := reg.Get("peer-aaaa-0001")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "peer-aaaa-0001" {
		t.Errorf("unexpected peer: %+v", p)
	}

	if err := reg.Delete("peer-aaaa-0001"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete("peer-aaaa-0001"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestActiveWindowShorterThanSweepThreshold(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	if _, err := reg.Register(validRegistration("peer-aaaa-0001")); err != nil {
		t.Fatal(err)
	}

	// 3 minutes old: outside the 2m active window, inside the 5m sweep
	// threshold.
	clock.Advance(3 * time.Minute)

	peers, total := reg.List(Filter{ActiveOnly: true}, Page{})
	if total != 0 || len(peers) != 0 {
		t.Errorf("expected peer excluded from active listing, got %d", total)
	}

	removed := reg.Sweep(clock.Now(), 5*time.Minute)
	if len(removed) != 0 {
		t.Errorf("expected sweep to leave 3m-old peer, removed %v", removed)
	}

	if _, err := reg.Get("peer-aaaa-0001"); err != nil {
		t.Errorf("peer should still exist: %v", err)
	}
}

func TestSweepBoundary(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	if _, err := reg.Register(validRegistration("peer-old-000001")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2*time.Second + 4*time.Minute + 57*time.Second) // old peer now 4m59s stale
	if _, err := reg.Register(validRegistration("peer-new-000001")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second) // old: 5m1s, new: 2s

	removed := reg.Sweep(clock.Now(), 5*time.Minute)
	if len(removed) != 1 || removed[0] != "peer-old-000001" {
		t.Errorf("expected only peer-old-000001 removed, got %v", removed)
	}
	if _, err := reg.Get("peer-new-000001"); err != nil {
		t.Errorf("fresh peer should survive sweep: %v", err)
	}
}

func TestSweepBoundaryExactThresholdKept(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	if _, err := reg.Register(validRegistration("peer-aaaa-0001")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(4*time.Minute + 59*time.Second)

	if removed := reg.Sweep(clock.Now(), 5*time.Minute); len(removed) != 0 {
		t.Errorf("peer at 4m59s must not be swept, removed %v", removed)
	}
}

func TestListPagination(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	for i := 0; i < 120; i++ {
		if _, err := reg.Register(validRegistration(fmt.Sprintf("peer-%03d-test", i))); err != nil {
			t.Fatal(err)
		}
	}

	peers, total := reg.List(Filter{}, Page{Limit: 50, Offset: 0})
	if total != 120 {
		t.Errorf("expected total 120, got %d", total)
	}
	if len(peers) != 50 {
		t.Errorf("expected 50 peers, got %d", len(peers))
	}

	peers, total = reg.List(Filter{}, Page{Limit: 50, Offset: 100})
	if total != 120 {
		t.Errorf("expected total 120, got %d", total)
	}
	if len(peers) != 20 {
		t.Errorf("expected 20 peers at offset 100, got %d", len(peers))
	}

	peers, _ = reg.List(Filter{}, Page{Limit: 50, Offset: 200})
	if len(peers) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(peers))
	}
}

func TestListLimitCapped(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	for i := 0; i < 120; i++ {
		if _, err := reg.Register(validRegistration(fmt.Sprintf("peer-%03d-test", i))); err != nil {
			t.Fatal(err)
		}
	}

	peers, _ := reg.List(Filter{}, Page{Limit: 500})
	if len(peers) != 100 {
		t.Errorf("expected hard cap of 100, got %d", len(peers))
	}

	peers, _ = reg.List(Filter{}, Page{})
	if len(peers) != 50 {
		t.Errorf("expected default limit of 50, got %d", len(peers))
	}
}

func TestListSortedByLastSeenDescending(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	if _, err := reg.Register(validRegistration("peer-first-0001")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := reg.Register(validRegistration("peer-second-001")); err != nil {
		t.Fatal(err)
	}

	peers, _ := reg.List(Filter{}, Page{})
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[0].ID != "peer-second-001" {
		t.Errorf("expected most recently seen peer first, got %s", peers[0].ID)
	}
}

func TestListTiesBrokenByInsertionOrder(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	ids := []string{"peer-cccc-0001", "peer-aaaa-0001", "peer-bbbb-0001"}
	for _, id := range ids {
		if _, err := reg.Register(validRegistration(id)); err != nil {
			t.Fatal(err)
		}
	}

	peers, _ := reg.List(Filter{}, Page{})
	for i, id := range ids {
		if peers[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, peers[i].ID)
		}
	}
}

func TestListCapabilityAndVersionFilters(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	a := validRegistration("peer-aaaa-0001")
	a.Capabilities = []string{"relay", "storage"}
	a.Version = "1.2.0"
	b := validRegistration("peer-bbbb-0001")
	b.Capabilities = []string{"storage"}
	b.Version = "1.3.0"
	for _, r := range []Registration{a, b} {
		if _, err := reg.Register(r); err != nil {
			t.Fatal(err)
		}
	}

	peers, total := reg.List(Filter{Capability: "relay"}, Page{})
	if total != 1 || peers[0].ID != "peer-aaaa-0001" {
		t.Errorf("capability filter failed: total=%d", total)
	}

	peers, total = reg.List(Filter{Version: "1.3.0"}, Page{})
	if total != 1 || peers[0].ID != "peer-bbbb-0001" {
		t.Errorf("version filter failed: total=%d", total)
	}

	_, total = reg.List(Filter{Capability: "storage"}, Page{})
	if total != 2 {
		t.Errorf("expected both peers to match storage, got %d", total)
	}
}

func TestConcurrentRegistrations(t *testing.T) {
	reg := newTestRegistry(newFakeClock())

	var wg sync.WaitGroup
	errCh := make(chan error, 1000)
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Register(validRegistration(fmt.Sprintf("peer-%04d-conc", i)))
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent registration failed: %v", err)
		}
	}

	total, _ := reg.Counts()
	if total != 1000 {
		t.Errorf("expected 1000 records after concurrent registrations, got %d", total)
	}
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	p, err := reg.Register(validRegistration("peer-aaaa-0001"))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	snap := reg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(snap))
	}
	if !snap[0].LastSeen.Equal(p.LastSeen) {
		t.Error("snapshot must not refresh lastSeen")
	}

	got, _ := reg.Get("peer-aaaa-0001")
	if !got.LastSeen.Equal(p.LastSeen) {
		t.Error("snapshot mutated the stored record")
	}
}
