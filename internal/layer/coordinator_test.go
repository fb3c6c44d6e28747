package layer

import (
	"errors"
	"sync"
	"testing"

	"github.com/dshills/contour/internal/resolve"
)

// stubValue records broadcast calls for registry tests.
type stubValue struct {
	dirty     int  // MarkDirty calls
	nameSyncs int  // SyncName calls
	fullSyncs int  // Sync calls
	isDirty   bool // value reported by Dirty
	syncErr   error
}

func (s *stubValue) MarkDirty() {
	s.dirty++
	s.isDirty = true
}

func (s *stubValue) Dirty() bool {
	return s.isDirty
}

func (s *stubValue) SyncName(view resolve.View) {
	s.nameSyncs++
}

func (s *stubValue) Sync(view resolve.View) error {
	s.fullSyncs++
	s.isDirty = false
	return s.syncErr
}

// stubProvider is a fixed (tag, value) layer provider.
type stubProvider struct {
	tag string
	val string
}

func (p *stubProvider) LayerTag() string   { return p.tag }
func (p *stubProvider) LayerValue() string { return p.val }

func TestActivateBroadcastsToAll(t *testing.T) {
	c := NewCoordinator()
	a := &stubValue{}
	b := &stubValue{}
	c.Register(a)
	c.Register(b)

	if err := c.Activate(&stubProvider{tag: "id", val: "my"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	for _, s := range []*stubValue{a, b} {
		if s.dirty != 1 || s.fullSyncs != 1 {
			t.Errorf("stub got dirty=%d fullSyncs=%d, want 1/1", s.dirty, s.fullSyncs)
		}
	}

	if cur, ok := c.Current("id"); !ok || cur != "my" {
		t.Errorf("Current(id) = (%q, %v), want (my, true)", cur, ok)
	}
}

func TestActivateReplacesPerTag(t *testing.T) {
	c := NewCoordinator()

	if err := c.Activate(&stubProvider{tag: "id", val: "first"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := c.Activate(&stubProvider{tag: "id", val: "second"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if cur, _ := c.Current("id"); cur != "second" {
		t.Errorf("Current(id) = %q, want second (last activation wins)", cur)
	}
	if tags := c.Tags(); len(tags) != 1 {
		t.Errorf("Tags() = %v, want one tag", tags)
	}
}

func TestSyncLayersRecapturesAndSyncsNamesOnly(t *testing.T) {
	c := NewCoordinator()
	v := &stubValue{}
	c.Register(v)

	p := &stubProvider{tag: "id", val: "old"}
	if err := c.Activate(p); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// Provider value changed without going through Activate.
	p.val = "new"
	if cur, _ := c.Current("id"); cur != "old" {
		t.Fatalf("Current(id) = %q before SyncLayers, want old", cur)
	}

	c.SyncLayers()

	if cur, _ := c.Current("id"); cur != "new" {
		t.Errorf("Current(id) = %q after SyncLayers, want new", cur)
	}
	if v.nameSyncs != 1 {
		t.Errorf("nameSyncs = %d, want 1", v.nameSyncs)
	}
	if v.fullSyncs != 1 { // only from Activate
		t.Errorf("fullSyncs = %d, want 1 (SyncLayers must not touch payloads)", v.fullSyncs)
	}
}

func TestNotifyAllEventsOnlyDirty(t *testing.T) {
	c := NewCoordinator()
	clean := &stubValue{}
	dirty := &stubValue{isDirty: true}
	c.Register(clean)
	c.Register(dirty)

	if err := c.NotifyAllEvents(); err != nil {
		t.Fatalf("NotifyAllEvents: %v", err)
	}

	if clean.fullSyncs != 0 {
		t.Errorf("clean value synced %d times, want 0", clean.fullSyncs)
	}
	if dirty.fullSyncs != 1 {
		t.Errorf("dirty value synced %d times, want 1", dirty.fullSyncs)
	}
	if dirty.isDirty {
		t.Error("dirty flag not cleared by refresh")
	}
}

func TestNotifyKeySetUpdateSyncsEverything(t *testing.T) {
	c := NewCoordinator()
	a := &stubValue{}
	b := &stubValue{isDirty: true}
	c.Register(a)
	c.Register(b)

	if err := c.NotifyKeySetUpdate(); err != nil {
		t.Fatalf("NotifyKeySetUpdate: %v", err)
	}

	if a.fullSyncs != 1 || b.fullSyncs != 1 {
		t.Errorf("fullSyncs = %d/%d, want 1/1", a.fullSyncs, b.fullSyncs)
	}
}

func TestBroadcastAggregatesErrors(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("boom")
	c.Register(&stubValue{syncErr: boom})
	c.Register(&stubValue{})

	err := c.NotifyKeySetUpdate()
	if !errors.Is(err, boom) {
		t.Errorf("NotifyKeySetUpdate = %v, want wrapped boom", err)
	}
}

func TestUnregisterStopsBroadcasts(t *testing.T) {
	c := NewCoordinator()
	v := &stubValue{}
	reg := c.Register(v)

	c.Unregister(reg)
	if err := c.NotifyKeySetUpdate(); err != nil {
		t.Fatalf("NotifyKeySetUpdate: %v", err)
	}
	if v.fullSyncs != 0 {
		t.Errorf("unregistered value synced %d times, want 0", v.fullSyncs)
	}

	// Double unregister is harmless.
	c.Unregister(reg)
}

func TestSlotReuseInvalidatesStaleRegistration(t *testing.T) {
	c := NewCoordinator()
	first := &stubValue{}
	stale := c.Register(first)
	c.Unregister(stale)

	second := &stubValue{}
	c.Register(second) // reuses the freed slot with a new generation

	// A stale registration must not evict the new occupant.
	c.Unregister(stale)

	if err := c.NotifyKeySetUpdate(); err != nil {
		t.Fatalf("NotifyKeySetUpdate: %v", err)
	}
	if second.fullSyncs != 1 {
		t.Errorf("second value synced %d times, want 1", second.fullSyncs)
	}
}

func TestViewSnapshot(t *testing.T) {
	c := NewCoordinator()
	if err := c.Activate(&stubProvider{tag: "id", val: "my"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	view := c.View()
	if v, ok := view("id"); !ok || v != "my" {
		t.Errorf("view(id) = (%q, %v), want (my, true)", v, ok)
	}
	if _, ok := view("other"); ok {
		t.Error("view(other) unexpectedly active")
	}

	// Snapshot is detached from later mutation.
	if err := c.Activate(&stubProvider{tag: "id", val: "changed"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if v, _ := view("id"); v != "my" {
		t.Errorf("stale view(id) = %q, want my", v)
	}
}

func TestConcurrentRegisterAndBroadcast(t *testing.T) {
	c := NewCoordinator()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				reg := c.Register(&stubValue{})
				_ = c.NotifyKeySetUpdate()
				c.SyncLayers()
				c.Unregister(reg)
			}
		}()
	}
	wg.Wait()
}

func TestHandleDelegates(t *testing.T) {
	c := NewCoordinator()
	h := NewHandle(c)
	v := &stubValue{}
	c.Register(v)

	if h.Coordinator() != c {
		t.Fatal("Coordinator() does not return the backing coordinator")
	}
	if err := h.Activate(&stubProvider{tag: "id", val: "x"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	h.SyncLayers()
	if err := h.NotifyAllEvents(); err != nil {
		t.Fatalf("NotifyAllEvents: %v", err)
	}
	if err := h.NotifyKeySetUpdate(); err != nil {
		t.Fatalf("NotifyKeySetUpdate: %v", err)
	}
	if err := h.Deactivate("id"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if v.fullSyncs == 0 {
		t.Error("handle operations never reached the registered value")
	}
}
