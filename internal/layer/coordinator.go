// Package layer implements the shared layer coordinator and the per-thread
// context handle for contextual key resolution.
//
// The coordinator keeps the registry of active layer bindings (tag to
// provider) and of every contextual value bound through it, and drives the
// four cache-invalidation tiers: activation (forced full resolve of
// everything), layer sync (names only), opportunistic notify (dirty values
// only), and keyset-update notify (unconditional full resolve).
package layer

import (
	"errors"
	"sync"

	"github.com/dshills/contour/internal/notify"
	"github.com/dshills/contour/internal/resolve"
)

// Provider supplies the current substitution string for a layer tag.
// A contextual value activated as a layer exposes the final segment of its
// resolved name as its tag and its cached value as its string.
type Provider interface {
	// LayerTag returns the placeholder tag this provider binds.
	LayerTag() string

	// LayerValue returns the provider's current string.
	LayerValue() string
}

// Registered is implemented by contextual values bound through a
// Coordinator. The coordinator invokes these during broadcasts while
// holding its registry lock, so implementations must not call back into
// the coordinator.
type Registered interface {
	// MarkDirty flags the value for the next opportunistic refresh.
	MarkDirty()

	// Dirty reports whether a tracked write or activation is pending.
	Dirty() bool

	// SyncName recomputes the value's resolved name against view,
	// leaving the cached payload untouched.
	SyncName(view resolve.View)

	// Sync performs a full resolve: name, then payload, clearing the
	// dirty flag.
	Sync(view resolve.View) error
}

// Registration identifies a registered contextual value inside the
// coordinator's slot arena. The zero Registration is invalid.
type Registration struct {
	index int
	gen   uint64
}

type binding struct {
	provider Provider
	current  string // captured at activation or last layer sync
}

type slot struct {
	value  Registered
	gen    uint64
	active bool
}

// Coordinator is the shared registry of active layer bindings and of every
// contextual value bound against it.
//
// All registry mutations and broadcast operations hold one lock for their
// full duration, so no contextual value observes a half-updated layer set.
type Coordinator struct {
	mu       sync.Mutex
	bindings map[string]binding
	slots    []slot
	free     []int
	notifier *notify.Notifier
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier attaches a change notifier. Activation and reload
// broadcasts publish events through it.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		bindings: make(map[string]binding),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate inserts or replaces the binding for p's tag, capturing p's
// current string, then forces a full resolve of every registered value.
// The last activation for a tag wins.
//
// This is the authoritative, expensive operation; use it whenever the
// binding in force changes.
func (c *Coordinator) Activate(p Provider) error {
	tag := p.LayerTag()
	cur := p.LayerValue()

	c.mu.Lock()
	c.bindings[tag] = binding{provider: p, current: cur}
	view := c.viewLocked()

	var errs []error
	for i := range c.slots {
		if !c.slots[i].active {
			continue
		}
		v := c.slots[i].value
		v.MarkDirty()
		if err := v.Sync(view); err != nil {
			errs = append(errs, err)
		}
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.NotifyActivate(tag, cur)
	}
	return errors.Join(errs...)
}

// Deactivate removes the binding for tag, if any, then forces a full
// resolve of every registered value. Placeholders for the tag degrade back
// to the wildcard segment.
func (c *Coordinator) Deactivate(tag string) error {
	c.mu.Lock()
	if _, ok := c.bindings[tag]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.bindings, tag)
	view := c.viewLocked()

	var errs []error
	for i := range c.slots {
		if !c.slots[i].active {
			continue
		}
		v := c.slots[i].value
		v.MarkDirty()
		if err := v.Sync(view); err != nil {
			errs = append(errs, err)
		}
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.NotifyActivate(tag, "")
	}
	return errors.Join(errs...)
}

// SyncLayers re-reads each active provider's current string and recomputes
// every registered value's resolved name. Cached payloads are left
// untouched: the binding's path may have shifted, but payloads are assumed
// valid until an explicit sync or activation says otherwise.
func (c *Coordinator) SyncLayers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tag, b := range c.bindings {
		b.current = b.provider.LayerValue()
		c.bindings[tag] = b
	}
	view := c.viewLocked()

	for i := range c.slots {
		if !c.slots[i].active {
			continue
		}
		c.slots[i].value.SyncName(view)
	}
}

// NotifyAllEvents refreshes name and payload of only the values whose
// dirty flag is set. Values untouched by the tracked write or activation
// path are left stale: the coordinator cannot see untracked external
// mutation, so it trusts its dirty bookkeeping.
func (c *Coordinator) NotifyAllEvents() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.viewLocked()
	var errs []error
	for i := range c.slots {
		if !c.slots[i].active || !c.slots[i].value.Dirty() {
			continue
		}
		if err := c.slots[i].value.Sync(view); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyKeySetUpdate forces a full resolve of every registered value,
// regardless of dirty state. Use it after the backing keyset was replaced
// or bulk-refreshed by an external source.
func (c *Coordinator) NotifyKeySetUpdate() error {
	c.mu.Lock()
	view := c.viewLocked()
	var errs []error
	for i := range c.slots {
		if !c.slots[i].active {
			continue
		}
		if err := c.slots[i].value.Sync(view); err != nil {
			errs = append(errs, err)
		}
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.NotifyReload()
	}
	return errors.Join(errs...)
}

// Register adds a contextual value to the broadcast arena and returns its
// registration. The coordinator never owns the value.
func (c *Coordinator) Register(v Registered) Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.free); n > 0 {
		i := c.free[n-1]
		c.free = c.free[:n-1]
		c.slots[i].value = v
		c.slots[i].gen++
		c.slots[i].active = true
		return Registration{index: i, gen: c.slots[i].gen}
	}

	c.slots = append(c.slots, slot{value: v, gen: 1, active: true})
	return Registration{index: len(c.slots) - 1, gen: 1}
}

// Unregister removes a previously registered value. A stale registration
// (slot since reused) is ignored.
func (c *Coordinator) Unregister(r Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.index < 0 || r.index >= len(c.slots) {
		return
	}
	s := &c.slots[r.index]
	if !s.active || s.gen != r.gen {
		return
	}
	s.active = false
	s.value = nil
	c.free = append(c.free, r.index)
}

// View returns a point-in-time snapshot of the active layer strings,
// usable outside the coordinator's lock.
func (c *Coordinator) View() resolve.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Current returns the captured string for an active tag.
func (c *Coordinator) Current(tag string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[tag]
	return b.current, ok
}

// Tags returns the currently bound layer tags.
func (c *Coordinator) Tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tags := make([]string, 0, len(c.bindings))
	for tag := range c.bindings {
		tags = append(tags, tag)
	}
	return tags
}

// Notifier returns the attached change notifier, or nil.
func (c *Coordinator) Notifier() *notify.Notifier {
	return c.notifier
}

// viewLocked snapshots the captured layer strings. Callers must hold mu.
func (c *Coordinator) viewLocked() resolve.View {
	m := make(map[string]string, len(c.bindings))
	for tag, b := range c.bindings {
		m[tag] = b.current
	}
	return func(tag string) (string, bool) {
		v, ok := m[tag]
		return v, ok
	}
}
