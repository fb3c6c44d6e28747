package layer

// Handle is a thread-scoped facade over one Coordinator. It owns no data
// beyond the coordinator reference; it exists so that binding a contextual
// value only needs (keyset, handle, template) and so that distinct threads
// can be wired to distinct coordinators when independent context universes
// are wanted. Typically all handles share one coordinator.
//
// Cross-thread visibility of another handle's activations and writes is
// only guaranteed after an explicit SyncLayers, NotifyAllEvents, or
// NotifyKeySetUpdate call on the observing handle.
type Handle struct {
	coord *Coordinator
}

// NewHandle creates a handle backed by the given coordinator.
func NewHandle(c *Coordinator) *Handle {
	return &Handle{coord: c}
}

// Coordinator returns the backing coordinator.
func (h *Handle) Coordinator() *Coordinator {
	return h.coord
}

// Activate binds p's tag to p and forces a full resolve of every
// registered contextual value.
func (h *Handle) Activate(p Provider) error {
	return h.coord.Activate(p)
}

// Deactivate removes the binding for tag and forces a full resolve.
func (h *Handle) Deactivate(tag string) error {
	return h.coord.Deactivate(tag)
}

// SyncLayers re-reads active providers and recomputes resolved names.
func (h *Handle) SyncLayers() {
	h.coord.SyncLayers()
}

// NotifyAllEvents refreshes only dirty contextual values.
func (h *Handle) NotifyAllEvents() error {
	return h.coord.NotifyAllEvents()
}

// NotifyKeySetUpdate unconditionally refreshes every contextual value.
func (h *Handle) NotifyKeySetUpdate() error {
	return h.coord.NotifyKeySetUpdate()
}
