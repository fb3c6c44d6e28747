// Package cv implements contextual values: typed cells bound to a keyset,
// a context handle, and a templated key name.
//
// A contextual value caches both the resolved name of its template and the
// typed payload found (or materialized) at that name. The cache is kept
// consistent by the layer coordinator's invalidation tiers and by explicit
// per-value sync. Tracked writes go through Set, which marks the value
// dirty for the coordinator's opportunistic refresh.
//
// A contextual value is not internally locked. Use it from one goroutine,
// or protect it externally; coordinator broadcasts serialize against each
// other through the coordinator's own lock.
package cv

import (
	"fmt"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/layer"
	"github.com/dshills/contour/internal/resolve"
)

// DefaultMeta is the metadata name holding a template's declared default.
const DefaultMeta = "default"

// Value is a typed cell bound to (keyset, handle, templated key).
type Value[T any] struct {
	ks       *keyset.KeySet
	handle   *layer.Handle
	template *keyset.Key
	codec    Codec[T]

	reg          layer.Registration
	resolvedName string
	cached       T
	dirty        bool
	closed       bool
}

// New binds a contextual value to ks through h using the given template
// key and codec. It registers with the coordinator and performs the
// implicit first resolve: if the resolved name is present in the keyset
// its value is adopted; otherwise the template's "default" metadata is
// materialized into the keyset. With neither, New fails with
// ErrMissingDefault.
//
// The keyset must outlive the value; the value only borrows it.
func New[T any](ks *keyset.KeySet, h *layer.Handle, template *keyset.Key, codec Codec[T]) (*Value[T], error) {
	v := &Value[T]{
		ks:       ks,
		handle:   h,
		template: template,
		codec:    codec,
	}
	if err := v.Sync(h.Coordinator().View()); err != nil {
		return nil, err
	}
	v.reg = h.Coordinator().Register(v)
	return v, nil
}

// NewString binds a string-typed contextual value.
func NewString(ks *keyset.KeySet, h *layer.Handle, template *keyset.Key) (*Value[string], error) {
	return New(ks, h, template, StringCodec())
}

// NewInt binds an integer-typed contextual value with strict parsing.
func NewInt(ks *keyset.KeySet, h *layer.Handle, template *keyset.Key) (*Value[int], error) {
	return New(ks, h, template, IntCodec())
}

// NewBool binds a boolean-typed contextual value.
func NewBool(ks *keyset.KeySet, h *layer.Handle, template *keyset.Key) (*Value[bool], error) {
	return New(ks, h, template, BoolCodec())
}

// Name returns the cached resolved name. It reflects the last resolve and
// performs no recomputation.
func (v *Value[T]) Name() string {
	return v.resolvedName
}

// Get returns the cached payload. Conversion failures surface at the point
// the payload was cached, never here.
func (v *Value[T]) Get() T {
	return v.cached
}

// Set writes the string form of val to the keyset at the resolved name,
// updates the cache, and marks the value dirty for the next opportunistic
// refresh.
func (v *Value[T]) Set(val T) error {
	s := v.codec.Format(val)

	old := ""
	if k := v.ks.Lookup(v.resolvedName); k != nil {
		old = k.Value()
	}
	if _, err := v.ks.Set(v.resolvedName, s); err != nil {
		return err
	}
	v.cached = val
	v.dirty = true

	if n := v.handle.Coordinator().Notifier(); n != nil {
		n.NotifySet(v.resolvedName, old, s)
	}
	return nil
}

// SyncCache performs an unconditional single-value full resolve: the name
// is recomputed against the current layer set, the keyset is consulted at
// the new name with the same adopt-or-materialize rule as construction,
// and the cache is overwritten. Clears the dirty flag.
func (v *Value[T]) SyncCache() error {
	return v.Sync(v.handle.Coordinator().View())
}

// Close unregisters the value from its coordinator. The keyset entry the
// value resolved to stays behind. Safe to call more than once.
func (v *Value[T]) Close() {
	if v.closed {
		return
	}
	v.closed = true
	v.handle.Coordinator().Unregister(v.reg)
}

// MarkDirty implements layer.Registered.
func (v *Value[T]) MarkDirty() {
	v.dirty = true
}

// Dirty implements layer.Registered.
func (v *Value[T]) Dirty() bool {
	return v.dirty
}

// SyncName recomputes the resolved name against view, leaving the cached
// payload untouched. Implements layer.Registered.
func (v *Value[T]) SyncName(view resolve.View) {
	v.resolvedName = resolve.Name(v.template.Name(), view)
}

// Sync performs a full resolve against view: recompute the name, then
// adopt the keyset entry there or materialize the template's default.
// Implements layer.Registered.
func (v *Value[T]) Sync(view resolve.View) error {
	name := resolve.Name(v.template.Name(), view)
	v.resolvedName = name

	k := v.ks.CascadingLookup(name)
	if k == nil {
		def, ok := v.template.Meta(DefaultMeta)
		if !ok {
			return fmt.Errorf("%w: %s (template %s)", ErrMissingDefault, name, v.template.Name())
		}
		nk, err := keyset.NewKey(name, keyset.WithValue(def))
		if err != nil {
			return err
		}
		v.ks.Insert(nk)
		k = nk
	}

	parsed, err := v.codec.Parse(k.Value())
	if err != nil {
		return &ConversionError{Name: name, Raw: k.Value(), Err: err}
	}
	v.cached = parsed
	v.dirty = false
	return nil
}

// LayerTag implements layer.Provider: the tag is the final segment of the
// value's resolved name.
func (v *Value[T]) LayerTag() string {
	return keyset.BaseName(v.resolvedName)
}

// LayerValue implements layer.Provider: the provided string is the cached
// value's string form.
func (v *Value[T]) LayerValue() string {
	return v.codec.Format(v.cached)
}

var (
	_ layer.Registered = (*Value[string])(nil)
	_ layer.Provider   = (*Value[string])(nil)
)
