// Package keyset provides the key and keyset model for the contour
// configuration store.
//
// A key is a named, valued, metadata-bearing configuration leaf. Names are
// slash-separated paths (e.g. "/editor/tab/size"), optionally prefixed with
// a namespace ("user:/editor/tab/size"). Path segments may be literal
// identifiers, named placeholders of the form "%tag%", or the anonymous
// wildcard "%". A keyset is a name-unique collection of keys kept sorted by
// name for deterministic iteration.
package keyset

import (
	"fmt"
	"sort"
	"strings"
)

// Key is a single configuration entry: a well-formed name, an optional
// string value, and a set of named metadata strings.
type Key struct {
	name  string
	value string
	meta  map[string]string
}

// KeyOption configures a Key at construction time.
type KeyOption func(*Key)

// WithValue sets the key's value.
func WithValue(value string) KeyOption {
	return func(k *Key) {
		k.value = value
	}
}

// WithMeta sets a metadata entry on the key.
func WithMeta(name, value string) KeyOption {
	return func(k *Key) {
		k.meta[name] = value
	}
}

// NewKey creates a key with the given name.
// Returns ErrInvalidName if the name is not well-formed.
func NewKey(name string, opts ...KeyOption) (*Key, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	k := &Key{
		name: name,
		meta: make(map[string]string),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// MustKey creates a key and panics if the name is malformed.
// Useful for keys with compile-time constant names.
func MustKey(name string, opts ...KeyOption) *Key {
	k, err := NewKey(name, opts...)
	if err != nil {
		panic(err)
	}
	return k
}

// Name returns the key's full name including any namespace prefix.
func (k *Key) Name() string {
	return k.name
}

// Value returns the key's value.
func (k *Key) Value() string {
	return k.value
}

// SetValue replaces the key's value.
func (k *Key) SetValue(value string) {
	k.value = value
}

// Meta returns the metadata value for name.
func (k *Key) Meta(name string) (string, bool) {
	v, ok := k.meta[name]
	return v, ok
}

// SetMeta sets a metadata entry.
func (k *Key) SetMeta(name, value string) {
	k.meta[name] = value
}

// DeleteMeta removes a metadata entry.
func (k *Key) DeleteMeta(name string) {
	delete(k.meta, name)
}

// MetaNames returns all metadata names sorted alphabetically.
func (k *Key) MetaNames() []string {
	names := make([]string, 0, len(k.meta))
	for name := range k.meta {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Namespace returns the key's namespace, or "" for cascading keys.
func (k *Key) Namespace() string {
	ns, _ := SplitNamespace(k.name)
	return ns
}

// Path returns the key's name with any namespace prefix removed.
func (k *Key) Path() string {
	_, path := SplitNamespace(k.name)
	return path
}

// BaseName returns the final segment of the key's name.
func (k *Key) BaseName() string {
	return BaseName(k.name)
}

// IsCascading reports whether the key has no namespace.
func (k *Key) IsCascading() bool {
	return strings.HasPrefix(k.name, "/")
}

// Clone returns a deep copy of the key.
func (k *Key) Clone() *Key {
	meta := make(map[string]string, len(k.meta))
	for name, value := range k.meta {
		meta[name] = value
	}
	return &Key{
		name:  k.name,
		value: k.value,
		meta:  meta,
	}
}

// ValidateName checks that a key name is well-formed: an optional lowercase
// namespace prefix ("user:"), a leading slash, and no empty segments.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}

	ns, path := SplitNamespace(name)
	if ns != "" {
		for _, r := range ns {
			if r < 'a' || r > 'z' {
				return fmt.Errorf("%w: bad namespace %q in %q", ErrInvalidName, ns, name)
			}
		}
	}

	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q does not start with '/'", ErrInvalidName, name)
	}
	for _, seg := range Segments(path) {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidName, name)
		}
	}
	return nil
}

// SplitNamespace splits a key name into its namespace and path parts.
// "user:/a/b" yields ("user", "/a/b"); a cascading name yields ("", name).
func SplitNamespace(name string) (ns, path string) {
	i := strings.Index(name, ":/")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// Segments splits a path into its slash-separated segments.
// The leading slash does not produce an empty segment.
func Segments(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return []string{""}
	}
	return strings.Split(path, "/")
}

// JoinSegments assembles a cascading path from segments.
func JoinSegments(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// BaseName returns the final segment of a key name.
func BaseName(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return name
	}
	return name[i+1:]
}

// PlaceholderTag inspects a path segment for placeholder syntax.
// "%tag%" yields ("tag", true), the anonymous wildcard "%" yields ("", true),
// and any other segment yields ("", false).
func PlaceholderTag(seg string) (tag string, ok bool) {
	if seg == "%" {
		return "", true
	}
	if len(seg) > 2 && seg[0] == '%' && seg[len(seg)-1] == '%' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
