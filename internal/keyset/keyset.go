package keyset

import (
	"sort"
	"strings"
)

// cascadingRoots lists the namespaces a cascading lookup tries, in priority
// order, after the cascading name itself.
var cascadingRoots = []string{"proc", "user", "system", "default"}

// KeySet is a name-unique collection of keys sorted by name.
//
// A KeySet owns its entries. It is not safe for concurrent mutation;
// concurrent writers must serialize externally.
type KeySet struct {
	keys []*Key
}

// New creates a keyset holding the given keys.
// Later keys replace earlier keys with the same name.
func New(keys ...*Key) *KeySet {
	ks := &KeySet{}
	for _, k := range keys {
		ks.Insert(k)
	}
	return ks
}

// Len returns the number of keys.
func (ks *KeySet) Len() int {
	return len(ks.keys)
}

// Insert adds a key, replacing any existing key with the same name.
func (ks *KeySet) Insert(k *Key) {
	i, found := ks.search(k.name)
	if found {
		ks.keys[i] = k
		return
	}
	ks.keys = append(ks.keys, nil)
	copy(ks.keys[i+1:], ks.keys[i:])
	ks.keys[i] = k
}

// Set inserts or replaces a key with the given name and value.
// Metadata of an existing key at the same name is preserved.
func (ks *KeySet) Set(name, value string) (*Key, error) {
	if existing := ks.Lookup(name); existing != nil {
		existing.SetValue(value)
		return existing, nil
	}
	k, err := NewKey(name, WithValue(value))
	if err != nil {
		return nil, err
	}
	ks.Insert(k)
	return k, nil
}

// Lookup returns the key with exactly the given name, or nil.
func (ks *KeySet) Lookup(name string) *Key {
	i, found := ks.search(name)
	if !found {
		return nil
	}
	return ks.keys[i]
}

// CascadingLookup resolves a cascading name against the namespace roots.
// The cascading name itself is tried first, then each root in priority
// order. A namespaced name falls back to an exact lookup.
func (ks *KeySet) CascadingLookup(name string) *Key {
	if !strings.HasPrefix(name, "/") {
		return ks.Lookup(name)
	}
	if k := ks.Lookup(name); k != nil {
		return k
	}
	for _, root := range cascadingRoots {
		if k := ks.Lookup(root + ":" + name); k != nil {
			return k
		}
	}
	return nil
}

// Remove deletes the key with the given name.
// Returns true if a key was removed.
func (ks *KeySet) Remove(name string) bool {
	i, found := ks.search(name)
	if !found {
		return false
	}
	ks.keys = append(ks.keys[:i], ks.keys[i+1:]...)
	return true
}

// At returns the key at position i in name order.
func (ks *KeySet) At(i int) *Key {
	return ks.keys[i]
}

// Keys returns all keys in name order. The slice is a copy; the keys are not.
func (ks *KeySet) Keys() []*Key {
	out := make([]*Key, len(ks.keys))
	copy(out, ks.keys)
	return out
}

// Names returns all key names in order.
func (ks *KeySet) Names() []string {
	names := make([]string, len(ks.keys))
	for i, k := range ks.keys {
		names[i] = k.name
	}
	return names
}

// Below returns all keys strictly below the given prefix, in name order.
// "/sec" matches "/sec/a" and "/sec/a/b" but not "/sec" or "/section".
func (ks *KeySet) Below(prefix string) []*Key {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []*Key
	for _, k := range ks.keys {
		if strings.HasPrefix(k.name, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns a deep copy of the keyset.
func (ks *KeySet) Clone() *KeySet {
	out := &KeySet{keys: make([]*Key, len(ks.keys))}
	for i, k := range ks.keys {
		out.keys[i] = k.Clone()
	}
	return out
}

// search locates name in the sorted key slice.
// Returns the insertion index and whether the name is present.
func (ks *KeySet) search(name string) (int, bool) {
	i := sort.Search(len(ks.keys), func(i int) bool {
		return ks.keys[i].name >= name
	})
	return i, i < len(ks.keys) && ks.keys[i].name == name
}
