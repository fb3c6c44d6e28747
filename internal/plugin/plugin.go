// Package plugin defines the storage plugin contracts for the contour
// configuration store: backends that fetch and persist keysets, format
// plugins that translate between raw bytes and keysets, and two-phase
// filters that wrap either the raw file or the fetched keyset.
//
// The resolution core never parses files or talks to storage itself; it
// only requires that a successful fetch produce a valid keyset.
package plugin

import (
	"github.com/dshills/contour/internal/keyset"
)

// Backend produces and consumes fully materialized keysets.
type Backend interface {
	// Fetch returns the keyset stored under root.
	Fetch(root string) (*keyset.KeySet, error)

	// Persist writes ks under root.
	Persist(root string, ks *keyset.KeySet) error
}

// Format translates a flat byte payload into a keyset and back.
//
// Serialization order is recorded in "order" metadata and structural
// nesting in "parent" metadata. For lossless formats, Write(Parse(b))
// must reproduce b; formats with lossy features must preserve them via
// explicit metadata passthrough (e.g. "comment") or document the loss.
type Format interface {
	// Name returns the format's registry name (e.g. "ini").
	Name() string

	// Parse translates raw bytes into a keyset.
	Parse(data []byte) (*keyset.KeySet, error)

	// Write serializes a keyset back to bytes.
	Write(ks *keyset.KeySet) ([]byte, error)
}

// FileFilter is a two-phase transform over the raw file a backend reads
// or writes, e.g. a decrypt-before-read, encrypt-before-write filter.
// State carries the filter's artifacts across the two phases; temporary
// files registered there are securely erased on both success and failure.
type FileFilter interface {
	// PreFetch runs before the format parses. It returns the path the
	// fetch should read instead of path (e.g. a decrypted temp file).
	PreFetch(st *State, path string) (string, error)

	// PostFetch runs after the format parsed, for per-filter cleanup.
	PostFetch(st *State) error

	// PrePersist runs before the format writes. It returns the path
	// the persist should write instead of path.
	PrePersist(st *State, path string) (string, error)

	// PostPersist runs after the format wrote, finalizing the write
	// into path (e.g. encrypting the temp into place).
	PostPersist(st *State, path string) error
}

// KeyFilter rewrites a fetched or about-to-be-persisted keyset, e.g. a
// scripted transform or a validation pass.
type KeyFilter interface {
	// AfterFetch rewrites ks in place after it was parsed.
	AfterFetch(ks *keyset.KeySet) error

	// BeforePersist rewrites ks in place before it is written.
	BeforePersist(ks *keyset.KeySet) error
}
