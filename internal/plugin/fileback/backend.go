// Package fileback is the file storage backend. It reads and writes one
// configuration file through a format plugin, with optional file filters
// (e.g. encryption) and key filters (e.g. scripted transforms) applied
// around the format, and can watch the file for external changes.
package fileback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// Backend implements plugin.Backend for a single file.
//
// Keys in the file are stored relative to the mount root: Fetch grafts
// them below root and Persist strips the root prefix before writing.
type Backend struct {
	mu sync.Mutex

	path        string
	format      plugin.Format
	fileFilters []plugin.FileFilter
	keyFilters  []plugin.KeyFilter
	logger      *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithFileFilter appends a file filter. Filters run in registration
// order on fetch and in reverse order when finalizing.
func WithFileFilter(f plugin.FileFilter) Option {
	return func(b *Backend) {
		b.fileFilters = append(b.fileFilters, f)
	}
}

// WithKeyFilter appends a key filter.
func WithKeyFilter(f plugin.KeyFilter) Option {
	return func(b *Backend) {
		b.keyFilters = append(b.keyFilters, f)
	}
}

// WithLogger sets the backend's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a file backend for path using the given format.
func New(path string, format plugin.Format, opts ...Option) *Backend {
	b := &Backend{
		path:   path,
		format: format,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the backing file path.
func (b *Backend) Path() string {
	return b.path
}

// Fetch reads the file and returns its keys grafted below root.
// A missing file yields an empty keyset.
func (b *Backend) Fetch(root string) (*keyset.KeySet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := plugin.NewState()
	defer b.discard(st)

	readPath := b.path
	for _, f := range b.fileFilters {
		p, err := f.PreFetch(st, readPath)
		if err != nil {
			return nil, err
		}
		readPath = p
	}

	var ks *keyset.KeySet
	data, err := os.ReadFile(readPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		ks = keyset.New()
	case err != nil:
		return nil, err
	default:
		ks, err = b.format.Parse(data)
		if err != nil {
			return nil, err
		}
	}

	for i := len(b.fileFilters) - 1; i >= 0; i-- {
		if err := b.fileFilters[i].PostFetch(st); err != nil {
			return nil, err
		}
	}
	for _, f := range b.keyFilters {
		if err := f.AfterFetch(ks); err != nil {
			return nil, err
		}
	}

	out, err := graft(root, ks)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("fetched keyset", "path", b.path, "root", root, "keys", out.Len())
	return out, nil
}

// Persist writes the keys below root back to the file. The write is
// atomic: the payload lands in a staging file that replaces the target.
func (b *Backend) Persist(root string, ks *keyset.KeySet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := plugin.NewState()
	defer b.discard(st)

	rel := prune(root, ks)
	for _, f := range b.keyFilters {
		if err := f.BeforePersist(rel); err != nil {
			return err
		}
	}

	data, err := b.format.Write(rel)
	if err != nil {
		return err
	}

	// Each file filter sees the path the previous stage produced and
	// finalizes against the path it was given.
	type stage struct {
		filter plugin.FileFilter
		in     string
	}
	target := b.path
	stages := make([]stage, 0, len(b.fileFilters))
	for _, f := range b.fileFilters {
		stages = append(stages, stage{filter: f, in: target})
		p, err := f.PrePersist(st, target)
		if err != nil {
			return err
		}
		target = p
	}

	if target == b.path {
		if err := writeAtomic(target, data); err != nil {
			return err
		}
	} else if err := os.WriteFile(target, data, 0o600); err != nil {
		return err
	}

	for i := len(stages) - 1; i >= 0; i-- {
		if err := stages[i].filter.PostPersist(st, stages[i].in); err != nil {
			return err
		}
	}

	b.logger.Debug("persisted keyset", "path", b.path, "root", root, "keys", rel.Len())
	return nil
}

func (b *Backend) discard(st *plugin.State) {
	if err := st.Discard(); err != nil {
		b.logger.Warn("temp file cleanup failed", "path", b.path, "error", err)
	}
}

// writeAtomic writes data to a staging file and renames it into place.
func writeAtomic(path string, data []byte) error {
	staging := path + "." + uuid.NewString()
	if err := os.WriteFile(staging, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(staging, path); err != nil {
		os.Remove(staging)
		return err
	}
	return nil
}

// graft rebases file-relative keys below the mount root.
func graft(root string, ks *keyset.KeySet) (*keyset.KeySet, error) {
	root = normalizeRoot(root)
	if root == "" {
		return ks, nil
	}

	out := keyset.New()
	for _, k := range ks.Keys() {
		name := root + k.Path()
		nk, err := keyset.NewKey(name, keyset.WithValue(k.Value()))
		if err != nil {
			return nil, fmt.Errorf("graft %q below %q: %w", k.Name(), root, err)
		}
		for _, m := range k.MetaNames() {
			v, _ := k.Meta(m)
			nk.SetMeta(m, v)
		}
		out.Insert(nk)
	}
	return out, nil
}

// prune strips the mount root, keeping only keys below it.
func prune(root string, ks *keyset.KeySet) *keyset.KeySet {
	root = normalizeRoot(root)
	if root == "" {
		return ks.Clone()
	}

	out := keyset.New()
	for _, k := range ks.Keys() {
		rest, ok := strings.CutPrefix(k.Name(), root+"/")
		if !ok {
			continue
		}
		nk := k.Clone()
		renamed, err := keyset.NewKey("/"+rest, keyset.WithValue(nk.Value()))
		if err != nil {
			continue
		}
		for _, m := range nk.MetaNames() {
			v, _ := nk.Meta(m)
			renamed.SetMeta(m, v)
		}
		out.Insert(renamed)
	}
	return out
}

func normalizeRoot(root string) string {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		return ""
	}
	return root
}

var _ plugin.Backend = (*Backend)(nil)
