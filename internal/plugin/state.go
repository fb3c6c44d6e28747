package plugin

import (
	"errors"
	"os"
)

// State is the opaque per-backend handle carried across a filter's two
// phases. It stores filter values and tracks temporary files that must be
// securely erased before being discarded.
type State struct {
	values map[string]any
	temps  []string
}

// NewState creates an empty filter state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Put stores a filter value under key.
func (s *State) Put(key string, value any) {
	s.values[key] = value
}

// Get returns the filter value stored under key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the string value stored under key.
func (s *State) GetString(key string) (string, bool) {
	v, ok := s.values[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// TrackTemp registers a temporary file for secure erasure at discard.
func (s *State) TrackTemp(path string) {
	s.temps = append(s.temps, path)
}

// ShredTemp securely erases one tracked temp file immediately and stops
// tracking it. Unknown paths are ignored.
func (s *State) ShredTemp(path string) error {
	for i, p := range s.temps {
		if p != path {
			continue
		}
		s.temps = append(s.temps[:i], s.temps[i+1:]...)
		return Shred(path)
	}
	return nil
}

// Discard securely erases all still-tracked temp files. It runs on both
// success and failure paths of a backend operation and is safe to call
// after ShredTemp.
func (s *State) Discard() error {
	var errs []error
	for _, p := range s.temps {
		if err := Shred(p); err != nil {
			errs = append(errs, err)
		}
	}
	s.temps = nil
	return errors.Join(errs...)
}

// Shred overwrites a file with zeros, syncs, and removes it. A missing
// file is not an error.
func Shred(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	size := info.Size()
	buf := make([]byte, 64*1024)
	var written int64
	for written < size {
		n := int64(len(buf))
		if size-written < n {
			n = size - written
		}
		if _, err := f.WriteAt(buf[:n], written); err != nil {
			f.Close()
			return err
		}
		written += n
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
