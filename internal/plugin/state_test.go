package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateValues(t *testing.T) {
	st := NewState()

	st.Put("temp", "/tmp/x")
	if v, ok := st.GetString("temp"); !ok || v != "/tmp/x" {
		t.Errorf("GetString(temp) = (%q, %v)", v, ok)
	}
	if _, ok := st.Get("missing"); ok {
		t.Error("Get(missing) = true")
	}
	if _, ok := st.GetString("missing"); ok {
		t.Error("GetString(missing) = true")
	}
}

func TestDiscardShredsTemps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("sensitive"), 0o600); err != nil {
		t.Fatal(err)
	}

	st := NewState()
	st.TrackTemp(path)

	if err := st.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp file still present after Discard: %v", err)
	}
}

func TestShredTempStopsTracking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("sensitive"), 0o600); err != nil {
		t.Fatal(err)
	}

	st := NewState()
	st.TrackTemp(path)

	if err := st.ShredTemp(path); err != nil {
		t.Fatalf("ShredTemp: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file still present after ShredTemp")
	}

	// Discard after ShredTemp must be a no-op.
	if err := st.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
}

func TestShredMissingFile(t *testing.T) {
	if err := Shred(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("Shred(absent) = %v, want nil", err)
	}
}
