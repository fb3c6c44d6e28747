package plugin

import (
	"errors"
	"testing"

	"github.com/dshills/contour/internal/keyset"
)

// fakeFormat is a minimal Format for registry tests.
type fakeFormat struct {
	name string
}

func (f *fakeFormat) Name() string { return f.name }

func (f *fakeFormat) Parse(data []byte) (*keyset.KeySet, error) {
	return keyset.New(), nil
}

func (f *fakeFormat) Write(ks *keyset.KeySet) ([]byte, error) {
	return nil, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeFormat{name: "ini"})
	r.MustRegister(&fakeFormat{name: "toml"})

	f, err := r.Lookup("ini")
	if err != nil {
		t.Fatalf("Lookup(ini): %v", err)
	}
	if f.Name() != "ini" {
		t.Errorf("Lookup(ini).Name() = %q", f.Name())
	}

	if _, err := r.Lookup("yaml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Lookup(yaml) = %v, want ErrUnknownFormat", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeFormat{name: "ini"})

	err := r.Register(&fakeFormat{name: "ini"})
	if !errors.Is(err, ErrFormatRegistered) {
		t.Errorf("Register duplicate = %v, want ErrFormatRegistered", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeFormat{name: "toml"})
	r.MustRegister(&fakeFormat{name: "hcl"})
	r.MustRegister(&fakeFormat{name: "ini"})

	names := r.Names()
	want := []string{"hcl", "ini", "toml"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
