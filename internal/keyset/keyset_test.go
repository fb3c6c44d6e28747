package keyset

import "testing"

func TestKeySetInsertOrder(t *testing.T) {
	ks := New(
		MustKey("/c"),
		MustKey("/a"),
		MustKey("/b"),
	)

	want := []string{"/a", "/b", "/c"}
	got := ks.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeySetInsertReplaces(t *testing.T) {
	ks := New(MustKey("/a", WithValue("old")))
	ks.Insert(MustKey("/a", WithValue("new")))

	if ks.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ks.Len())
	}
	if got := ks.Lookup("/a").Value(); got != "new" {
		t.Errorf("Lookup(/a).Value() = %q, want %q", got, "new")
	}
}

func TestKeySetLookup(t *testing.T) {
	ks := New(MustKey("/a/b", WithValue("1")))

	if k := ks.Lookup("/a/b"); k == nil || k.Value() != "1" {
		t.Errorf("Lookup(/a/b) = %v", k)
	}
	if k := ks.Lookup("/a"); k != nil {
		t.Errorf("Lookup(/a) = %v, want nil", k)
	}
}

func TestKeySetSetPreservesMetadata(t *testing.T) {
	ks := New(MustKey("/a", WithValue("1"), WithMeta("order", "5")))

	if _, err := ks.Set("/a", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	k := ks.Lookup("/a")
	if k.Value() != "2" {
		t.Errorf("value = %q, want 2", k.Value())
	}
	if order, _ := k.Meta("order"); order != "5" {
		t.Errorf("order metadata = %q, want 5", order)
	}
}

func TestCascadingLookup(t *testing.T) {
	ks := New(
		MustKey("user:/key", WithValue("user")),
		MustKey("system:/key", WithValue("system")),
		MustKey("system:/only", WithValue("sys-only")),
		MustKey("/plain", WithValue("cascading")),
	)

	tests := []struct {
		name string
		want string
	}{
		{"/key", "user"},       // user beats system
		{"/only", "sys-only"},  // falls through to system
		{"/plain", "cascading"}, // cascading key itself wins
		{"user:/key", "user"},  // namespaced name is exact
	}

	for _, tt := range tests {
		k := ks.CascadingLookup(tt.name)
		if k == nil {
			t.Errorf("CascadingLookup(%q) = nil", tt.name)
			continue
		}
		if k.Value() != tt.want {
			t.Errorf("CascadingLookup(%q).Value() = %q, want %q", tt.name, k.Value(), tt.want)
		}
	}

	if k := ks.CascadingLookup("/missing"); k != nil {
		t.Errorf("CascadingLookup(/missing) = %v, want nil", k)
	}
}

func TestKeySetRemove(t *testing.T) {
	ks := New(MustKey("/a"), MustKey("/b"))

	if !ks.Remove("/a") {
		t.Error("Remove(/a) = false, want true")
	}
	if ks.Remove("/a") {
		t.Error("second Remove(/a) = true, want false")
	}
	if ks.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ks.Len())
	}
}

func TestKeySetBelow(t *testing.T) {
	ks := New(
		MustKey("/sec"),
		MustKey("/sec/a"),
		MustKey("/sec/a/b"),
		MustKey("/section"),
	)

	below := ks.Below("/sec")
	if len(below) != 2 {
		t.Fatalf("Below(/sec) returned %d keys, want 2", len(below))
	}
	if below[0].Name() != "/sec/a" || below[1].Name() != "/sec/a/b" {
		t.Errorf("Below(/sec) = %v, %v", below[0].Name(), below[1].Name())
	}
}

func TestKeySetClone(t *testing.T) {
	ks := New(MustKey("/a", WithValue("1")))
	c := ks.Clone()

	c.Lookup("/a").SetValue("2")
	c.Insert(MustKey("/b"))

	if ks.Lookup("/a").Value() != "1" {
		t.Error("clone mutation leaked into original value")
	}
	if ks.Len() != 1 {
		t.Error("clone insert leaked into original")
	}
}
