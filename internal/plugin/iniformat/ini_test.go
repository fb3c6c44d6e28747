package iniformat

import (
	"errors"
	"strconv"
	"testing"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

func TestParseSectionsAndGlobals(t *testing.T) {
	input := "version = 2\n" +
		"[editor]\n" +
		"tab = 4\n" +
		"wrap = on\n"

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	k := ks.Lookup("/version")
	if k == nil || k.Value() != "2" {
		t.Fatalf("Lookup(/version) = %v", k)
	}
	if _, ok := k.Meta(MetaParent); ok {
		t.Error("/version has parent metadata")
	}

	sec := ks.Lookup("/editor")
	if sec == nil {
		t.Fatal("Lookup(/editor) = nil")
	}
	if _, ok := sec.Meta(MetaSection); !ok {
		t.Error("/editor lacks section marker")
	}

	tab := ks.Lookup("/editor/tab")
	if tab == nil || tab.Value() != "4" {
		t.Fatalf("Lookup(/editor/tab) = %v", tab)
	}
	if parent, _ := tab.Meta(MetaParent); parent != "/editor" {
		t.Errorf("parent(/editor/tab) = %q, want /editor", parent)
	}

	for i, name := range []string{"/version", "/editor", "/editor/tab", "/editor/wrap"} {
		k := ks.Lookup(name)
		if k == nil {
			t.Fatalf("Lookup(%s) = nil", name)
		}
		if got, _ := k.Meta(MetaOrder); got != strconv.Itoa(i) {
			t.Errorf("order(%s) = %q, want %d", name, got, i)
		}
	}
}

func TestParseCommentPassthrough(t *testing.T) {
	input := "; tuning knobs\n" +
		"# second line\n" +
		"depth = 3\n"

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	k := ks.Lookup("/depth")
	if k == nil {
		t.Fatal("Lookup(/depth) = nil")
	}
	comment, ok := k.Meta(MetaComment)
	if !ok {
		t.Fatal("comment metadata missing")
	}
	want := "; tuning knobs\n# second line"
	if comment != want {
		t.Errorf("comment = %q, want %q", comment, want)
	}
}

func TestParseTrailingComment(t *testing.T) {
	input := "depth = 3\n; the end\n"

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	k := ks.Lookup("/depth")
	if trailing, _ := k.Meta(MetaTrailing); trailing != "; the end" {
		t.Errorf("trailing = %q, want %q", trailing, "; the end")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"no separator", "just a bare line\n", 1},
		{"empty section", "[]\n", 1},
		{"late error", "ok = 1\nbroken\n", 2},
	}

	f := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			var pe *plugin.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a ParseError", err)
			}
			if pe.Line != tt.line {
				t.Errorf("Line = %d, want %d", pe.Line, tt.line)
			}
			if pe.Format != "ini" {
				t.Errorf("Format = %q, want ini", pe.Format)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"key = value\n",

		"version = 2\n" +
			"[editor]\n" +
			"tab = 4\n" +
			"wrap = on\n",

		"; editor settings\n" +
			"[editor]\n" +
			"tab = 4\n" +
			"\n" +
			"[terminal]\n" +
			"shell = /bin/sh\n",

		"depth = 3\n" +
			"; the end\n",
	}

	f := New()
	for _, input := range inputs {
		ks, err := f.Parse([]byte(input))
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		out, err := f.Write(ks)
		if err != nil {
			t.Fatalf("Write(%q): %v", input, err)
		}
		if string(out) != input {
			t.Errorf("round trip changed document:\nin:  %q\nout: %q", input, out)
		}
	}
}

func TestWriteAppendedKeyJoinsSection(t *testing.T) {
	input := "[editor]\n" +
		"tab = 4\n"

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// A key added after parsing, e.g. by a contextual value write.
	if _, err := ks.Set("/editor/color", "blue"); err != nil {
		t.Fatal(err)
	}

	out, err := f.Write(ks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "[editor]\n" +
		"tab = 4\n" +
		"color = blue\n"
	if string(out) != want {
		t.Errorf("Write = %q, want %q", out, want)
	}
}

func TestWriteSynthesizesSectionHeader(t *testing.T) {
	ks := keyset.New(
		keyset.MustKey("/net/host", keyset.WithValue("localhost")),
		keyset.MustKey("/net/port", keyset.WithValue("8080")),
	)

	f := New()
	out, err := f.Write(ks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "[net]\n" +
		"host = localhost\n" +
		"port = 8080\n"
	if string(out) != want {
		t.Errorf("Write = %q, want %q", out, want)
	}
}
