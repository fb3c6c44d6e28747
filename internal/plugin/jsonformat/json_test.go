package jsonformat

import (
	"errors"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

func TestParseNestedObjects(t *testing.T) {
	input := `{
		"title": "demo",
		"server": {
			"host": "localhost",
			"port": 8080,
			"tls": true,
			"timeout": 2.5,
			"proxy": null
		}
	}`

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name  string
		value string
		typ   string
	}{
		{"/title", "demo", TypeString},
		{"/server/host", "localhost", TypeString},
		{"/server/port", "8080", TypeLong},
		{"/server/tls", "true", TypeBoolean},
		{"/server/timeout", "2.5", TypeDouble},
		{"/server/proxy", "", TypeNull},
	}
	for _, tt := range tests {
		k := ks.Lookup(tt.name)
		if k == nil {
			t.Fatalf("Lookup(%s) = nil", tt.name)
		}
		if k.Value() != tt.value {
			t.Errorf("%s = %q, want %q", tt.name, k.Value(), tt.value)
		}
		if typ, _ := k.Meta(MetaType); typ != tt.typ {
			t.Errorf("type(%s) = %q, want %q", tt.name, typ, tt.typ)
		}
	}
}

func TestParseArrays(t *testing.T) {
	input := `{"hosts": ["alpha", "beta"], "weights": [1, 2]}`

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if k := ks.Lookup("/hosts/#0"); k == nil || k.Value() != "alpha" {
		t.Errorf("Lookup(/hosts/#0) = %v", k)
	}
	if k := ks.Lookup("/weights/#1"); k == nil || k.Value() != "2" {
		t.Errorf("Lookup(/weights/#1) = %v", k)
	}
}

func TestParseInvalidDocument(t *testing.T) {
	f := New()
	_, err := f.Parse([]byte(`{"broken":`))
	if err == nil {
		t.Fatal("Parse succeeded, want error")
	}
	var pe *plugin.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ParseError", err)
	}
	if pe.Format != "json" {
		t.Errorf("Format = %q, want json", pe.Format)
	}
}

func TestWriteRestoresTypes(t *testing.T) {
	ks := keyset.New(
		keyset.MustKey("/server/port", keyset.WithValue("8080"), keyset.WithMeta(MetaType, TypeLong)),
		keyset.MustKey("/server/tls", keyset.WithValue("true"), keyset.WithMeta(MetaType, TypeBoolean)),
		keyset.MustKey("/title", keyset.WithValue("demo")),
	)

	f := New()
	out, err := f.Write(ks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	doc := gjson.ParseBytes(out)
	if got := doc.Get("server.port"); got.Type != gjson.Number || got.Int() != 8080 {
		t.Errorf("server.port = %s", got.Raw)
	}
	if got := doc.Get("server.tls"); got.Type != gjson.True {
		t.Errorf("server.tls = %s", got.Raw)
	}
	if got := doc.Get("title"); got.String() != "demo" {
		t.Errorf("title = %s", got.Raw)
	}
}

func TestWriteArrays(t *testing.T) {
	ks := keyset.New(
		keyset.MustKey("/hosts/#0", keyset.WithValue("alpha")),
		keyset.MustKey("/hosts/#1", keyset.WithValue("beta")),
	)

	f := New()
	out, err := f.Write(ks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	doc := gjson.ParseBytes(out)
	hosts := doc.Get("hosts")
	if !hosts.IsArray() {
		t.Fatalf("hosts = %s, want array", hosts.Raw)
	}
	arr := hosts.Array()
	if len(arr) != 2 || arr[0].String() != "alpha" || arr[1].String() != "beta" {
		t.Errorf("hosts = %s", hosts.Raw)
	}
}

func TestRoundTrip(t *testing.T) {
	input := `{"a":{"b":1,"c":"x"},"d":[true,false]}`

	f := New()
	ks, err := f.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := f.Write(ks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := f.Parse(out)
	if err != nil {
		t.Fatalf("Parse(Write): %v", err)
	}

	for _, name := range []string{"/a/b", "/a/c", "/d/#0", "/d/#1"} {
		orig := ks.Lookup(name)
		got := back.Lookup(name)
		if got == nil {
			t.Fatalf("Lookup(%s) after round trip = nil", name)
		}
		if got.Value() != orig.Value() {
			t.Errorf("%s = %q, want %q", name, got.Value(), orig.Value())
		}
	}
}
