// Package jsonformat is the JSON format plugin, built on
// github.com/tidwall/gjson for parsing and github.com/tidwall/sjson for
// writing.
//
// Nested objects map to key path segments and array elements to "#N"
// index segments. Scalar leaves carry a "type" metadata entry (string,
// long, double, boolean, null) so that writing restores JSON types.
package jsonformat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// MetaType records the scalar type of a leaf for lossless writes.
const MetaType = "type"

// Scalar type names stored in MetaType.
const (
	TypeString  = "string"
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// Format implements plugin.Format for JSON documents.
type Format struct{}

// New creates the JSON format plugin.
func New() *Format {
	return &Format{}
}

// Name implements plugin.Format.
func (f *Format) Name() string {
	return "json"
}

// Parse translates a JSON document into a keyset.
func (f *Format) Parse(data []byte) (*keyset.KeySet, error) {
	if !gjson.ValidBytes(data) {
		return nil, &plugin.ParseError{Format: "json", Message: "invalid document"}
	}

	ks := keyset.New()
	root := gjson.ParseBytes(data)
	if err := flatten(ks, "", root); err != nil {
		return nil, err
	}
	return ks, nil
}

// flatten walks a parsed JSON value, emitting one key per scalar leaf.
func flatten(ks *keyset.KeySet, prefix string, r gjson.Result) error {
	switch {
	case r.IsObject():
		var walkErr error
		r.ForEach(func(name, value gjson.Result) bool {
			if strings.ContainsRune(name.String(), '/') {
				walkErr = fmt.Errorf("json: key %q contains '/'", name.String())
				return false
			}
			walkErr = flatten(ks, prefix+"/"+name.String(), value)
			return walkErr == nil
		})
		return walkErr

	case r.IsArray():
		var walkErr error
		i := 0
		r.ForEach(func(_, value gjson.Result) bool {
			walkErr = flatten(ks, prefix+"/#"+strconv.Itoa(i), value)
			i++
			return walkErr == nil
		})
		return walkErr

	default:
		value, typ := formatScalar(r)
		k, err := keyset.NewKey(prefix, keyset.WithValue(value), keyset.WithMeta(MetaType, typ))
		if err != nil {
			return err
		}
		ks.Insert(k)
		return nil
	}
}

// formatScalar renders a JSON scalar as a string plus its type name.
// Numbers without a fraction or exponent are longs.
func formatScalar(r gjson.Result) (value, typ string) {
	switch r.Type {
	case gjson.String:
		return r.String(), TypeString
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return strconv.FormatFloat(r.Float(), 'g', -1, 64), TypeDouble
		}
		return strconv.FormatInt(r.Int(), 10), TypeLong
	case gjson.True:
		return "true", TypeBoolean
	case gjson.False:
		return "false", TypeBoolean
	default:
		return "", TypeNull
	}
}

// Write serializes a keyset back to a JSON document.
func (f *Format) Write(ks *keyset.KeySet) ([]byte, error) {
	doc := []byte("{}")
	for _, k := range ks.Keys() {
		v, err := parseScalar(k)
		if err != nil {
			return nil, err
		}
		path := sjsonPath(k.Path())
		out, err := sjson.SetBytes(doc, path, v)
		if err != nil {
			return nil, fmt.Errorf("json: key %q: %w", k.Name(), err)
		}
		doc = out
	}
	return doc, nil
}

// parseScalar converts a key's string value back to the type its
// metadata records. Keys without type metadata stay strings.
func parseScalar(k *keyset.Key) (any, error) {
	typ, _ := k.Meta(MetaType)
	switch typ {
	case TypeLong:
		n, err := strconv.ParseInt(k.Value(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("json: key %q: %w", k.Name(), err)
		}
		return n, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(k.Value(), 64)
		if err != nil {
			return nil, fmt.Errorf("json: key %q: %w", k.Name(), err)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(k.Value())
		if err != nil {
			return nil, fmt.Errorf("json: key %q: %w", k.Name(), err)
		}
		return b, nil
	case TypeNull:
		return nil, nil
	default:
		return k.Value(), nil
	}
}

// sjsonPath converts a key path into an sjson path: slashes become dots,
// "#N" segments become numeric array indices, and path metacharacters in
// segment names are escaped.
func sjsonPath(path string) string {
	segs := keyset.Segments(path)
	parts := make([]string, len(segs))
	for i, seg := range segs {
		if idx, ok := strings.CutPrefix(seg, "#"); ok {
			if _, err := strconv.Atoi(idx); err == nil {
				parts[i] = idx
				continue
			}
		}
		parts[i] = escapeSegment(seg)
	}
	return strings.Join(parts, ".")
}

func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ plugin.Format = (*Format)(nil)
