// Package tomlformat is the TOML format plugin, built on
// github.com/pelletier/go-toml/v2.
//
// Nested tables map to key path segments. Scalar leaves carry a "type"
// metadata entry (string, long, double, boolean) so that writing restores
// the original TOML types. Array elements map to "#N" index segments.
package tomlformat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

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
)

// Format implements plugin.Format for TOML documents.
type Format struct{}

// New creates the TOML format plugin.
func New() *Format {
	return &Format{}
}

// Name implements plugin.Format.
func (f *Format) Name() string {
	return "toml"
}

// Parse translates a TOML document into a keyset.
func (f *Format) Parse(data []byte) (*keyset.KeySet, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		pe := &plugin.ParseError{Format: "toml", Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			line, _ := derr.Position()
			pe.Line = line
		}
		return nil, pe
	}

	ks := keyset.New()
	if err := flatten(ks, "", doc); err != nil {
		return nil, err
	}
	return ks, nil
}

// flatten walks a decoded TOML value, emitting one key per scalar leaf.
func flatten(ks *keyset.KeySet, prefix string, v any) error {
	switch val := v.(type) {
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if strings.ContainsRune(name, '/') {
				return fmt.Errorf("toml: key %q contains '/'", name)
			}
			if err := flatten(ks, prefix+"/"+name, val[name]); err != nil {
				return err
			}
		}
		return nil

	case []any:
		for i, elem := range val {
			if err := flatten(ks, prefix+"/#"+strconv.Itoa(i), elem); err != nil {
				return err
			}
		}
		return nil

	default:
		value, typ, err := formatScalar(v)
		if err != nil {
			return fmt.Errorf("toml: key %q: %w", prefix, err)
		}
		k, err := keyset.NewKey(prefix, keyset.WithValue(value), keyset.WithMeta(MetaType, typ))
		if err != nil {
			return err
		}
		ks.Insert(k)
		return nil
	}
}

// formatScalar renders a decoded scalar as a string plus its type name.
func formatScalar(v any) (value, typ string, err error) {
	switch s := v.(type) {
	case string:
		return s, TypeString, nil
	case int64:
		return strconv.FormatInt(s, 10), TypeLong, nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), TypeDouble, nil
	case bool:
		return strconv.FormatBool(s), TypeBoolean, nil
	default:
		return "", "", fmt.Errorf("unsupported value type %T", v)
	}
}

// Write serializes a keyset back to a TOML document.
func (f *Format) Write(ks *keyset.KeySet) ([]byte, error) {
	root := make(map[string]any)
	for _, k := range ks.Keys() {
		v, err := parseScalar(k)
		if err != nil {
			return nil, err
		}
		if err := insert(root, keyset.Segments(k.Path()), v); err != nil {
			return nil, fmt.Errorf("toml: key %q: %w", k.Name(), err)
		}
	}
	return toml.Marshal(root)
}

// parseScalar converts a key's string value back to the type its
// metadata records. Keys without type metadata stay strings.
func parseScalar(k *keyset.Key) (any, error) {
	typ, _ := k.Meta(MetaType)
	switch typ {
	case TypeLong:
		n, err := strconv.ParseInt(k.Value(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("toml: key %q: %w", k.Name(), err)
		}
		return n, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(k.Value(), 64)
		if err != nil {
			return nil, fmt.Errorf("toml: key %q: %w", k.Name(), err)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(k.Value())
		if err != nil {
			return nil, fmt.Errorf("toml: key %q: %w", k.Name(), err)
		}
		return b, nil
	default:
		return k.Value(), nil
	}
}

// insert places v at the path described by segs, creating intermediate
// tables and arrays as needed. Segments of the form "#N" address array
// elements.
func insert(node map[string]any, segs []string, v any) error {
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}
	name := segs[0]
	rest := segs[1:]

	if len(rest) > 0 && strings.HasPrefix(rest[0], "#") {
		return insertArray(node, name, rest, v)
	}

	if len(rest) == 0 {
		if _, exists := node[name]; exists {
			return fmt.Errorf("conflicting values at %q", name)
		}
		node[name] = v
		return nil
	}

	child, ok := node[name].(map[string]any)
	if !ok {
		if _, exists := node[name]; exists {
			return fmt.Errorf("scalar and table collide at %q", name)
		}
		child = make(map[string]any)
		node[name] = child
	}
	return insert(child, rest, v)
}

// insertArray handles a "#N" segment directly below name.
func insertArray(node map[string]any, name string, segs []string, v any) error {
	idx, err := strconv.Atoi(strings.TrimPrefix(segs[0], "#"))
	if err != nil || idx < 0 {
		return fmt.Errorf("bad array index %q", segs[0])
	}

	arr, ok := node[name].([]any)
	if !ok {
		if _, exists := node[name]; exists {
			return fmt.Errorf("scalar and array collide at %q", name)
		}
	}
	for len(arr) <= idx {
		arr = append(arr, nil)
	}

	if len(segs) == 1 {
		arr[idx] = v
	} else {
		child, ok := arr[idx].(map[string]any)
		if !ok {
			child = make(map[string]any)
			arr[idx] = child
		}
		if err := insert(child, segs[1:], v); err != nil {
			return err
		}
	}
	node[name] = arr
	return nil
}

var _ plugin.Format = (*Format)(nil)
