// Package hclformat is the HCL format plugin, built on
// github.com/hashicorp/hcl/v2.
//
// Attributes map to keys, with object and list values flattened into
// nested path and "#N" index segments. Blocks map to marker keys carrying
// "hcl/block" metadata (the block type) and "hcl/labels" metadata; their
// attributes become keys below the marker. Scalar leaves carry a "type"
// metadata entry so that writing restores HCL types.
package hclformat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// Metadata names used by the HCL plugin.
const (
	MetaType   = "type"
	MetaBlock  = "hcl/block"
	MetaLabels = "hcl/labels"
)

// Scalar type names stored in MetaType.
const (
	TypeString  = "string"
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// Format implements plugin.Format for HCL documents.
type Format struct{}

// New creates the HCL format plugin.
func New() *Format {
	return &Format{}
}

// Name implements plugin.Format.
func (f *Format) Name() string {
	return "hcl"
}

// Parse translates an HCL document into a keyset. Attribute expressions
// are evaluated without a context, so only literal values are accepted.
func (f *Format) Parse(data []byte) (*keyset.KeySet, error) {
	file, diags := hclsyntax.ParseConfig(data, "config.hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, parseError(diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, &plugin.ParseError{Format: "hcl", Message: "unexpected body type"}
	}

	ks := keyset.New()
	if err := walkBody(ks, "", body); err != nil {
		return nil, err
	}
	return ks, nil
}

func parseError(diags hcl.Diagnostics) *plugin.ParseError {
	pe := &plugin.ParseError{Format: "hcl", Message: diags.Error(), Err: diags}
	if len(diags) > 0 && diags[0].Subject != nil {
		pe.Line = diags[0].Subject.Start.Line
	}
	return pe
}

func walkBody(ks *keyset.KeySet, prefix string, body *hclsyntax.Body) error {
	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := body.Attributes[name]
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			pe := parseError(diags)
			pe.Line = attr.SrcRange.Start.Line
			return pe
		}
		if err := flatten(ks, prefix+"/"+name, val); err != nil {
			return err
		}
	}

	for _, block := range body.Blocks {
		path := prefix + "/" + block.Type
		for _, label := range block.Labels {
			path += "/" + label
		}
		k, err := keyset.NewKey(path, keyset.WithMeta(MetaBlock, block.Type))
		if err != nil {
			return err
		}
		if len(block.Labels) > 0 {
			k.SetMeta(MetaLabels, strings.Join(block.Labels, " "))
		}
		ks.Insert(k)
		if err := walkBody(ks, path, block.Body); err != nil {
			return err
		}
	}
	return nil
}

// flatten walks a cty value, emitting one key per scalar leaf.
func flatten(ks *keyset.KeySet, prefix string, val cty.Value) error {
	ty := val.Type()
	switch {
	case !val.IsNull() && (ty.IsObjectType() || ty.IsMapType()):
		for it := val.ElementIterator(); it.Next(); {
			name, elem := it.Element()
			if strings.ContainsRune(name.AsString(), '/') {
				return fmt.Errorf("hcl: key %q contains '/'", name.AsString())
			}
			if err := flatten(ks, prefix+"/"+name.AsString(), elem); err != nil {
				return err
			}
		}
		return nil

	case !val.IsNull() && (ty.IsTupleType() || ty.IsListType() || ty.IsSetType()):
		i := 0
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if err := flatten(ks, prefix+"/#"+strconv.Itoa(i), elem); err != nil {
				return err
			}
			i++
		}
		return nil

	default:
		value, typ, err := formatScalar(val)
		if err != nil {
			return fmt.Errorf("hcl: key %q: %w", prefix, err)
		}
		k, err := keyset.NewKey(prefix, keyset.WithValue(value), keyset.WithMeta(MetaType, typ))
		if err != nil {
			return err
		}
		ks.Insert(k)
		return nil
	}
}

// formatScalar renders a cty scalar as a string plus its type name.
func formatScalar(val cty.Value) (value, typ string, err error) {
	if val.IsNull() {
		return "", TypeNull, nil
	}
	switch val.Type() {
	case cty.String:
		return val.AsString(), TypeString, nil
	case cty.Bool:
		return strconv.FormatBool(val.True()), TypeBoolean, nil
	case cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			n, _ := bf.Int64()
			return strconv.FormatInt(n, 10), TypeLong, nil
		}
		f, _ := bf.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64), TypeDouble, nil
	default:
		return "", "", fmt.Errorf("unsupported value type %s", val.Type().FriendlyName())
	}
}

// marker is a block marker key prepared for writing.
type marker struct {
	path      string
	typ       string
	labels    []string
	container string
}

// Write serializes a keyset back to an HCL document.
func (f *Format) Write(ks *keyset.KeySet) ([]byte, error) {
	var markers []marker
	for _, k := range ks.Keys() {
		typ, isBlock := k.Meta(MetaBlock)
		if !isBlock {
			continue
		}
		m := marker{path: k.Path(), typ: typ}
		if labels, ok := k.Meta(MetaLabels); ok && labels != "" {
			m.labels = strings.Split(labels, " ")
		}
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].path < markers[j].path })
	for i := range markers {
		markers[i].container = containerOf(markers[i].path, markers, i)
	}

	// Group attribute leaves under their enclosing block.
	attrs := make(map[string]map[string]any)
	for _, k := range ks.Keys() {
		if _, isBlock := k.Meta(MetaBlock); isBlock {
			continue
		}
		container := containerOf(k.Path(), markers, -1)
		rel := strings.TrimPrefix(k.Path(), container)
		tree := attrs[container]
		if tree == nil {
			tree = make(map[string]any)
			attrs[container] = tree
		}
		v, err := toCtyScalar(k)
		if err != nil {
			return nil, err
		}
		if err := insert(tree, keyset.Segments(rel), v); err != nil {
			return nil, fmt.Errorf("hcl: key %q: %w", k.Name(), err)
		}
	}

	out := hclwrite.NewEmptyFile()
	if err := writeBody(out.Body(), "", markers, attrs); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// containerOf finds the longest marker path strictly prefixing path.
// skip excludes the marker's own entry when locating a block's parent.
func containerOf(path string, markers []marker, skip int) string {
	best := ""
	for i, m := range markers {
		if i == skip {
			continue
		}
		if strings.HasPrefix(path, m.path+"/") && len(m.path) > len(best) {
			best = m.path
		}
	}
	return best
}

func writeBody(body *hclwrite.Body, container string, markers []marker, attrs map[string]map[string]any) error {
	tree := attrs[container]
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val, err := toCty(tree[name])
		if err != nil {
			return err
		}
		body.SetAttributeValue(name, val)
	}

	for _, m := range markers {
		if m.container != container {
			continue
		}
		block := body.AppendNewBlock(m.typ, m.labels)
		if err := writeBody(block.Body(), m.path, markers, attrs); err != nil {
			return err
		}
	}
	return nil
}

// toCtyScalar converts a key's string value back to the cty type its
// metadata records. Keys without type metadata stay strings.
func toCtyScalar(k *keyset.Key) (cty.Value, error) {
	typ, _ := k.Meta(MetaType)
	switch typ {
	case TypeLong:
		n, err := strconv.ParseInt(k.Value(), 10, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("hcl: key %q: %w", k.Name(), err)
		}
		return cty.NumberIntVal(n), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(k.Value(), 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("hcl: key %q: %w", k.Name(), err)
		}
		return cty.NumberFloatVal(f), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(k.Value())
		if err != nil {
			return cty.NilVal, fmt.Errorf("hcl: key %q: %w", k.Name(), err)
		}
		return cty.BoolVal(b), nil
	case TypeNull:
		return cty.NullVal(cty.String), nil
	default:
		return cty.StringVal(k.Value()), nil
	}
}

// toCty assembles a cty value from an attribute tree node.
func toCty(node any) (cty.Value, error) {
	switch n := node.(type) {
	case cty.Value:
		return n, nil
	case map[string]any:
		vals := make(map[string]cty.Value, len(n))
		for name, child := range n {
			v, err := toCty(child)
			if err != nil {
				return cty.NilVal, err
			}
			vals[name] = v
		}
		return cty.ObjectVal(vals), nil
	case []any:
		vals := make([]cty.Value, len(n))
		for i, child := range n {
			if child == nil {
				vals[i] = cty.NullVal(cty.String)
				continue
			}
			v, err := toCty(child)
			if err != nil {
				return cty.NilVal, err
			}
			vals[i] = v
		}
		return cty.TupleVal(vals), nil
	default:
		return cty.NilVal, fmt.Errorf("hcl: unexpected tree node %T", node)
	}
}

// insert places v at the path described by segs, creating intermediate
// objects and arrays as needed. Segments of the form "#N" address array
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
			return fmt.Errorf("scalar and object collide at %q", name)
		}
		child = make(map[string]any)
		node[name] = child
	}
	return insert(child, rest, v)
}

func insertArray(node map[string]any, name string, segs []string, v any) error {
	idx, err := strconv.Atoi(strings.TrimPrefix(segs[0], "#"))
	if err != nil || idx < 0 {
		return fmt.Errorf("bad array index %q", segs[0])
	}

	arr, _ := node[name].([]any)
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
