// Package iniformat is the INI format plugin.
//
// Sections become section keys marked with "ini/section" metadata; keys
// inside a section carry "parent" metadata naming the section key.
// Serialization order is recorded in "order" metadata, and comment and
// blank lines are passed through verbatim in "comment" metadata (or
// "comment/trailing" for lines after the final entry), so that writing a
// parsed document reproduces it byte for byte.
package iniformat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// Metadata names used by the INI plugin.
const (
	MetaOrder    = "order"
	MetaParent   = "parent"
	MetaSection  = "ini/section"
	MetaComment  = "comment"
	MetaTrailing = "comment/trailing"
)

// Format implements plugin.Format for INI documents.
type Format struct{}

// New creates the INI format plugin.
func New() *Format {
	return &Format{}
}

// Name implements plugin.Format.
func (f *Format) Name() string {
	return "ini"
}

// Parse translates an INI document into a keyset.
func (f *Format) Parse(data []byte) (*keyset.KeySet, error) {
	ks := keyset.New()

	lines := strings.Split(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1] // split artifact of the final newline
	}

	var pending []string
	var last *keyset.Key
	section := ""
	order := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#"):
			pending = append(pending, line)

		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			k, err := keyset.NewKey("/" + name)
			if err != nil {
				return nil, &plugin.ParseError{
					Format:  "ini",
					Line:    i + 1,
					Message: fmt.Sprintf("bad section name %q", name),
					Err:     err,
				}
			}
			k.SetMeta(MetaSection, "")
			attach(k, &pending, &order)
			ks.Insert(k)
			section = k.Name()
			last = k

		default:
			eq := strings.IndexByte(line, '=')
			if eq < 0 {
				return nil, &plugin.ParseError{
					Format:  "ini",
					Line:    i + 1,
					Message: fmt.Sprintf("expected key = value, got %q", trimmed),
				}
			}
			name := strings.TrimSpace(line[:eq])
			value := strings.TrimSpace(line[eq+1:])
			k, err := keyset.NewKey(section+"/"+name, keyset.WithValue(value))
			if err != nil {
				return nil, &plugin.ParseError{
					Format:  "ini",
					Line:    i + 1,
					Message: fmt.Sprintf("bad key name %q", name),
					Err:     err,
				}
			}
			if section != "" {
				k.SetMeta(MetaParent, section)
			}
			attach(k, &pending, &order)
			ks.Insert(k)
			last = k
		}
	}

	// Lines after the final entry stay attached to it.
	if len(pending) > 0 && last != nil {
		last.SetMeta(MetaTrailing, strings.Join(pending, "\n"))
	}

	return ks, nil
}

// attach moves pending comment lines onto k and assigns its order.
func attach(k *keyset.Key, pending *[]string, order *int) {
	if len(*pending) > 0 {
		k.SetMeta(MetaComment, strings.Join(*pending, "\n"))
		*pending = nil
	}
	k.SetMeta(MetaOrder, strconv.Itoa(*order))
	*order++
}

// Write serializes a keyset back to an INI document. Global keys come
// first, then each section with its children; within a group, entries
// with "order" metadata keep their recorded order and entries without it
// (e.g. keys materialized by contextual values) follow in name order.
func (f *Format) Write(ks *keyset.KeySet) ([]byte, error) {
	var globals []*keyset.Key
	children := make(map[string][]*keyset.Key)
	sectionKeys := make(map[string]*keyset.Key)

	for _, k := range ks.Keys() {
		if _, isSection := k.Meta(MetaSection); isSection {
			sectionKeys[k.Name()] = k
			continue
		}
		section := sectionOf(k)
		if section == "" {
			globals = append(globals, k)
			continue
		}
		children[section] = append(children[section], k)
	}

	sortEntries(globals)

	// Sections referenced only via children still get a header.
	sections := make([]*keyset.Key, 0, len(sectionKeys))
	for _, k := range sectionKeys {
		sections = append(sections, k)
	}
	for name := range children {
		if _, ok := sectionKeys[name]; !ok {
			sk, err := keyset.NewKey(name)
			if err != nil {
				return nil, err
			}
			sk.SetMeta(MetaSection, "")
			sections = append(sections, sk)
		}
	}
	sort.Slice(sections, func(i, j int) bool {
		oi, hi := orderOf(sections[i])
		oj, hj := orderOf(sections[j])
		if hi && hj && oi != oj {
			return oi < oj
		}
		if hi != hj {
			return hi
		}
		return sections[i].Name() < sections[j].Name()
	})

	var b strings.Builder
	for _, k := range globals {
		writeEntry(&b, k, "")
	}
	for _, sk := range sections {
		writeEntry(&b, sk, "")
		kids := children[sk.Name()]
		sortEntries(kids)
		for _, k := range kids {
			writeEntry(&b, k, sk.Name())
		}
	}

	return []byte(b.String()), nil
}

// sectionOf determines the section key name a key belongs to: its
// "parent" metadata when present, otherwise its first path segment for
// keys deeper than one level.
func sectionOf(k *keyset.Key) string {
	if parent, ok := k.Meta(MetaParent); ok {
		return parent
	}
	segs := keyset.Segments(k.Path())
	if len(segs) > 1 {
		return "/" + segs[0]
	}
	return ""
}

// sortEntries orders entries by recorded order, unordered entries last in
// name order.
func sortEntries(keys []*keyset.Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		oi, hi := orderOf(keys[i])
		oj, hj := orderOf(keys[j])
		if hi && hj && oi != oj {
			return oi < oj
		}
		if hi != hj {
			return hi
		}
		return keys[i].Name() < keys[j].Name()
	})
}

func orderOf(k *keyset.Key) (int, bool) {
	s, ok := k.Meta(MetaOrder)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// writeEntry emits one key with its comment passthrough.
func writeEntry(b *strings.Builder, k *keyset.Key, section string) {
	if c, ok := k.Meta(MetaComment); ok {
		for _, line := range strings.Split(c, "\n") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if _, isSection := k.Meta(MetaSection); isSection {
		b.WriteString("[")
		b.WriteString(k.BaseName())
		b.WriteString("]\n")
	} else {
		name := k.Path()
		if section != "" {
			name = strings.TrimPrefix(name, section+"/")
		} else {
			name = strings.TrimPrefix(name, "/")
		}
		b.WriteString(name)
		b.WriteString(" = ")
		b.WriteString(k.Value())
		b.WriteByte('\n')
	}

	if c, ok := k.Meta(MetaTrailing); ok {
		for _, line := range strings.Split(c, "\n") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
}

var _ plugin.Format = (*Format)(nil)
