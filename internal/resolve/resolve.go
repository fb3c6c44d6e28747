// Package resolve implements placeholder substitution for templated key
// names.
//
// A templated name contains placeholder segments ("%tag%" or the anonymous
// "%") that are rewritten into concrete segments using the currently active
// layer bindings. Resolution is pure and total: it always yields exactly one
// concrete, lookup-able name and never fails. A placeholder whose tag has no
// active binding degrades to the literal wildcard segment "%", which is the
// documented unresolved state, not an error.
package resolve

import (
	"strings"

	"github.com/dshills/contour/internal/keyset"
)

// View reports the current string for a layer tag.
// The second return is false when the tag has no active binding.
type View func(tag string) (string, bool)

// EmptyView is a View with no active bindings.
func EmptyView(string) (string, bool) {
	return "", false
}

// Name rewrites a templated key name into a concrete name using view.
// Literal segments pass through unchanged. A namespace prefix, if present,
// is preserved.
func Name(name string, view View) string {
	if view == nil {
		view = EmptyView
	}

	ns, path := keyset.SplitNamespace(name)
	segs := keyset.Segments(path)

	changed := false
	for i, seg := range segs {
		tag, ok := keyset.PlaceholderTag(seg)
		if !ok {
			continue
		}
		resolved := "%"
		if tag != "" {
			if cur, active := view(tag); active {
				resolved = cur
			}
		}
		if resolved != seg {
			segs[i] = resolved
			changed = true
		}
	}

	if !changed {
		return name
	}
	out := keyset.JoinSegments(segs)
	if ns != "" {
		out = ns + ":" + out
	}
	return out
}

// IsTemplated reports whether a name contains any placeholder segment.
func IsTemplated(name string) bool {
	_, path := keyset.SplitNamespace(name)
	for _, seg := range keyset.Segments(path) {
		if _, ok := keyset.PlaceholderTag(seg); ok {
			return true
		}
	}
	return false
}

// Tags returns the named placeholder tags in a templated name, in order.
// Anonymous wildcards contribute nothing.
func Tags(name string) []string {
	_, path := keyset.SplitNamespace(name)
	var tags []string
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if tag, ok := keyset.PlaceholderTag(seg); ok && tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
