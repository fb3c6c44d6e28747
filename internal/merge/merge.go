// Package merge combines two keysets, e.g. when importing a file into an
// already-populated mount.
package merge

import (
	"fmt"
	"strings"

	"github.com/dshills/contour/internal/keyset"
)

// Strategy selects how conflicting keys are resolved.
type Strategy int

const (
	// StrategyFail rejects the merge if any key conflicts.
	StrategyFail Strategy = iota
	// StrategyOurs keeps the base value on conflict.
	StrategyOurs
	// StrategyTheirs takes the incoming value on conflict.
	StrategyTheirs
)

// ParseStrategy maps a strategy name to its Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "fail":
		return StrategyFail, nil
	case "ours":
		return StrategyOurs, nil
	case "theirs":
		return StrategyTheirs, nil
	default:
		return 0, fmt.Errorf("unknown merge strategy %q", name)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyFail:
		return "fail"
	case StrategyOurs:
		return "ours"
	case StrategyTheirs:
		return "theirs"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Conflict is one key present in both sets with different values.
type Conflict struct {
	Name   string
	Ours   string
	Theirs string
}

// ConflictError reports the conflicts that blocked a StrategyFail merge.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	names := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		names[i] = c.Name
	}
	return fmt.Sprintf("merge conflicts on %s", strings.Join(names, ", "))
}

// Merge combines ours and theirs into a new keyset. Keys present in only
// one set are taken as-is; keys present in both with equal values are
// taken from ours (preserving its metadata). Value conflicts resolve per
// strategy, and StrategyFail returns a ConflictError listing every
// conflict. Neither input is modified.
func Merge(ours, theirs *keyset.KeySet, strategy Strategy) (*keyset.KeySet, error) {
	out := ours.Clone()

	var conflicts []Conflict
	for _, in := range theirs.Keys() {
		base := ours.Lookup(in.Name())
		if base == nil {
			out.Insert(in.Clone())
			continue
		}
		if base.Value() == in.Value() {
			continue
		}

		switch strategy {
		case StrategyOurs:
			// Base wins, nothing to do.
		case StrategyTheirs:
			out.Insert(in.Clone())
		default:
			conflicts = append(conflicts, Conflict{
				Name:   in.Name(),
				Ours:   base.Value(),
				Theirs: in.Value(),
			})
		}
	}

	if len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}
	return out, nil
}
