// Package check validates keys against the validation metadata they
// carry. A "check/type" entry constrains the value to a scalar type and
// a "check/expr" entry is an expression (github.com/expr-lang/expr) that
// must evaluate to true.
//
// The expression environment exposes:
//
//	value  the key's value as a string
//	num    the value parsed as a number, or 0
//	name   the key's full name
//	meta   the key's metadata map
package check

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// Metadata names recognized by the validator.
const (
	MetaExpr = "check/expr"
	MetaType = "check/type"
)

// ErrValidation is the sentinel wrapped by all validation failures.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a single key that failed validation.
type ValidationError struct {
	// Key is the failing key's name.
	Key string
	// Constraint is the metadata entry that failed.
	Constraint string
	// Reason describes the failure.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Key, e.Constraint, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validator validates keysets. Compiled expressions are cached, so a
// validator can be shared across fetches.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// New creates a validator with an empty program cache.
func New() *Validator {
	return &Validator{cache: make(map[string]*vm.Program)}
}

// Validate checks every key in ks, aggregating all failures.
func (v *Validator) Validate(ks *keyset.KeySet) error {
	var errs []error
	for _, k := range ks.Keys() {
		if err := v.ValidateKey(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateKey checks a single key against its validation metadata.
func (v *Validator) ValidateKey(k *keyset.Key) error {
	if typ, ok := k.Meta(MetaType); ok {
		if err := checkType(k, typ); err != nil {
			return err
		}
	}

	expression, ok := k.Meta(MetaExpr)
	if !ok {
		return nil
	}

	program, err := v.compile(expression)
	if err != nil {
		return &ValidationError{Key: k.Name(), Constraint: MetaExpr, Reason: err.Error()}
	}

	result, err := expr.Run(program, environment(k))
	if err != nil {
		return &ValidationError{Key: k.Name(), Constraint: MetaExpr, Reason: err.Error()}
	}

	pass, ok := result.(bool)
	if !ok {
		return &ValidationError{
			Key:        k.Name(),
			Constraint: MetaExpr,
			Reason:     fmt.Sprintf("expression yielded %T, want bool", result),
		}
	}
	if !pass {
		return &ValidationError{
			Key:        k.Name(),
			Constraint: MetaExpr,
			Reason:     fmt.Sprintf("value %q rejected by %q", k.Value(), expression),
		}
	}
	return nil
}

func (v *Validator) compile(expression string) (*vm.Program, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if program, ok := v.cache[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}
	v.cache[expression] = program
	return program, nil
}

func environment(k *keyset.Key) map[string]any {
	num, _ := strconv.ParseFloat(k.Value(), 64)
	meta := make(map[string]string)
	for _, name := range k.MetaNames() {
		meta[name], _ = k.Meta(name)
	}
	return map[string]any{
		"value": k.Value(),
		"num":   num,
		"name":  k.Name(),
		"meta":  meta,
	}
}

func checkType(k *keyset.Key, typ string) error {
	var err error
	switch typ {
	case "string":
		// Any value is a string.
	case "long":
		_, err = strconv.ParseInt(k.Value(), 10, 64)
	case "double":
		_, err = strconv.ParseFloat(k.Value(), 64)
	case "boolean":
		_, err = strconv.ParseBool(k.Value())
	default:
		return &ValidationError{
			Key:        k.Name(),
			Constraint: MetaType,
			Reason:     fmt.Sprintf("unknown type %q", typ),
		}
	}
	if err != nil {
		return &ValidationError{
			Key:        k.Name(),
			Constraint: MetaType,
			Reason:     fmt.Sprintf("value %q is not a %s", k.Value(), typ),
		}
	}
	return nil
}

// AfterFetch implements plugin.KeyFilter, rejecting invalid fetched data.
func (v *Validator) AfterFetch(ks *keyset.KeySet) error {
	return v.Validate(ks)
}

// BeforePersist implements plugin.KeyFilter, refusing to write invalid
// data.
func (v *Validator) BeforePersist(ks *keyset.KeySet) error {
	return v.Validate(ks)
}

var _ plugin.KeyFilter = (*Validator)(nil)
