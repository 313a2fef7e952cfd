// Package diff computes tri-state field changes between an on-chain value and
// its user-edited counterpart.
//
// A field is either left alone (Unchanged), removed (Cleared) or replaced with
// a new value (Set). Presence is modelled with pointers: a nil pointer is an
// absent value. The functions here are total and side-effect free.
package diff

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies a single field change.
type Kind int

const (
	Unchanged Kind = iota
	Cleared
	Set
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Cleared:
		return "cleared"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name so fingerprints stay stable if the
// constants are ever reordered.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unchanged":
		*k = Unchanged
	case "cleared":
		*k = Cleared
	case "set":
		*k = Set
	default:
		return fmt.Errorf("diff: unknown kind %q", string(b))
	}
	return nil
}

// Change is the result of diffing one field. Value is only meaningful when
// Kind is Set.
type Change[T comparable] struct {
	Kind  Kind
	Value T
}

// SetTo returns a Set change carrying v.
func SetTo[T comparable](v T) Change[T] {
	return Change[T]{Kind: Set, Value: v}
}

// Clear returns a Cleared change.
func Clear[T comparable]() Change[T] {
	return Change[T]{Kind: Cleared}
}

// IsZero reports whether the change is Unchanged.
func (c Change[T]) IsZero() bool {
	return c.Kind == Unchanged
}

// Apply returns the value a field holds after the change is applied to original.
func (c Change[T]) Apply(original *T) *T {
	switch c.Kind {
	case Cleared:
		return nil
	case Set:
		v := c.Value
		return &v
	default:
		return original
	}
}

func (c Change[T]) String() string {
	if c.Kind == Set {
		return fmt.Sprintf("set(%v)", c.Value)
	}
	return c.Kind.String()
}

type changeJSON[T comparable] struct {
	Kind  Kind `json:"kind"`
	Value *T   `json:"value,omitempty"`
}

func (c Change[T]) MarshalJSON() ([]byte, error) {
	out := changeJSON[T]{Kind: c.Kind}
	if c.Kind == Set {
		v := c.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (c *Change[T]) UnmarshalJSON(b []byte) error {
	var in changeJSON[T]
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	c.Kind = in.Kind
	var zero T
	c.Value = zero
	if in.Kind == Set && in.Value != nil {
		c.Value = *in.Value
	}
	return nil
}

// Diff compares an original value against an edited one.
//
//   - edited absent, original present      -> Cleared
//   - edited present and != original       -> Set(edited)
//   - anything else                        -> Unchanged
func Diff[T comparable](original, edited *T) Change[T] {
	switch {
	case edited == nil && original != nil:
		return Clear[T]()
	case edited != nil && (original == nil || *edited != *original):
		return SetTo(*edited)
	default:
		return Change[T]{}
	}
}

// DiffText diffs free text such as a pool name. Both sides are NFC-normalised
// and stripped of surrounding whitespace; an empty string counts as absent.
func DiffText(original, edited string) Change[string] {
	return Diff(Text(original), Text(edited))
}

// Text normalises s and returns nil when nothing is left.
func Text(s string) *string {
	s = strings.TrimFunc(norm.NFC.String(s), unicode.IsSpace)
	if s == "" {
		return nil
	}
	return &s
}

// DiffAddress diffs account addresses. Addresses are compared verbatim; an
// empty string counts as absent.
func DiffAddress(original, edited string) Change[string] {
	return Diff(Address(original), Address(edited))
}

// Address returns nil for an empty address.
func Address(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Percent bounds.
const (
	MinPercent = 0.0
	MaxPercent = 100.0
)

// DiffPercent clamps edited into [0,100] before comparing, so an out-of-range
// entry that clamps back to the original collapses to Unchanged. A NaN entry
// is not a value and leaves the field Unchanged.
func DiffPercent(original, edited *float64) Change[float64] {
	if edited != nil && math.IsNaN(*edited) {
		return Change[float64]{}
	}
	if edited != nil {
		v := Clamp(*edited, MinPercent, MaxPercent)
		edited = &v
	}
	return Diff(original, edited)
}

// Clamp bounds v to [lo, hi]. NaN clamps to lo.
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v != v {
		return lo
	}
	return min(max(v, lo), hi)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
