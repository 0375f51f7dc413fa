package types

import (
	"fmt"
	"strings"

	"github.com/spacemeshos/go-scale"
)

// Attribute is the role a process plays for an entity it holds.
type Attribute uint8

const (
	// Owner marks the process responsible for the entity.
	Owner Attribute = iota
	// Overlap marks a copy that participates in local computation.
	Overlap
	// Copy marks a plain ghost copy.
	Copy
	// Border marks an entity on the partition boundary.
	Border

	numAttributes = iota
)

func (a Attribute) String() string {
	switch a {
	case Owner:
		return "owner"
	case Overlap:
		return "overlap"
	case Copy:
		return "copy"
	case Border:
		return "border"
	default:
		return fmt.Sprintf("attribute(%d)", uint8(a))
	}
}

// Valid reports whether a is one of the known attributes.
func (a Attribute) Valid() bool {
	return a < numAttributes
}

// EncodeScale implements scale.Encodable.
func (a Attribute) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeByte(e, byte(a))
}

// DecodeScale implements scale.Decodable.
func (a *Attribute) DecodeScale(d *scale.Decoder) (int, error) {
	v, total, err := scale.DecodeByte(d)
	if err != nil {
		return total, err
	}
	*a = Attribute(v)
	if !a.Valid() {
		return total, fmt.Errorf("invalid attribute %d", v)
	}
	return total, nil
}

// ParseAttribute returns the attribute with the given name.
func ParseAttribute(s string) (Attribute, error) {
	for a := Attribute(0); a < numAttributes; a++ {
		if a.String() == strings.ToLower(s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute %q", s)
}

// AttributeSet is a predicate over attributes.
type AttributeSet uint16

// NewAttributeSet returns a set containing attrs.
func NewAttributeSet(attrs ...Attribute) AttributeSet {
	var s AttributeSet
	for _, a := range attrs {
		s = s.Add(a)
	}
	return s
}

// AllAttributes returns a set that contains every attribute.
func AllAttributes() AttributeSet {
	return AttributeSet(1<<numAttributes - 1)
}

// Add returns a copy of s with a included.
func (s AttributeSet) Add(a Attribute) AttributeSet {
	return s | 1<<a
}

// Contains reports whether a belongs to s.
func (s AttributeSet) Contains(a Attribute) bool {
	return s&(1<<a) != 0
}

func (s AttributeSet) String() string {
	var names []string
	for a := Attribute(0); a < numAttributes; a++ {
		if s.Contains(a) {
			names = append(names, a.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
