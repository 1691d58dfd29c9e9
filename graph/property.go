package graph

import (
	"fmt"
	"regexp"
	"time"
)

// PropertyKind is the value kind of an entry in a node's property bag.
type PropertyKind string

const (
	KindString   PropertyKind = "string"
	KindNumber   PropertyKind = "number"
	KindDate     PropertyKind = "date"
	KindVariable PropertyKind = "variable"
)

// DateLayout is the calendar date format used for date properties.
const DateLayout = "2006-01-02"

var propertyNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

// Property is a typed entry of a node's property bag.
//
// The bag itself stays free-form in storage; Property is the shape used at
// the edit boundary, where names and kinds are validated.
type Property struct {
	Name  string       `json:"name"`
	Kind  PropertyKind `json:"type"`
	Value any          `json:"value"`
}

// Valid reports whether the kind is one of the known kinds.
func (k PropertyKind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindDate, KindVariable:
		return true
	}
	return false
}

// DefaultValue returns the value a freshly added property of this kind starts with.
func (k PropertyKind) DefaultValue(now time.Time) any {
	switch k {
	case KindNumber:
		return float64(0)
	case KindDate:
		return now.Format(DateLayout)
	default:
		return ""
	}
}

// ValidatePropertyName checks that a property name is camelCase.
func ValidatePropertyName(name string) error {
	if !propertyNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be camelCase (start with a lowercase letter, letters and digits only)", ErrInvalidProperty, name)
	}
	return nil
}

// Validate checks the name and kind, and that the value fits the kind.
func (p Property) Validate() error {
	if err := ValidatePropertyName(p.Name); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProperty, p.Kind)
	}

	switch p.Kind {
	case KindNumber:
		switch p.Value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("%w: %s expects a number", ErrInvalidProperty, p.Name)
		}
	case KindDate:
		s, ok := p.Value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a date string", ErrInvalidProperty, p.Name)
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidProperty, p.Name, err)
		}
	case KindString, KindVariable:
		if _, ok := p.Value.(string); !ok {
			return fmt.Errorf("%w: %s expects a string", ErrInvalidProperty, p.Name)
		}
	}
	return nil
}

// NewProperty returns a property of the given kind holding the kind's default value.
func NewProperty(name string, kind PropertyKind) Property {
	return Property{Name: name, Kind: kind, Value: kind.DefaultValue(time.Now())}
}
