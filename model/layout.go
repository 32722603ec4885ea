package model

import (
	"fmt"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/types"
)

// Fixed attribute names of scalar and vector descriptors.
const (
	AttributeValue  = "value"
	AttributeVector = "vector"
)

// Attribute is one named, typed entry of a descriptor layout.
type Attribute struct {
	Name     string
	Type     types.Type
	Nullable bool
}

// Layout is the ordered list of attributes of a descriptor.
type Layout []Attribute

// Names returns the attribute names in declaration order.
func (l Layout) Names() []string {
	names := make([]string, len(l))
	for i, a := range l {
		names[i] = a.Name
	}
	return names
}

// Lookup returns the attribute with the given name.
func (l Layout) Lookup(name string) (Attribute, bool) {
	for _, a := range l {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Validate checks that names are non-empty, unique and typed.
func (l Layout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("empty layout: %w", descriptorstore.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(l))
	for _, a := range l {
		if a.Name == "" || strings.ContainsAny(a.Name, ". \t\"") {
			return fmt.Errorf("invalid attribute name %q: %w", a.Name, descriptorstore.ErrInvalidConfig)
		}
		if a.Type.Kind == types.KindUnknown {
			return fmt.Errorf("attribute %q has no type: %w", a.Name, descriptorstore.ErrInvalidConfig)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("duplicate attribute %q: %w", a.Name, descriptorstore.ErrInvalidConfig)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// ParseLayout parses a comma-separated list of name:Type pairs, e.g.
// "path:String,size:Long". A trailing "?" on the type marks the attribute nullable.
func ParseLayout(s string) (Layout, error) {
	var layout Layout
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("attribute %q is not name:Type: %w", part, descriptorstore.ErrInvalidConfig)
		}
		typ = strings.TrimSpace(typ)
		nullable := strings.HasSuffix(typ, "?")
		t, err := types.ParseType(strings.TrimSuffix(typ, "?"))
		if err != nil {
			return nil, err
		}
		layout = append(layout, Attribute{Name: strings.TrimSpace(name), Type: t, Nullable: nullable})
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return layout, nil
}
