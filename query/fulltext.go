package query

import (
	"fmt"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// FullText matches free text against a text attribute and yields a relevance score.
type FullText struct {
	Attribute string
	Text      string
	Limit     int
}

func (f *FullText) limit() int { return f.Limit }

func (f *FullText) Validate() error {
	if len(f.Terms()) == 0 {
		return fmt.Errorf("full-text query without terms: %w", descriptorstore.ErrInvalidQuery)
	}
	return nil
}

// Terms returns the lower-cased whitespace separated terms of the query text.
func (f *FullText) Terms() []string {
	return strings.Fields(strings.ToLower(f.Text))
}

// Resolve returns the text attribute the query applies to.
func (f *FullText) Resolve(proto model.Descriptor) (model.Attribute, error) {
	if err := f.Validate(); err != nil {
		return model.Attribute{}, err
	}
	a, err := ResolveAttribute(proto, f.Attribute)
	if err != nil {
		return model.Attribute{}, err
	}
	if a.Type.Kind != types.KindString && a.Type.Kind != types.KindText {
		return model.Attribute{}, fmt.Errorf("full-text query on %s attribute %q: %w", a.Type, a.Name, descriptorstore.ErrInvalidQuery)
	}
	return a, nil
}

// Matches reports whether every term occurs in the attribute, ignoring case.
func (f *FullText) Matches(attribute string, values map[string]types.Value) bool {
	s, ok := values[attribute].Str()
	if !ok {
		return false
	}
	s = strings.ToLower(s)
	for _, t := range f.Terms() {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
