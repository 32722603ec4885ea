package query

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// Operator is a comparison operator.
type Operator int

const (
	EQ Operator = iota
	NEQ
	LT
	GT
	LEQ
	GEQ
	LIKE
	IN
)

var operatorNames = []string{"EQ", "NEQ", "LT", "GT", "LEQ", "GEQ", "LIKE", "IN"}

func (o Operator) String() string {
	if o >= 0 && int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Ordering reports whether o is LT, GT, LEQ or GEQ. Ordering comparisons
// never match vector values.
func (o Operator) Ordering() bool {
	return o >= LT && o <= GEQ
}

// ParseOperator parses an operator name such as "EQ" or "like".
func ParseOperator(s string) (Operator, error) {
	for i, n := range operatorNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q: %w", s, descriptorstore.ErrInvalidQuery)
}

// Comparison compares one attribute against a value. IN compares against Values.
type Comparison struct {
	// Attribute may be empty for scalar descriptors.
	Attribute string
	Operator  Operator
	Value     types.Value
	Values    []types.Value
	Limit     int
}

func (c *Comparison) limit() int { return c.Limit }

func (c *Comparison) Validate() error {
	switch c.Operator {
	case IN:
		if len(c.Values) == 0 {
			return fmt.Errorf("IN requires at least one value: %w", descriptorstore.ErrInvalidQuery)
		}
	case LIKE:
		if c.Value.Type().Kind != types.KindString && c.Value.Type().Kind != types.KindText {
			return fmt.Errorf("LIKE requires a string pattern, got %s: %w", c.Value.Type(), descriptorstore.ErrInvalidQuery)
		}
		if _, err := LikePattern(mustStr(c.Value)); err != nil {
			return err
		}
	case EQ, NEQ, LT, GT, LEQ, GEQ:
		if c.Value.IsNull() {
			return fmt.Errorf("%s requires a value: %w", c.Operator, descriptorstore.ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("unknown operator %d: %w", int(c.Operator), descriptorstore.ErrInvalidQuery)
	}
	if c.Limit < 0 {
		return fmt.Errorf("negative limit: %w", descriptorstore.ErrInvalidQuery)
	}
	return nil
}

func (c *Comparison) Bind(proto model.Descriptor) (Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	a, err := ResolveAttribute(proto, c.Attribute)
	if err != nil {
		return nil, err
	}
	if c.Operator == LIKE && a.Type.Kind != types.KindString && a.Type.Kind != types.KindText {
		return nil, fmt.Errorf("LIKE on %s attribute %q: %w", a.Type, a.Name, descriptorstore.ErrInvalidQuery)
	}
	bound := *c
	bound.Attribute = a.Name
	return &bound, nil
}

func (c *Comparison) Matches(values map[string]types.Value) bool {
	v, ok := values[c.Attribute]
	if !ok || v.IsNull() {
		return false
	}
	switch c.Operator {
	case EQ:
		return types.Equal(v, c.Value)
	case NEQ:
		return !types.Equal(v, c.Value)
	case LT, GT, LEQ, GEQ:
		cmp, err := types.Compare(v, c.Value)
		if err != nil {
			return false
		}
		switch c.Operator {
		case LT:
			return cmp < 0
		case GT:
			return cmp > 0
		case LEQ:
			return cmp <= 0
		default:
			return cmp >= 0
		}
	case LIKE:
		s, ok := v.Str()
		if !ok {
			return false
		}
		re, err := cachedLike(mustStr(c.Value))
		return err == nil && re.MatchString(s)
	case IN:
		for _, x := range c.Values {
			if types.Equal(v, x) {
				return true
			}
		}
	}
	return false
}

// LikePattern compiles a SQL LIKE pattern into an anchored regular expression.
// '%' matches any run of characters and '_' exactly one; a backslash makes the
// next '%', '_' or '\' literal.
func LikePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, fmt.Errorf("LIKE pattern %q ends with an escape: %w", pattern, descriptorstore.ErrInvalidQuery)
	}
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}

var likeCache sync.Map

func cachedLike(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := LikePattern(pattern)
	if err != nil {
		return nil, err
	}
	likeCache.Store(pattern, re)
	return re, nil
}

func mustStr(v types.Value) string {
	s, _ := v.Str()
	return s
}
