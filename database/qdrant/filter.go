package qdrant

import (
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// buildFilter translates a bound predicate into a Qdrant filter. exact is
// false when some clause has no native form: the filter then only narrows
// the candidates and the predicate has to be evaluated on every match.
// A nil filter matches everything.
func buildFilter(layout model.Layout, p query.Predicate) (filter *qdrant.Filter, exact bool) {
	switch p := p.(type) {
	case *query.Comparison:
		a, ok := layout.Lookup(p.Attribute)
		if !ok {
			return nil, false
		}
		return comparisonFilter(a.Type, p)
	case *query.Compound:
		conds := make([]*qdrant.Condition, 0, len(p.Clauses))
		exact = true
		for i := range p.Clauses {
			a, ok := layout.Lookup(p.Clauses[i].Attribute)
			if !ok {
				return nil, false
			}
			f, ok := comparisonFilter(a.Type, &p.Clauses[i])
			if !ok {
				exact = false
				continue
			}
			conds = append(conds, qdrant.NewFilterAsCondition(f))
		}
		if p.Operator == query.Or {
			if !exact {
				return nil, false
			}
			return &qdrant.Filter{Should: conds}, true
		}
		if len(conds) == 0 {
			return nil, exact
		}
		return &qdrant.Filter{Must: conds}, exact
	}
	return nil, false
}

func comparisonFilter(t types.Type, c *query.Comparison) (*qdrant.Filter, bool) {
	key := c.Attribute
	switch c.Operator {
	case query.EQ:
		if cond, ok := equals(key, t, c.Value); ok {
			return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, true
		}
	case query.NEQ:
		if cond, ok := equals(key, t, c.Value); ok {
			return &qdrant.Filter{MustNot: []*qdrant.Condition{cond, qdrant.NewIsEmpty(key)}}, true
		}
	case query.LT, query.GT, query.LEQ, query.GEQ:
		if t.IsVector() {
			return nothing(key), true
		}
		if cond, ok := bounded(key, t, c.Operator, c.Value); ok {
			return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, true
		}
	case query.IN:
		if cond, ok := oneOf(key, t, c.Values); ok {
			return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, true
		}
	}
	return nil, false
}

// nothing is a filter no point satisfies.
func nothing(key string) *qdrant.Filter {
	return &qdrant.Filter{
		Must:    []*qdrant.Condition{qdrant.NewIsEmpty(key)},
		MustNot: []*qdrant.Condition{qdrant.NewIsEmpty(key)},
	}
}

// equals matches key against v. Text attributes carry a full-text index
// and are compared in memory.
func equals(key string, t types.Type, v types.Value) (*qdrant.Condition, bool) {
	if v.Type().Kind != t.Kind {
		return nil, false
	}
	switch t.Kind {
	case types.KindString:
		s, _ := v.Str()
		return qdrant.NewMatchKeyword(key, s), true
	case types.KindUUID:
		u, _ := v.UUID()
		return qdrant.NewMatchKeyword(key, u.String()), true
	case types.KindBoolean:
		b, _ := v.Bool()
		return qdrant.NewMatchBool(key, b), true
	case types.KindByte, types.KindShort, types.KindInt, types.KindLong:
		i, _ := v.Int64()
		return qdrant.NewMatchInt(key, i), true
	case types.KindFloat, types.KindDouble:
		f, _ := v.Float64()
		return qdrant.NewRange(key, &qdrant.Range{Gte: &f, Lte: &f}), true
	case types.KindDatetime:
		ts, _ := v.Time()
		return qdrant.NewDatetimeRange(key, &qdrant.DatetimeRange{Gte: timestamppb.New(ts), Lte: timestamppb.New(ts)}), true
	}
	return nil, false
}

// bounded translates an ordering comparison. Strings have no native order.
func bounded(key string, t types.Type, op query.Operator, v types.Value) (*qdrant.Condition, bool) {
	switch {
	case t.Kind.IsNumeric():
		f, ok := v.Float64()
		if !ok {
			return nil, false
		}
		r := &qdrant.Range{}
		switch op {
		case query.LT:
			r.Lt = &f
		case query.GT:
			r.Gt = &f
		case query.LEQ:
			r.Lte = &f
		case query.GEQ:
			r.Gte = &f
		}
		return qdrant.NewRange(key, r), true
	case t.Kind == types.KindDatetime:
		ts, ok := v.Time()
		if !ok {
			return nil, false
		}
		r := &qdrant.DatetimeRange{}
		switch op {
		case query.LT:
			r.Lt = timestamppb.New(ts)
		case query.GT:
			r.Gt = timestamppb.New(ts)
		case query.LEQ:
			r.Lte = timestamppb.New(ts)
		case query.GEQ:
			r.Gte = timestamppb.New(ts)
		}
		return qdrant.NewDatetimeRange(key, r), true
	}
	return nil, false
}

func oneOf(key string, t types.Type, values []types.Value) (*qdrant.Condition, bool) {
	switch t.Kind {
	case types.KindString, types.KindUUID:
		keywords := make([]string, 0, len(values))
		for _, v := range values {
			if v.Type().Kind != t.Kind {
				return nil, false
			}
			if u, ok := v.UUID(); ok {
				keywords = append(keywords, u.String())
				continue
			}
			s, _ := v.Str()
			keywords = append(keywords, s)
		}
		return qdrant.NewMatchKeywords(key, keywords...), true
	case types.KindByte, types.KindShort, types.KindInt, types.KindLong:
		ints := make([]int64, 0, len(values))
		for _, v := range values {
			i, ok := v.Int64()
			if !ok || v.Type().Kind != t.Kind {
				return nil, false
			}
			ints = append(ints, i)
		}
		return qdrant.NewMatchInts(key, ints...), true
	}
	conds := make([]*qdrant.Condition, 0, len(values))
	for _, v := range values {
		cond, ok := equals(key, t, v)
		if !ok {
			return nil, false
		}
		conds = append(conds, cond)
	}
	return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: conds}), true
}

// anyOf matches points whose keyword key holds one of ids.
func anyOf(key string, ids []uuid.UUID) *qdrant.Filter {
	keywords := make([]string, len(ids))
	for i, id := range ids {
		keywords[i] = id.String()
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeywords(key, keywords...)}}
}
