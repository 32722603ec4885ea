package relational

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

// builder collects positional arguments while a statement is assembled.
type builder struct {
	d    dialect
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

// value binds v and wraps its placeholder for v's column type.
func (b *builder) value(v types.Value) (string, error) {
	raw, err := b.d.encode(v)
	if err != nil {
		return "", err
	}
	return b.d.param(v.Type(), b.arg(raw)), nil
}

var comparisonOps = map[query.Operator]string{
	query.EQ:  "=",
	query.NEQ: "<>",
	query.LT:  "<",
	query.GT:  ">",
	query.LEQ: "<=",
	query.GEQ: ">=",
}

// predicate translates a bound comparison or compound into a WHERE condition.
func (b *builder) predicate(layout model.Layout, p query.Predicate) (string, error) {
	switch p := p.(type) {
	case *query.Comparison:
		return b.comparison(layout, p)
	case *query.Compound:
		conds := make([]string, len(p.Clauses))
		for i := range p.Clauses {
			c, err := b.comparison(layout, &p.Clauses[i])
			if err != nil {
				return "", err
			}
			conds[i] = "(" + c + ")"
		}
		return strings.Join(conds, " "+p.Operator.String()+" "), nil
	}
	return "", fmt.Errorf("predicate %T: %w", p, descriptorstore.ErrUnsupported)
}

func (b *builder) comparison(layout model.Layout, c *query.Comparison) (string, error) {
	a, ok := layout.Lookup(c.Attribute)
	if !ok {
		return "", fmt.Errorf("descriptor has no attribute %q: %w", c.Attribute, descriptorstore.ErrInvalidQuery)
	}
	if c.Operator.Ordering() && a.Type.IsVector() {
		return "1 = 0", nil
	}
	col := quote(a.Name)
	switch c.Operator {
	case query.LIKE:
		s, _ := c.Value.Str()
		return col + " LIKE " + b.arg(s) + ` ESCAPE '\'`, nil
	case query.IN:
		phs := make([]string, len(c.Values))
		for i, v := range c.Values {
			ph, err := b.value(v)
			if err != nil {
				return "", err
			}
			phs[i] = ph
		}
		return col + " IN (" + strings.Join(phs, ", ") + ")", nil
	}
	op, ok := comparisonOps[c.Operator]
	if !ok {
		return "", fmt.Errorf("operator %s: %w", c.Operator, descriptorstore.ErrInvalidQuery)
	}
	if c.Operator != query.EQ && c.Operator != query.NEQ {
		col = b.d.ordered(a.Type, col)
	}
	v, err := b.value(c.Value)
	if err != nil {
		return "", err
	}
	return col + " " + op + " " + v, nil
}

// selectList returns the id columns followed by the layout columns.
func selectList(d dialect, layout model.Layout) string {
	cols := make([]string, 0, len(layout)+2)
	cols = append(cols,
		d.column(types.UUID, quote(database.DescriptorIDColumn)),
		d.column(types.UUID, quote(database.RetrievableIDColumn)),
	)
	for _, a := range layout {
		cols = append(cols, d.column(a.Type, quote(a.Name)))
	}
	return strings.Join(cols, ", ")
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(n)
}

// uuids binds ids and returns their comma separated placeholders.
func (b *builder) uuids(ids []uuid.UUID) string {
	phs := make([]string, len(ids))
	for i, id := range ids {
		phs[i] = b.d.param(types.UUID, b.arg(id.String()))
	}
	return strings.Join(phs, ", ")
}
