package relational

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/pgvector/pgvector-go"
)

// dialect isolates the SQL differences between the supported engines.
type dialect interface {
	// name is the provider name, used for logs and metrics.
	name() string
	placeholder(n int) string
	// table returns the quoted, possibly schema-qualified table name.
	table(schema, name string) string
	columnType(t types.Type) string

	// param wraps the placeholder of a value of type t, e.g. with a cast.
	param(t types.Type, placeholder string) string
	// column wraps a column reference of type t in a select list.
	column(t types.Type, col string) string
	encode(v types.Value) (any, error)

	// distance compares col, a vector column of type t, with arg.
	distance(m distance.Metric, t types.Type, col, arg string) (string, error)
	// ordered returns col prepared for ordering comparisons.
	ordered(t types.Type, col string) string
	fullText(col string, terms []string, arg func(any) string) (where, score string)
	spatial(q *query.Spatial, geom, lon, lat string, arg func(any) string) (string, error)

	// tableExists returns a query taking the unqualified table name.
	tableExists(schema string) string
	createSchema(schema string) []string
	// extension returns the statement enabling columns of type t, if any.
	extension(t types.Type) string
	truncate(tables ...string) []string
	dropTable(table string) string
	index(table, col string, t types.Type, kind string, params map[string]string) (string, error)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// encodeCommon converts the values both engines store the same way.
func encodeCommon(v types.Value) (any, bool) {
	if v.IsNull() {
		return nil, true
	}
	switch k := v.Type().Kind; {
	case k == types.KindString || k == types.KindText:
		s, _ := v.Str()
		return s, true
	case k == types.KindBoolean:
		b, _ := v.Bool()
		return b, true
	case k == types.KindFloat || k == types.KindDouble:
		f, _ := v.Float64()
		return f, true
	case k.IsNumeric():
		i, _ := v.Int64()
		return i, true
	case k == types.KindUUID:
		u, _ := v.UUID()
		return u.String(), true
	case k == types.KindGeography:
		g, _ := v.Geo()
		return g.String(), true
	case k == types.KindBooleanVector:
		bits, _ := v.Bools()
		var sb strings.Builder
		for _, b := range bits {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		return sb.String(), true
	case k.IsVector():
		return vectorText(v), true
	}
	return nil, false
}

// vectorText renders a numeric vector in the pgvector text format. Float
// vectors use pgvector's own encoder; integer kinds are written exactly and
// doubles keep full precision.
func vectorText(v types.Value) string {
	return "[" + components(v) + "]"
}

// arrayText renders a numeric vector as a PostgreSQL array literal.
func arrayText(v types.Value) string {
	return "{" + components(v) + "}"
}

func components(v types.Value) string {
	if f, ok := v.Float32s(); ok && v.Type().Kind == types.KindFloatVector {
		s := pgvector.NewVector(f).String()
		return s[1 : len(s)-1]
	}
	var buf []byte
	if ints, ok := v.Int64s(); ok {
		for i, x := range ints {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendInt(buf, x, 10)
		}
		return string(buf)
	}
	f, _ := v.Float64s()
	for i, x := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	return string(buf)
}

// splitVectorText splits the pgvector text format, or an array literal,
// into its trimmed components.
func splitVectorText(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || !(s[0] == '[' && s[len(s)-1] == ']' || s[0] == '{' && s[len(s)-1] == '}') {
		return nil, fmt.Errorf("malformed vector %q: %w", s, descriptorstore.ErrTypeMismatch)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []string{}, nil
	}
	parts := strings.Split(body, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}

// parseVectorText parses the pgvector text format.
func parseVectorText(s string) ([]float64, error) {
	parts, err := splitVectorText(s)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", p, descriptorstore.ErrTypeMismatch)
		}
		out[i] = f
	}
	return out, nil
}

// decode converts a scanned column into a value of type t.
func decode(t types.Type, raw any) (types.Value, error) {
	if raw == nil {
		return types.Value{}, nil
	}
	if t.Kind.IsVector() && t.Kind != types.KindBooleanVector {
		var s string
		switch r := raw.(type) {
		case string:
			s = r
		case []byte:
			s = string(r)
		default:
			return types.Coerce(t, raw)
		}
		parts, err := splitVectorText(s)
		if err != nil {
			return types.Value{}, err
		}
		raw := make([]any, len(parts))
		for i, p := range parts {
			raw[i] = p
		}
		return types.Coerce(t, raw)
	}
	return types.Coerce(t, raw)
}

func unsupportedMetric(m distance.Metric) error {
	return fmt.Errorf("distance %s: %w", m, descriptorstore.ErrUnsupported)
}
