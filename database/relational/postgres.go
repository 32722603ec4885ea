package relational

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/pgvector/pgvector-go"
)

// PostgresName is the provider name of the PostgreSQL + pgvector dialect.
const PostgresName = "pgvector"

// postgres speaks PostgreSQL with the pgvector and PostGIS extensions.
type postgres struct {
	language string
}

func (postgres) name() string             { return PostgresName }
func (postgres) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgres) table(schema, name string) string {
	return quote(schema) + "." + quote(name)
}

func (postgres) columnType(t types.Type) string {
	switch t.Kind {
	case types.KindString:
		return "varchar(255)"
	case types.KindText:
		return "text"
	case types.KindBoolean:
		return "boolean"
	case types.KindByte, types.KindShort:
		return "smallint"
	case types.KindInt:
		return "integer"
	case types.KindLong:
		return "bigint"
	case types.KindFloat:
		return "real"
	case types.KindDouble:
		return "double precision"
	case types.KindDatetime:
		return "timestamp"
	case types.KindUUID:
		return "uuid"
	case types.KindGeography:
		return "geography(POINT," + strconv.Itoa(types.DefaultSRID) + ")"
	case types.KindBooleanVector:
		return "bit(" + strconv.Itoa(t.Dimensions) + ")"
	case types.KindIntVector:
		return "integer[]"
	case types.KindLongVector:
		return "bigint[]"
	case types.KindDoubleVector:
		return "double precision[]"
	}
	return "vector(" + strconv.Itoa(t.Dimensions) + ")"
}

// asVector casts an array column of type t to pgvector's vector type for
// the distance operators.
func asVector(t types.Type, col string) string {
	if t.Kind == types.KindFloatVector {
		return col
	}
	return col + "::float8[]::vector"
}

func (p postgres) param(t types.Type, ph string) string {
	switch {
	case t.Kind == types.KindGeography:
		return "ST_GeogFromText(" + ph + ")"
	case t.Kind == types.KindFloatVector:
		return ph + "::vector"
	case t.Kind.IsVector():
		return ph + "::" + p.columnType(t)
	}
	return ph
}

func (postgres) column(t types.Type, col string) string {
	switch {
	case t.Kind == types.KindGeography:
		return "ST_AsEWKT(" + col + ")"
	case t.Kind == types.KindUUID, t.Kind.IsVector():
		return col + "::text"
	}
	return col
}

func (postgres) encode(v types.Value) (any, error) {
	if !v.IsNull() {
		switch v.Type().Kind {
		case types.KindDatetime:
			t, _ := v.Time()
			return t.UTC(), nil
		case types.KindFloatVector:
			f, _ := v.Float32s()
			return pgvector.NewVector(f), nil
		case types.KindIntVector, types.KindLongVector, types.KindDoubleVector:
			return arrayText(v), nil
		}
	}
	if raw, ok := encodeCommon(v); ok {
		return raw, nil
	}
	return nil, fmt.Errorf("cannot store %s: %w", v.Type(), descriptorstore.ErrTypeMismatch)
}

func (postgres) distance(m distance.Metric, t types.Type, col, arg string) (string, error) {
	var op string
	switch m {
	case distance.Manhattan:
		op = "<+>"
	case distance.Euclidean:
		op = "<->"
	case distance.Cosine:
		op = "<=>"
	default:
		return "", unsupportedMetric(m)
	}
	if t.Kind != types.KindFloatVector {
		col = asVector(t, col)
	}
	return "(" + col + " " + op + " " + arg + "::vector)", nil
}

func (postgres) ordered(t types.Type, col string) string {
	if t.Kind == types.KindString || t.Kind == types.KindText {
		return col + ` COLLATE "C"`
	}
	return col
}

func (p postgres) fullText(col string, terms []string, arg func(any) string) (string, string) {
	lang := quoteLiteral(p.language)
	vec := "to_tsvector(" + lang + ", " + col + ")"
	q := "plainto_tsquery(" + lang + ", " + arg(strings.Join(terms, " ")) + ")"
	return vec + " @@ " + q, "ts_rank(" + vec + ", " + q + ")"
}

func (postgres) spatial(q *query.Spatial, geom, lon, lat string, arg func(any) string) (string, error) {
	target := geom
	if target == "" {
		target = "ST_SetSRID(ST_MakePoint(" + lon + ", " + lat + "), " + strconv.Itoa(types.DefaultSRID) + ")::geography"
	}
	ref := "ST_GeogFromText(" + arg(q.Reference.String()) + ")"
	switch q.Operator {
	case query.Equals:
		return "ST_Equals(" + target + "::geometry, " + ref + "::geometry)", nil
	case query.Intersects:
		return "ST_Intersects(" + target + ", " + ref + ")", nil
	case query.Contains:
		return "ST_Contains(" + target + "::geometry, " + ref + "::geometry)", nil
	case query.Within:
		return "ST_Within(" + target + "::geometry, " + ref + "::geometry)", nil
	case query.DWithin:
		if q.Distance == nil {
			return "", fmt.Errorf("DWITHIN without distance: %w", descriptorstore.ErrInvalidQuery)
		}
		return "ST_DWithin(" + target + ", " + ref + ", " + arg(*q.Distance) + ", " + strconv.FormatBool(q.UseSpheroid) + ")", nil
	}
	return "", fmt.Errorf("spatial operator %s: %w", q.Operator, descriptorstore.ErrUnsupported)
}

func (postgres) tableExists(schema string) string {
	return "SELECT to_regclass(" + quoteLiteral(quote(schema)) + " || '.' || quote_ident($1)) IS NOT NULL"
}

func (postgres) createSchema(schema string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + quote(schema)}
}

func (postgres) extension(t types.Type) string {
	switch {
	case t.Kind == types.KindGeography:
		return "CREATE EXTENSION IF NOT EXISTS postgis"
	case t.Kind.IsVector() && t.Kind != types.KindBooleanVector:
		return "CREATE EXTENSION IF NOT EXISTS vector"
	}
	return ""
}

func (postgres) truncate(tables ...string) []string {
	return []string{"TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE"}
}

func (postgres) dropTable(table string) string {
	return "DROP TABLE IF EXISTS " + table + " CASCADE"
}

// index supports btree, hash and brin on any column, gin full-text indexes
// on text and hnsw or ivfflat on float vectors.
func (p postgres) index(table, col string, t types.Type, kind string, params map[string]string) (string, error) {
	name := quote(strings.Trim(table[strings.LastIndex(table, ".")+1:], `"`) + "_" + strings.Trim(col, `"`) + "_" + kind)
	head := "CREATE INDEX IF NOT EXISTS " + name + " ON " + table + " USING "
	switch kind {
	case "btree", "hash", "brin":
		return head + kind + " (" + col + ")", nil
	case "gin":
		if t.Kind != types.KindString && t.Kind != types.KindText {
			break
		}
		return head + "gin (to_tsvector(" + quoteLiteral(p.language) + ", " + col + "))", nil
	case "hnsw", "ivfflat":
		if t.Kind != types.KindFloatVector {
			break
		}
		m, err := distance.ParseMetric(database.Param(params, ParamDistance, distance.Euclidean.String()))
		if err != nil {
			return "", fmt.Errorf("%w: %w", descriptorstore.ErrInvalidConfig, err)
		}
		var ops string
		switch m {
		case distance.Manhattan:
			ops = "vector_l1_ops"
		case distance.Euclidean:
			ops = "vector_l2_ops"
		case distance.Cosine:
			ops = "vector_cosine_ops"
		default:
			return "", fmt.Errorf("index for %s: %w", m, descriptorstore.ErrInvalidConfig)
		}
		return head + kind + " (" + col + " " + ops + ")", nil
	}
	return "", fmt.Errorf("index %q on %s column: %w", kind, t, descriptorstore.ErrInvalidConfig)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
