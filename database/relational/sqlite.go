package relational

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"modernc.org/sqlite"
)

// SQLiteName is the provider name of the embedded SQLite dialect.
const SQLiteName = "sqlite"

var registerFuncs sync.Once

// registerSQLiteFuncs installs the vector distance and spatial functions
// used by the SQLite dialect. Registration is process wide.
func registerSQLiteFuncs() {
	registerFuncs.Do(func() {
		for name, m := range map[string]distance.Metric{
			"vec_l1":     distance.Manhattan,
			"vec_l2":     distance.Euclidean,
			"vec_cosine": distance.Cosine,
		} {
			sqlite.MustRegisterDeterministicScalarFunction(name, 2, vectorFunc(m))
		}
		sqlite.MustRegisterDeterministicScalarFunction("geo_match", 6, geoMatch)
	})
}

func vectorFunc(m distance.Metric) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if args[0] == nil || args[1] == nil {
			return nil, nil
		}
		a, err := parseVectorText(textArg(args[0]))
		if err != nil {
			return nil, err
		}
		b, err := parseVectorText(textArg(args[1]))
		if err != nil {
			return nil, err
		}
		return distance.Compute(m, a, b)
	}
}

// geoMatch(op, geom, lon, lat, reference, distance) evaluates a spatial
// operator against either a geography text or a coordinate pair.
func geoMatch(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	op, ok := args[0].(int64)
	if !ok {
		return nil, fmt.Errorf("geo_match: operator must be an integer")
	}
	ref, err := types.ParseGeo(textArg(args[4]))
	if err != nil {
		return nil, err
	}
	q := &query.Spatial{Operator: query.SpatialOperator(op), Reference: ref}
	if args[5] != nil {
		d, ok := floatArg(args[5])
		if !ok {
			return nil, fmt.Errorf("geo_match: distance must be numeric")
		}
		q.Distance = &d
	}

	var lon, lat float64
	if args[1] != nil {
		g, err := types.ParseGeo(textArg(args[1]))
		if err != nil {
			return int64(0), nil
		}
		if lon, lat, err = g.Point(); err != nil {
			return int64(0), nil
		}
	} else {
		var okLon, okLat bool
		lon, okLon = floatArg(args[2])
		lat, okLat = floatArg(args[3])
		if !okLon || !okLat {
			return int64(0), nil
		}
	}
	if q.MatchesPoint(lon, lat) {
		return int64(1), nil
	}
	return int64(0), nil
}

func textArg(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func floatArg(v driver.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// sqliteDialect stores every non-numeric value as text. One database file
// holds one schema, so table names are not qualified.
type sqliteDialect struct{}

func (sqliteDialect) name() string                            { return SQLiteName }
func (sqliteDialect) placeholder(int) string                  { return "?" }
func (sqliteDialect) table(_, name string) string             { return quote(name) }
func (sqliteDialect) param(_ types.Type, ph string) string    { return ph }
func (sqliteDialect) column(_ types.Type, col string) string  { return col }
func (sqliteDialect) ordered(_ types.Type, col string) string { return col }

func (sqliteDialect) columnType(t types.Type) string {
	switch {
	case t.Kind == types.KindBoolean, t.Kind.IsNumeric() && t.Kind != types.KindFloat && t.Kind != types.KindDouble:
		return "INTEGER"
	case t.Kind == types.KindFloat, t.Kind == types.KindDouble:
		return "REAL"
	}
	return "TEXT"
}

func (sqliteDialect) encode(v types.Value) (any, error) {
	if !v.IsNull() {
		switch v.Type().Kind {
		case types.KindDatetime:
			t, _ := v.Time()
			return types.FormatDatetime(t), nil
		case types.KindBoolean:
			if b, _ := v.Bool(); b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	}
	if raw, ok := encodeCommon(v); ok {
		return raw, nil
	}
	return nil, fmt.Errorf("cannot store %s: %w", v.Type(), descriptorstore.ErrTypeMismatch)
}

func (sqliteDialect) distance(m distance.Metric, _ types.Type, col, arg string) (string, error) {
	var fn string
	switch m {
	case distance.Manhattan:
		fn = "vec_l1"
	case distance.Euclidean:
		fn = "vec_l2"
	case distance.Cosine:
		fn = "vec_cosine"
	default:
		return "", unsupportedMetric(m)
	}
	return fn + "(" + col + ", " + arg + ")", nil
}

// fullText requires every term to occur in the column, ignoring case.
func (sqliteDialect) fullText(col string, terms []string, arg func(any) string) (string, string) {
	conds := make([]string, len(terms))
	for i, term := range terms {
		conds[i] = "lower(" + col + ") LIKE " + arg("%"+escapeLike(strings.ToLower(term))+"%") + ` ESCAPE '\'`
	}
	return strings.Join(conds, " AND "), "1.0"
}

func (sqliteDialect) spatial(q *query.Spatial, geom, lon, lat string, arg func(any) string) (string, error) {
	if geom == "" {
		geom = "NULL"
	} else {
		lon, lat = "NULL", "NULL"
	}
	var dist any
	if q.Distance != nil {
		dist = *q.Distance
	}
	return "geo_match(" + strconv.Itoa(int(q.Operator)) + ", " + geom + ", " + lon + ", " + lat + ", " +
		arg(q.Reference.String()) + ", " + arg(dist) + ") = 1", nil
}

func (sqliteDialect) tableExists(string) string {
	return "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?"
}

func (sqliteDialect) createSchema(string) []string { return nil }
func (sqliteDialect) extension(types.Type) string  { return "" }

func (sqliteDialect) truncate(tables ...string) []string {
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = "DELETE FROM " + t
	}
	return stmts
}

func (sqliteDialect) dropTable(table string) string {
	return "DROP TABLE IF EXISTS " + table
}

// index creates plain b-tree indexes. Hints naming index types SQLite does
// not have are accepted and ignored.
func (sqliteDialect) index(table, col string, t types.Type, kind string, _ map[string]string) (string, error) {
	switch kind {
	case "btree", "hash", "brin":
		name := quote(strings.Trim(table, `"`) + "_" + strings.Trim(col, `"`) + "_idx")
		return "CREATE INDEX IF NOT EXISTS " + name + " ON " + table + " (" + col + ")", nil
	case "gin", "hnsw", "ivfflat":
		return "", nil
	}
	return "", fmt.Errorf("index %q on %s column: %w", kind, t, descriptorstore.ErrInvalidConfig)
}

// escapeLike escapes the LIKE wildcards of a literal term.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
