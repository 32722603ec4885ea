// Package qdrant stores every entity of a schema in its own Qdrant
// collection. Descriptor vectors are kept as named vectors, one per
// configured distance, and all other attributes travel in the payload.
package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/cache"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/logging"
	"github.com/qdrant/go-client/qdrant"
)

// ProviderName is the name under which the provider is registered.
const ProviderName = "qdrant"

// Connection parameters.
const (
	ParamURL    = "url"
	ParamAPIKey = "apikey"
	DefaultURL  = "http://127.0.0.1:6334"
)

// ParamDistances is the field parameter listing the distances a vector
// field can be searched with.
const ParamDistances = "distances"

// DefaultDistances are the named vectors created when a field configures none.
var DefaultDistances = []distance.Metric{distance.Euclidean, distance.Manhattan, distance.Cosine, distance.InnerProduct}

const defaultPort = 6334

// Provider opens Qdrant connections.
type Provider struct {
	Logger *logging.Logger
}

// NewProvider creates a provider that logs to logger.
func NewProvider(logger *logging.Logger) *Provider {
	return &Provider{Logger: logger}
}

func (p *Provider) Name() string { return ProviderName }

// Open implements database.ConnectionProvider. The gRPC channel connects
// lazily on the first request.
func (p *Provider) Open(schemaName string, params map[string]string) (database.Connection, error) {
	host, port, useTLS, err := parseURL(database.Param(params, ParamURL, DefaultURL))
	if err != nil {
		return nil, err
	}

	store, err := cache.FromParameters(schemaName, params)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 params[ParamAPIKey],
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Connection{
		schema: schemaName,
		client: client,
		cache:  store,
		log:    logging.OrNop(p.Logger).ForBackend(ProviderName, schemaName),
		desc:   fmt.Sprintf("qdrant:%s:%d", host, port),
	}, nil
}

// parseURL extracts host, port and scheme. A URL without scheme is
// treated as https.
func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w: %w", descriptorstore.ErrInvalidConfig, err)
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("qdrant url %q has no host: %w", raw, descriptorstore.ErrInvalidConfig)
	}

	port = defaultPort
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w: %w", descriptorstore.ErrInvalidConfig, err)
		}
	}
	return host, port, u.Scheme == "https", nil
}

// Connection is a Qdrant client bound to one schema.
type Connection struct {
	schema string
	client *qdrant.Client
	cache  cache.Store
	log    *logging.Logger
	desc   string

	closeOnce sync.Once
	closeErr  error
}

func (c *Connection) SchemaName() string  { return c.schema }
func (c *Connection) Provider() string    { return ProviderName }
func (c *Connection) Description() string { return c.desc }

// collection returns the name of the collection holding entity.
func (c *Connection) collection(entity string) string {
	return c.schema + "_" + entity
}

func (c *Connection) DescriptorInitializer(f database.Field) database.DescriptorInitializer {
	return &descriptorInitializer{conn: c, field: f}
}

func (c *Connection) DescriptorReader(f database.Field) database.DescriptorReader {
	return &descriptorReader{conn: c, field: f}
}

func (c *Connection) DescriptorWriter(f database.Field) database.DescriptorWriter {
	return &descriptorWriter{conn: c, field: f}
}

func (c *Connection) RetrievableInitializer() database.RetrievableInitializer {
	return &retrievableInitializer{conn: c}
}

func (c *Connection) RetrievableReader() database.RetrievableReader {
	return &retrievableReader{conn: c}
}

func (c *Connection) RetrievableWriter() database.RetrievableWriter {
	return &retrievableWriter{conn: c}
}

// Close releases the client and the cache. Later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.cache != nil {
			c.cache.Close()
		}
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

// distances returns the metrics a field's vectors are indexed for.
func distances(f database.Field) ([]distance.Metric, error) {
	raw := strings.TrimSpace(f.Parameters()[ParamDistances])
	if raw == "" {
		return DefaultDistances, nil
	}
	var out []distance.Metric
	for _, name := range strings.Split(raw, ",") {
		m, err := distance.ParseMetric(name)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w: %w", f.Name(), descriptorstore.ErrInvalidConfig, err)
		}
		if _, err := qdrantDistance(m); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name(), err)
		}
		out = append(out, m)
	}
	return out, nil
}

// qdrantDistance maps a metric onto a native distance.
func qdrantDistance(m distance.Metric) (qdrant.Distance, error) {
	switch m {
	case distance.Euclidean:
		return qdrant.Distance_Euclid, nil
	case distance.Manhattan:
		return qdrant.Distance_Manhattan, nil
	case distance.Cosine:
		return qdrant.Distance_Cosine, nil
	case distance.InnerProduct:
		return qdrant.Distance_Dot, nil
	}
	return qdrant.Distance_UnknownDistance, fmt.Errorf("distance %s: %w", m, descriptorstore.ErrUnsupported)
}

// toDistance converts a native score into the distance of metric m.
func toDistance(m distance.Metric, score float32) float64 {
	s := float64(score)
	switch m {
	case distance.Cosine:
		return 1 - s
	case distance.InnerProduct:
		return -s
	}
	return s
}

// vectorName is the name of the named vector holding attribute attr for metric m.
func vectorName(attr string, m distance.Metric) string {
	return attr + "_" + m.String()
}

var (
	_ database.ConnectionProvider = (*Provider)(nil)
	_ database.Connection         = (*Connection)(nil)
)
