// Package qdrant provides a vector driver backed by a Qdrant collection over
// gRPC. Stored points carry the page content and metadata as payload;
// embeddings are not returned by queries.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// DefaultCollection is used when Config.Namespace is empty.
	DefaultCollection = "simstore"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadContent  = "page_content"
	payloadMetadata = "metadata"
)

// Client is the subset of the Qdrant client the driver needs.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver over a Qdrant collection.
type Driver struct {
	client     Client
	collection string
	dim        uint32
	metric     vector.Metric

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewDriver dials c.Target ("host" or "host:port") and makes sure the
// collection exists. Options "api_key" and "tls" configure the connection.
func NewDriver(ctx context.Context, c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Target == "" {
		return nil, vector.NewConfigError("target", "qdrant address is required")
	}
	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}
	useTLS, err := c.BoolOption("tls", false)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.Option("api_key", ""),
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, vector.InvalidConfigurationError("creating qdrant client", err)
	}

	d, err := NewDriverWithClient(ctx, client, c, log)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return d, nil
}

// NewDriverWithClient builds a driver over an existing client.
func NewDriverWithClient(ctx context.Context, client Client, c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	collection := c.Namespace
	if collection == "" {
		collection = DefaultCollection
	}

	d := &Driver{
		client:     client,
		collection: collection,
		dim:        c.Dim,
		metric:     c.Metric,
		logger:     logger.OrNop(log),
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, vector.InvalidConfigurationError("checking collection "+collection, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dim),
				Distance: distance(c.Metric),
			}),
		})
		if err != nil {
			return nil, vector.InvalidConfigurationError("creating collection "+collection, err)
		}
	}

	d.logger.Info("qdrant vector driver initialized",
		"collection", collection,
		"dimensions", c.Dim,
		"metric", c.Metric.String(),
		"created", !exists,
	)

	return d, nil
}

func (d *Driver) Dim() uint32 {
	return d.dim
}

// ThreadSafe reports true: the gRPC client is safe for concurrent use.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Add upserts one point per document and waits for the write to apply.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return vector.ErrBackendClosed
	}
	if err := vector.CheckAdd(d.dim, docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = point(uuid.NewString(), doc)
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return vector.InsertionError("upserting into "+d.collection, err)
	}

	d.logger.Debug("added documents to qdrant",
		"collection", d.collection,
		"count", len(docs),
	)
	return nil
}

// Query runs a nearest-neighbour query with metadata matched server-side.
func (d *Driver) Query(ctx context.Context, embedding []float32, k int, filter vector.Filter) ([]vector.QueryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, vector.ErrBackendClosed
	}
	if err := vector.CheckQuery(d.dim, embedding); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []vector.QueryResult{}, nil
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         matchFilter(filter),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vector.QueryError("querying "+d.collection, err)
	}

	results := make([]vector.QueryResult, len(points))
	for i, p := range points {
		results[i] = result(d.metric, p)
	}

	d.logger.Debug("queried qdrant",
		"collection", d.collection,
		"results", len(results),
	)
	return results, nil
}

// Close closes the client. Close is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.client.Close(); err != nil {
		return fmt.Errorf("closing qdrant client: %w", err)
	}
	return nil
}

// distance maps a metric to the collection distance.
func distance(m vector.Metric) qdrant.Distance {
	switch m {
	case vector.MetricInnerProduct:
		return qdrant.Distance_Dot
	case vector.MetricCosine:
		return qdrant.Distance_Cosine
	default:
		return qdrant.Distance_Euclid
	}
}

// point converts doc into a point with id.
func point(id string, doc vector.Document) *qdrant.PointStruct {
	md := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		md[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(doc.Embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadContent:  doc.PageContent,
			payloadMetadata: md,
		}),
	}
}

// matchFilter turns filter into keyword match conditions on the metadata
// payload, or nil when empty.
func matchFilter(filter vector.Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	must := make([]*qdrant.Condition, len(keys))
	for i, k := range keys {
		must[i] = qdrant.NewMatch(payloadMetadata+"."+k, filter[k])
	}
	return &qdrant.Filter{Must: must}
}

// result converts a scored point. Euclid scores are distances and are
// squared to match the other backends.
func result(m vector.Metric, p *qdrant.ScoredPoint) vector.QueryResult {
	doc := vector.Document{Metadata: map[string]string{}}
	payload := p.GetPayload()
	doc.PageContent = payload[payloadContent].GetStringValue()
	for k, v := range payload[payloadMetadata].GetStructValue().GetFields() {
		doc.Metadata[k] = v.GetStringValue()
	}

	score := p.GetScore()
	if m == vector.MetricL2 {
		score *= score
	}
	return vector.QueryResult{Document: doc, Score: score}
}

// splitTarget parses "host" or "host:port".
func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port given.
		return target, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, vector.NewConfigError("target", fmt.Sprintf("invalid port in %q", target))
	}
	return host, port, nil
}
