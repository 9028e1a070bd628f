// Package chroma provides a vector driver backed by a Chroma collection over
// its v2 REST API. Page content is stored as the Chroma document and metadata
// as Chroma metadata.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// DefaultCollection is used when Config.Namespace is empty.
	DefaultCollection = "simstore"

	// DefaultTenant and DefaultDatabase address the collection.
	DefaultTenant   = "default_tenant"
	DefaultDatabase = "default_database"

	// DefaultConnectRetries is how often collection setup is attempted
	// while the server is still starting.
	DefaultConnectRetries = 5

	// DefaultRetryInterval is the pause between setup attempts.
	DefaultRetryInterval = time.Second

	spaceKey = "hnsw:space"
)

// errSpaceMismatch is not retried.
var errSpaceMismatch = errors.New("collection distance space mismatch")

var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver over a Chroma collection.
type Driver struct {
	baseURL      string
	collection   string
	collectionID string
	dim          uint32
	metric       vector.Metric
	httpClient   *http.Client

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewDriver gets or creates the collection at c.Target, a Chroma base URL.
// Options: "tenant", "database", "timeout", "connect_retries" and
// "retry_interval".
func NewDriver(ctx context.Context, c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Target == "" {
		return nil, vector.NewConfigError("target", "chroma URL is required")
	}
	timeout, err := c.DurationOption("timeout", 60*time.Second)
	if err != nil {
		return nil, err
	}
	retries, err := c.IntOption("connect_retries", DefaultConnectRetries)
	if err != nil {
		return nil, err
	}
	if retries < 1 {
		return nil, vector.NewConfigError("options.connect_retries", "must be positive")
	}
	interval, err := c.DurationOption("retry_interval", DefaultRetryInterval)
	if err != nil {
		return nil, err
	}

	collection := c.Namespace
	if collection == "" {
		collection = DefaultCollection
	}

	d := &Driver{
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s",
			strings.TrimRight(c.Target, "/"),
			c.Option("tenant", DefaultTenant),
			c.Option("database", DefaultDatabase),
		),
		collection: collection,
		dim:        c.Dim,
		metric:     c.Metric,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.OrNop(log),
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		d.collectionID, lastErr = d.getOrCreateCollection(ctx)
		if lastErr == nil || errors.Is(lastErr, errSpaceMismatch) {
			break
		}
		d.logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"error", lastErr,
		)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, vector.InvalidConfigurationError("connecting to chroma", ctx.Err())
		case <-time.After(interval):
		}
	}
	if lastErr != nil {
		return nil, vector.InvalidConfigurationError("getting or creating collection "+collection, lastErr)
	}

	d.logger.Info("chroma vector driver initialized",
		"url", c.Target,
		"collection", collection,
		"collection_id", d.collectionID,
		"dimensions", c.Dim,
		"metric", c.Metric.String(),
	)

	return d, nil
}

func (d *Driver) Dim() uint32 {
	return d.dim
}

// ThreadSafe reports true: http.Client is safe for concurrent use.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// getOrCreateCollection returns the collection id, creating the collection
// with the driver's distance space when missing. An existing collection with
// a different space is rejected.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var existing collectionResponse
	status, err := d.do(ctx, http.MethodGet, "/collections/"+d.collection, nil, &existing)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK {
		if got, ok := existing.Metadata[spaceKey].(string); ok && got != space(d.metric) {
			return "", fmt.Errorf("%w: %s uses %q, want %q", errSpaceMismatch, d.collection, got, space(d.metric))
		}
		return existing.ID, nil
	}

	var created collectionResponse
	req := createCollectionRequest{
		Name:        d.collection,
		Metadata:    map[string]any{spaceKey: space(d.metric)},
		GetOrCreate: true,
	}
	status, err = d.do(ctx, http.MethodPost, "/collections", req, &created)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("creating collection: status %d", status)
	}
	return created.ID, nil
}

// Add stores documents under fresh UUIDs.
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

	req := addRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Documents:  make([]string, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = uuid.NewString()
		req.Embeddings[i] = doc.Embedding
		req.Documents[i] = doc.PageContent
		req.Metadatas[i] = metadata(doc.Metadata)
	}

	status, err := d.do(ctx, http.MethodPost, "/collections/"+d.collectionID+"/add", req, nil)
	if err == nil && status != http.StatusOK && status != http.StatusCreated {
		err = fmt.Errorf("status %d", status)
	}
	if err != nil {
		return vector.InsertionError("adding to "+d.collection, err)
	}

	d.logger.Debug("added documents to chroma",
		"collection", d.collection,
		"count", len(docs),
	)
	return nil
}

// Query runs a nearest-neighbour query with the filter applied server-side
// as a where clause.
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

	req := queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Where:           where(filter),
		Include:         []string{"documents", "metadatas", "distances", "embeddings"},
	}
	var resp queryResponse
	status, err := d.do(ctx, http.MethodPost, "/collections/"+d.collectionID+"/query", req, &resp)
	if err == nil && status != http.StatusOK {
		err = fmt.Errorf("status %d", status)
	}
	if err != nil {
		return nil, vector.QueryError("querying "+d.collection, err)
	}

	results := resp.results(d.metric)

	d.logger.Debug("queried chroma",
		"collection", d.collection,
		"results", len(results),
	)
	return results, nil
}

// Close marks the driver closed. Close is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.httpClient.CloseIdleConnections()
	return nil
}

// do sends body as JSON to path and decodes a 2xx response into out. Non-2xx
// statuses other than 404 are errors carrying the response body.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// space_ maps a metric to the collection distance space.
func space(m vector.Metric) string {
	switch m {
	case vector.MetricInnerProduct:
		return "ip"
	case vector.MetricCosine:
		return "cosine"
	default:
		return "l2"
	}
}

// metadata converts string metadata to the Chroma value map, or nil when
// empty since Chroma rejects empty metadata objects.
func metadata(md map[string]string) map[string]any {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// where renders filter as a Chroma where clause, or nil when empty.
func where(filter vector.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	if len(keys) == 1 {
		return map[string]any{keys[0]: map[string]any{"$eq": filter[keys[0]]}}
	}
	clauses := make([]map[string]any, len(keys))
	for i, k := range keys {
		clauses[i] = map[string]any{k: map[string]any{"$eq": filter[k]}}
	}
	return map[string]any{"$and": clauses}
}

// score converts a Chroma distance to the metric's score. Chroma's l2 is
// already squared; ip and cosine distances are one minus the similarity.
func score(m vector.Metric, distance float32) float32 {
	if m == vector.MetricL2 {
		return distance
	}
	return 1 - distance
}
