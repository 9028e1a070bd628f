// Package redisearch provides a vector driver backed by a Redis Stack index.
// Documents are stored as hashes and searched with FT.SEARCH KNN queries over
// a FLAT vector field. The client speaks RESP2 and replies are parsed by
// position.
package redisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// DefaultIndex is the index name used when Config.Namespace is empty.
	DefaultIndex = "simstore"

	// DefaultOversample multiplies k when a filter must be applied after the
	// KNN search.
	DefaultOversample = 4

	fieldContent   = "page_content"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"
	fieldScore     = "__score"
	tagPrefix      = "meta_"
)

// Client is the subset of the go-redis client the driver needs.
type Client interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver over RediSearch.
type Driver struct {
	client Client

	dim        uint32
	metric     vector.Metric
	index      string
	prefix     string
	tagFields  []string
	oversample int

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewDriver connects to c.Target, a redis:// URL, and makes sure the index
// exists. Connection and index problems are reported as
// vector.ErrInvalidConfiguration.
func NewDriver(ctx context.Context, c vector.Config, log *slog.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, vector.NewConfigError("target", "redis URL is required")
	}
	opts, err := redis.ParseURL(c.Target)
	if err != nil {
		return nil, vector.InvalidConfigurationError("parsing redis URL", err)
	}
	opts.Protocol = 2

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, vector.InvalidConfigurationError("connecting to redis", err)
	}

	d, err := NewDriverWithClient(ctx, client, c, log)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return d, nil
}

// NewDriverWithClient builds a driver over an existing client. The client
// must use RESP2.
func NewDriverWithClient(ctx context.Context, client Client, c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	oversample, err := c.IntOption("oversample", DefaultOversample)
	if err != nil {
		return nil, err
	}
	if oversample < 1 {
		return nil, vector.NewConfigError("options.oversample", "must be at least 1")
	}

	index := c.Namespace
	if index == "" {
		index = DefaultIndex
	}

	d := &Driver{
		client:     client,
		dim:        c.Dim,
		metric:     c.Metric,
		index:      index,
		prefix:     c.Option("prefix", index+":"),
		tagFields:  splitFields(c.Option("tag_fields", "")),
		oversample: oversample,
		logger:     logger.OrNop(log),
	}

	created, err := d.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}

	d.logger.Info("redisearch vector driver initialized",
		"index", d.index,
		"prefix", d.prefix,
		"dimensions", d.dim,
		"metric", d.metric.String(),
		"created", created,
	)

	return d, nil
}

// ensureIndex creates the index unless FT.INFO finds it.
func (d *Driver) ensureIndex(ctx context.Context) (bool, error) {
	err := d.client.Do(ctx, "FT.INFO", d.index).Err()
	if err == nil {
		return false, nil
	}
	if !isServerError(err) {
		return false, vector.InvalidConfigurationError("inspecting index "+d.index, err)
	}

	err = d.client.Do(ctx, createIndexArgs(d.index, d.prefix, d.dim, d.metric, d.tagFields)...).Err()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return false, vector.InvalidConfigurationError("creating index "+d.index, err)
	}
	return true, nil
}

func (d *Driver) Dim() uint32 {
	return d.dim
}

// ThreadSafe reports true: the go-redis client is safe for concurrent use.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Add writes one hash per document inside a single MULTI/EXEC block.
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

	hashes := make([][]any, len(docs))
	for i, doc := range docs {
		values, err := d.hashValues(doc)
		if err != nil {
			return vector.InsertionError("encoding metadata", err)
		}
		hashes[i] = values
	}

	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, values := range hashes {
			pipe.HSet(ctx, d.prefix+uuid.NewString(), values...)
		}
		return nil
	})
	if err != nil {
		return vector.InsertionError("writing documents", err)
	}

	d.logger.Debug("added documents to redisearch",
		"index", d.index,
		"count", len(docs),
	)
	return nil
}

// hashValues flattens doc into HSET field/value pairs.
func (d *Driver) hashValues(doc vector.Document) ([]any, error) {
	md := doc.Metadata
	if md == nil {
		md = map[string]string{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}

	values := []any{
		fieldContent, doc.PageContent,
		fieldMetadata, string(mdJSON),
		fieldEmbedding, vector.SerializeFloat32(doc.Embedding),
	}
	for _, tag := range d.tagFields {
		if v, ok := md[tag]; ok {
			values = append(values, tagPrefix+tag, v)
		}
	}
	return values, nil
}

// Query runs a KNN search. Filter keys declared as tag fields are pushed
// into the search; every hit is then checked against the whole filter. When
// the checks drop hits, the search is repeated with a doubled KNN window
// until k matches are found or the index is exhausted.
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

	native, post := d.splitFilter(filter)
	knn := k
	if len(post) > 0 {
		knn = k * d.oversample
	}
	blob := vector.SerializeFloat32(embedding)

	var (
		results []vector.QueryResult
		hits    []hit
		rounds  int
	)
	for {
		rounds++
		reply, err := d.client.Do(ctx, searchArgs(d.index, native, knn, blob)...).Result()
		if err != nil {
			return nil, vector.QueryError("searching index "+d.index, err)
		}
		hits, err = parseSearchReply(reply)
		if err != nil {
			return nil, vector.QueryError("parsing search reply", err)
		}

		results = make([]vector.QueryResult, 0, min(k, len(hits)))
		for _, h := range hits {
			r, err := d.result(h)
			if err != nil {
				return nil, vector.QueryError("decoding document "+h.key, err)
			}
			if !filter.Matches(r.Document.Metadata) {
				continue
			}
			results = append(results, r)
			if len(results) == k {
				break
			}
		}

		if len(results) == k || len(hits) < knn {
			break
		}
		knn *= 2
	}

	d.logger.Debug("queried redisearch",
		"index", d.index,
		"knn", knn,
		"rounds", rounds,
		"hits", len(hits),
		"results", len(results),
	)
	return results, nil
}

// splitFilter separates constraints RediSearch can evaluate from the rest.
// Empty or space-padded values and values holding the tag separator cannot
// be expressed as tag predicates.
func (d *Driver) splitFilter(filter vector.Filter) (native, post vector.Filter) {
	for key, value := range filter {
		if d.isTagField(key) && taggable(value) {
			if native == nil {
				native = vector.Filter{}
			}
			native[key] = value
			continue
		}
		if post == nil {
			post = vector.Filter{}
		}
		post[key] = value
	}
	return native, post
}

func taggable(value string) bool {
	return value != "" &&
		strings.TrimSpace(value) == value &&
		!strings.Contains(value, tagSeparator)
}

func (d *Driver) isTagField(key string) bool {
	for _, tag := range d.tagFields {
		if tag == key {
			return true
		}
	}
	return false
}

// result converts a search hit, mapping the engine's distance back to the
// metric's score.
func (d *Driver) result(h hit) (vector.QueryResult, error) {
	doc := vector.Document{
		PageContent: h.fields[fieldContent],
		Metadata:    map[string]string{},
	}
	if raw := h.fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return vector.QueryResult{}, fmt.Errorf("metadata: %w", err)
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]string{}
		}
	}
	if raw, ok := h.fields[fieldEmbedding]; ok {
		emb, err := vector.DeserializeFloat32([]byte(raw))
		if err != nil {
			return vector.QueryResult{}, err
		}
		doc.Embedding = emb
	}

	distance, err := parseScore(h.fields[fieldScore])
	if err != nil {
		return vector.QueryResult{}, err
	}
	return vector.QueryResult{Document: doc, Score: scoreFromDistance(d.metric, distance)}, nil
}

// scoreFromDistance inverts RediSearch's distance conventions: L2 is already
// squared, IP is 1-dot and COSINE is 1-cos.
func scoreFromDistance(m vector.Metric, distance float32) float32 {
	switch m {
	case vector.MetricInnerProduct, vector.MetricCosine:
		return 1 - distance
	default:
		return distance
	}
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
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}

// isServerError reports whether err is an error reply from the server rather
// than a transport failure.
func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && !errors.Is(err, redis.Nil)
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
