// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// DefaultNamespace prefixes the driver's tables when Config.Namespace
	// is empty.
	DefaultNamespace = "vec"

	// maxKNN is the largest k a vec0 MATCH query accepts. Larger or filtered
	// queries fall back to a full scan with the scalar distance function.
	maxKNN = 4096
)

var namespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	dim    uint32
	metric vector.Metric

	documents  string
	embeddings string

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewDriver opens the database at c.Target (":memory:" for an in-memory
// database) and creates the tables. Only the L2 and cosine metrics are
// supported.
func NewDriver(ctx context.Context, c vector.Config, log *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Target == "" {
		return nil, vector.NewConfigError("target", "database path is required")
	}
	if c.Metric == vector.MetricInnerProduct {
		return nil, vector.NewConfigError("metric", "sqlite-vec supports only l2 and cosine")
	}

	ns := c.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if !namespaceRe.MatchString(ns) {
		return nil, vector.NewConfigError("namespace", fmt.Sprintf("invalid table prefix %q", ns))
	}

	db, err := sql.Open("sqlite3", c.Target)
	if err != nil {
		return nil, vector.InvalidConfigurationError("opening database", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, vector.InvalidConfigurationError("sqlite-vec not available", err)
	}

	d := &Driver{
		db:         db,
		dim:        c.Dim,
		metric:     c.Metric,
		documents:  ns + "_documents",
		embeddings: ns + "_embeddings",
		logger:     logger.OrNop(log),
	}

	if err := d.createTables(ctx); err != nil {
		db.Close()
		return nil, vector.InvalidConfigurationError("creating tables", err)
	}

	d.logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.Target,
		"dimensions", c.Dim,
		"metric", c.Metric.String(),
		"vec_version", vecVersion,
	)

	return d, nil
}

// createTables creates the document table and the vec0 virtual table.
// vec0 tables key rows by integer rowid, which the document table shares.
func (d *Driver) createTables(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			page_content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`, d.documents))
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	column := fmt.Sprintf("embedding float[%d]", d.dim)
	if d.metric == vector.MetricCosine {
		column += " distance_metric=cosine"
	}
	createVec := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(%s)`, d.embeddings, column)
	if _, err := d.db.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}
	return nil
}

func (d *Driver) Dim() uint32 {
	return d.dim
}

// ThreadSafe reports true: database/sql serializes access to the single
// connection.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Add stores documents with their embeddings in one transaction.
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

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.InsertionError("beginning transaction", err)
	}
	defer tx.Rollback()

	insertDoc := fmt.Sprintf(`INSERT INTO %s(page_content, metadata) VALUES (?, ?)`, d.documents)
	insertVec := fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, d.embeddings)

	for i, doc := range docs {
		md := doc.Metadata
		if md == nil {
			md = map[string]string{}
		}
		mdJSON, err := json.Marshal(md)
		if err != nil {
			return vector.InsertionError(fmt.Sprintf("encoding metadata for doc %d", i), err)
		}

		// Insert into the document table first to get the rowid
		result, err := tx.ExecContext(ctx, insertDoc, doc.PageContent, string(mdJSON))
		if err != nil {
			return vector.InsertionError(fmt.Sprintf("inserting doc %d", i), err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return vector.InsertionError(fmt.Sprintf("getting rowid for doc %d", i), err)
		}

		if _, err := tx.ExecContext(ctx, insertVec, rowID, vector.SerializeFloat32(doc.Embedding)); err != nil {
			return vector.InsertionError(fmt.Sprintf("inserting embedding for doc %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return vector.InsertionError("committing transaction", err)
	}

	d.logger.Debug("added documents to sqlite-vec",
		"count", len(docs),
	)

	return nil
}

// Query finds the k nearest documents. Unfiltered queries up to maxKNN use
// the vec0 KNN index; the rest scan every row.
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

	stmt, args := d.queryStatement(vector.SerializeFloat32(embedding), k, filter)
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, vector.QueryError("querying vectors", err)
	}
	defer rows.Close()

	results := make([]vector.QueryResult, 0, min(k, maxKNN))
	for rows.Next() {
		var (
			content, mdJSON string
			embBlob         []byte
			distance        float64
		)
		if err := rows.Scan(&content, &mdJSON, &embBlob, &distance); err != nil {
			return nil, vector.QueryError("scanning query result", err)
		}

		doc := vector.Document{PageContent: content, Metadata: map[string]string{}}
		if err := json.Unmarshal([]byte(mdJSON), &doc.Metadata); err != nil {
			return nil, vector.QueryError("decoding metadata", err)
		}
		if doc.Embedding, err = vector.DeserializeFloat32(embBlob); err != nil {
			return nil, vector.QueryError("decoding embedding", err)
		}

		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    scoreFromDistance(d.metric, distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, vector.QueryError("iterating query results", err)
	}

	d.logger.Debug("queried sqlite-vec",
		"filtered", len(filter) > 0,
		"results", len(results),
	)

	return results, nil
}

// queryStatement builds either a vec0 KNN query or a filtered full scan.
func (d *Driver) queryStatement(blob []byte, k int, filter vector.Filter) (string, []any) {
	if len(filter) == 0 && k <= maxKNN {
		return fmt.Sprintf(`
			SELECT d.page_content, d.metadata, ve.embedding, ve.distance
			FROM %s ve
			INNER JOIN %s d ON d.rowid = ve.rowid
			WHERE ve.embedding MATCH ?
				AND ve.k = ?
			ORDER BY ve.distance, ve.rowid
		`, d.embeddings, d.documents), []any{blob, k}
	}

	fn := "vec_distance_l2"
	if d.metric == vector.MetricCosine {
		fn = "vec_distance_cosine"
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	args := []any{blob}
	var where strings.Builder
	for i, key := range keys {
		if i == 0 {
			where.WriteString("WHERE ")
		} else {
			where.WriteString(" AND ")
		}
		where.WriteString("json_extract(d.metadata, ?) = ?")
		args = append(args, jsonPath(key), filter[key])
	}
	args = append(args, k)

	return fmt.Sprintf(`
		SELECT d.page_content, d.metadata, ve.embedding, %s(ve.embedding, ?) AS distance
		FROM %s ve
		INNER JOIN %s d ON d.rowid = ve.rowid
		%s
		ORDER BY distance, ve.rowid
		LIMIT ?
	`, fn, d.embeddings, d.documents, where.String()), args
}

// jsonPath quotes key as a JSON path member.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `""`) + `"`
}

// scoreFromDistance squares sqlite-vec's Euclidean distance and turns cosine
// distance into similarity.
func scoreFromDistance(m vector.Metric, distance float64) float32 {
	if m == vector.MetricCosine {
		return float32(1 - distance)
	}
	return float32(distance * distance)
}

// Close releases resources held by the driver. Close is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
