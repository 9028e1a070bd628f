// Package pgvector provides a vector driver backed by PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// DefaultTable is used when Config.Namespace is empty.
	DefaultTable = "simstore_documents"

	// insertBatchRows bounds rows per INSERT to stay under the bind
	// parameter limit.
	insertBatchRows = 1000
)

// SQLSTATE codes for objects that already exist.
const (
	duplicateTable  = "42P07"
	duplicateObject = "42710"
)

var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver over a pgvector table.
type Driver struct {
	pool   *pgxpool.Pool
	table  string
	dim    uint32
	metric vector.Metric

	schemaMu    sync.Mutex
	schemaReady bool

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewDriver connects to c.Target, a PostgreSQL connection string. The
// schema is created on first use.
func NewDriver(ctx context.Context, c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Target == "" {
		return nil, vector.NewConfigError("target", "postgres connection string is required")
	}

	table := c.Namespace
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, vector.NewConfigError("namespace", fmt.Sprintf("invalid table name %q", table))
	}

	poolCfg, err := pgxpool.ParseConfig(c.Target)
	if err != nil {
		return nil, vector.InvalidConfigurationError("parsing connection string", err)
	}
	if c.Workers > 0 {
		poolCfg.MaxConns = int32(c.Workers)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, vector.InvalidConfigurationError("creating connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, vector.InvalidConfigurationError("connecting to postgres", err)
	}

	log = logger.OrNop(log)
	log.Info("pgvector vector driver initialized",
		"table", table,
		"dimensions", c.Dim,
		"metric", c.Metric.String(),
	)

	return &Driver{
		pool:   pool,
		table:  table,
		dim:    c.Dim,
		metric: c.Metric,
		logger: log,
	}, nil
}

func (d *Driver) Dim() uint32 {
	return d.dim
}

// ThreadSafe reports true: pgxpool hands each call its own connection.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// ensureSchema creates the table and index once. A failed attempt is
// retried on the next call.
func (d *Driver) ensureSchema(ctx context.Context) error {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()

	if d.schemaReady {
		return nil
	}
	for _, stmt := range schemaStatements(d.table, d.dim, d.metric) {
		if _, err := d.pool.Exec(ctx, stmt); err != nil && !alreadyExists(err) {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	d.schemaReady = true
	d.logger.Debug("pgvector schema ready", "table", d.table)
	return nil
}

// Add inserts docs in one transaction. Any failure rolls back the batch.
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
	if err := d.ensureSchema(ctx); err != nil {
		return vector.InsertionError("preparing table "+d.table, err)
	}

	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for start := 0; start < len(docs); start += insertBatchRows {
			batch := docs[start:min(start+insertBatchRows, len(docs))]
			args, err := insertArgs(batch)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertStatement(d.table, len(batch)), args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return vector.InsertionError("inserting into "+d.table, err)
	}

	d.logger.Debug("added documents to pgvector",
		"table", d.table,
		"count", len(docs),
	)
	return nil
}

// insertArgs flattens docs into insertStatement bind parameters.
func insertArgs(docs []vector.Document) ([]any, error) {
	args := make([]any, 0, 3*len(docs))
	for _, doc := range docs {
		md := doc.Metadata
		if md == nil {
			md = map[string]string{}
		}
		mdJSON, err := json.Marshal(md)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		args = append(args, doc.PageContent, string(mdJSON), formatVector(doc.Embedding))
	}
	return args, nil
}

// Query orders rows by the metric's distance operator.
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
	if err := d.ensureSchema(ctx); err != nil {
		return nil, vector.QueryError("preparing table "+d.table, err)
	}

	stmt, args := queryStatement(d.table, d.metric, filter, k)
	args[0] = formatVector(embedding)

	rows, err := d.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, vector.QueryError("querying "+d.table, err)
	}
	defer rows.Close()

	results := make([]vector.QueryResult, 0, k)
	for rows.Next() {
		var (
			content, mdText, embText string
			distance                 float64
		)
		if err := rows.Scan(&content, &mdText, &embText, &distance); err != nil {
			return nil, vector.QueryError("scanning row", err)
		}

		doc := vector.Document{PageContent: content, Metadata: map[string]string{}}
		if err := json.Unmarshal([]byte(mdText), &doc.Metadata); err != nil {
			return nil, vector.QueryError("decoding metadata", err)
		}
		if doc.Embedding, err = parseVector(embText); err != nil {
			return nil, vector.QueryError("decoding embedding", err)
		}
		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    scoreFromDistance(d.metric, distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, vector.QueryError("iterating rows", err)
	}

	d.logger.Debug("queried pgvector",
		"table", d.table,
		"results", len(results),
	)
	return results, nil
}

// Close closes the pool. Close is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.pool.Close()
	return nil
}

// alreadyExists reports whether err is a duplicate table or object error.
func alreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == duplicateTable || pgErr.Code == duplicateObject
}
