package registry

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/chroma"
	"github.com/papercomputeco/simstore/pkg/vector/flat"
	"github.com/papercomputeco/simstore/pkg/vector/pgvector"
	"github.com/papercomputeco/simstore/pkg/vector/qdrant"
	"github.com/papercomputeco/simstore/pkg/vector/redisearch"
	"github.com/papercomputeco/simstore/pkg/vector/sqlitevec"
)

// Built-in backend names.
const (
	Flat       = "flat"
	RediSearch = "redisearch"
	PGVector   = "pgvector"
	SQLiteVec  = "sqlitevec"
	Qdrant     = "qdrant"
	Chroma     = "chroma"
)

// RegisterBuiltins installs the built-in backends into r. Drivers built
// through r log to log.
func RegisterBuiltins(r *Registry, log *slog.Logger) error {
	log = logger.OrNop(log)

	builtins := map[string]Factory{
		Flat: func(_ context.Context, c vector.Config) (vector.Driver, error) {
			return driver(flat.NewDriver(c, log))
		},
		RediSearch: func(ctx context.Context, c vector.Config) (vector.Driver, error) {
			return driver(redisearch.NewDriver(ctx, c, log))
		},
		PGVector: func(ctx context.Context, c vector.Config) (vector.Driver, error) {
			return driver(pgvector.NewDriver(ctx, c, log))
		},
		SQLiteVec: func(ctx context.Context, c vector.Config) (vector.Driver, error) {
			return driver(sqlitevec.NewDriver(ctx, c, log))
		},
		Qdrant: func(ctx context.Context, c vector.Config) (vector.Driver, error) {
			return driver(qdrant.NewDriver(ctx, c, log))
		},
		Chroma: func(ctx context.Context, c vector.Config) (vector.Driver, error) {
			return driver(chroma.NewDriver(ctx, c, log))
		},
	}

	for name, factory := range builtins {
		if err := r.Register(name, factory, false); err != nil {
			return err
		}
	}
	return nil
}

// driver converts a concrete constructor result, keeping a failed build a
// nil interface.
func driver[D vector.Driver](d D, err error) (vector.Driver, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}
