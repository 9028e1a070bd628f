// Package simstorecmder builds the simstore root command.
package simstorecmder

import (
	"github.com/spf13/cobra"

	backendscmder "github.com/papercomputeco/simstore/cmd/simstore/backends"
	configcmder "github.com/papercomputeco/simstore/cmd/simstore/config"
	querycmder "github.com/papercomputeco/simstore/cmd/simstore/query"
	retrievecmder "github.com/papercomputeco/simstore/cmd/simstore/retrieve"
	servecmder "github.com/papercomputeco/simstore/cmd/simstore/serve"
	versioncmder "github.com/papercomputeco/simstore/cmd/version"
)

const simstoreLongDesc string = `Simstore stores embedded documents and answers similarity queries.

Backends are selected with vector_store.provider or --provider:
  flat         In-process exhaustive scan
  redisearch   Redis with the RediSearch module
  pgvector     PostgreSQL with the pgvector extension
  sqlitevec    SQLite with the sqlite-vec extension
  qdrant       Qdrant over gRPC
  chroma       Chroma over its REST API

Commands:
  simstore query      Run a top-k query over a corpus
  simstore retrieve   Threshold retrieval with a rendered digest
  simstore serve      Run the HTTP API`

const simstoreShortDesc string = "Simstore - vector similarity storage"

func NewSimstoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simstore",
		Short:         simstoreShortDesc,
		Long:          simstoreLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.simstore or ~/.simstore)")

	cmd.AddCommand(backendscmder.NewBackendsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(retrievecmder.NewRetrieveCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
