// Package servecmder provides the simstore serve command.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/api"
	"github.com/papercomputeco/simstore/cmd/simstore/cmdutil"
	"github.com/papercomputeco/simstore/pkg/config"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/stack"
)

type serveCommander struct {
	store  cmdutil.VectorStoreFlags
	listen string
	corpus string

	logLevel string
	logFiles []string
}

const serveLongDesc string = `Run the simstore HTTP API over the configured backend.

Routes:
  GET  /ping             Health check
  POST /v1/documents     Insert a JSON array of documents
  POST /v1/query         Top-k query
  POST /v1/query/batch   Top-k queries fanned out over the worker pool
  POST /v1/retrieve      Threshold retrieval session over a request corpus
  GET  /v1/stats         Per-method call statistics
  GET  /metrics          Prometheus metrics`

const serveShortDesc string = "Run the simstore API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE:  cmder.run,
	}

	cmdutil.AddVectorStoreFlags(cmd, &cmder.store)
	config.AddStringFlag(cmd, config.VectorStoreFlags, config.FlagListen, &cmder.listen)
	cmd.Flags().StringVarP(&cmder.corpus, "corpus", "c", "", "Optional JSON Lines corpus to preload")
	cmd.Flags().StringVar(&cmder.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringSliceVar(&cmder.logFiles, "log-file", nil, "Also append JSON logs to this file (repeatable)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command, _ []string) error {
	cfg, err := cmdutil.ResolveConfig(cmd, append(cmdutil.VectorStoreKeys, config.FlagListen))
	if err != nil {
		return err
	}
	log, closeLogs, err := cmdutil.NewServeLogger(cmd, c.logLevel, c.logFiles)
	if err != nil {
		return err
	}
	defer closeLogs()

	var docs []vector.Document
	if c.corpus != "" {
		docs, err = cmdutil.LoadCorpus(c.corpus)
		if err != nil {
			return err
		}
		cmdutil.InferDim(cfg, nil, docs)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := stack.Build(ctx, cfg, stack.WithLogger(log))
	if err != nil {
		return err
	}
	defer s.Driver.Close()

	if len(docs) > 0 {
		if err := s.Driver.Add(ctx, docs); err != nil {
			return fmt.Errorf("preloading corpus: %w", err)
		}
		log.Info("preloaded corpus", "documents", len(docs))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if s.Instrumented != nil {
		reg.MustRegister(s.Instrumented)
	}

	server := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Backend:    cfg.VectorStore.Provider,
		Metric:     s.Metric,
		Gatherer:   reg,
	}, s.Driver, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down API server")
		if err := server.Shutdown(); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
