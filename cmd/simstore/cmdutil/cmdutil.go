// Package cmdutil holds helpers shared by simstore subcommands.
package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/pkg/config"
	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

// VectorStoreKeys are the flag registry keys every backend-building command
// registers.
var VectorStoreKeys = []string{
	config.FlagProvider,
	config.FlagDim,
	config.FlagMetric,
	config.FlagTarget,
	config.FlagNamespace,
	config.FlagWorkers,
}

// VectorStoreFlags holds the values of the shared backend flags.
type VectorStoreFlags struct {
	Provider  string
	Dim       uint
	Metric    string
	Target    string
	Namespace string
	Workers   int
}

// AddVectorStoreFlags registers the shared backend flags on cmd.
func AddVectorStoreFlags(cmd *cobra.Command, f *VectorStoreFlags) {
	fs := config.VectorStoreFlags
	config.AddStringFlag(cmd, fs, config.FlagProvider, &f.Provider)
	config.AddUintFlag(cmd, fs, config.FlagDim, &f.Dim)
	config.AddStringFlag(cmd, fs, config.FlagMetric, &f.Metric)
	config.AddStringFlag(cmd, fs, config.FlagTarget, &f.Target)
	config.AddStringFlag(cmd, fs, config.FlagNamespace, &f.Namespace)
	config.AddIntFlag(cmd, fs, config.FlagWorkers, &f.Workers)
}

// ResolveConfig layers the flags named by keys over env, config file and
// defaults.
func ResolveConfig(cmd *cobra.Command, keys []string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.VectorStoreFlags, keys)

	return config.FromViper(v), nil
}

// NewLogger builds the command logger on stderr, honoring --debug.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// NewServeLogger builds the serve logger: pretty records on stderr at the
// named level, raised to debug by --debug, plus JSON records with source
// locations appended to every log file. The returned func closes the files.
func NewServeLogger(cmd *cobra.Command, level string, logFiles []string) (*slog.Logger, func() error, error) {
	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		opts = append(opts, logger.WithDebug(true))
	}
	console := logger.New(opts...)
	if len(logFiles) == 0 {
		return console, func() error { return nil }, nil
	}

	files := make([]*os.File, 0, len(logFiles))
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	writers := make([]io.Writer, 0, len(logFiles))
	for _, path := range logFiles {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		files = append(files, f)
		writers = append(writers, f)
	}

	structured := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(true),
		logger.WithSource(true),
		logger.WithWriters(writers...),
	)
	return logger.Multi(console, structured), closeAll, nil
}

// LoadCorpus reads a JSON Lines document file.
func LoadCorpus(path string) ([]vector.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	docs, err := vector.DecodeDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return docs, nil
}

// ParseEmbedding parses a comma-separated list of floats.
func ParseEmbedding(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding component %d %q: %w", i, p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// InferDim sets cfg's dimension from the first available embedding when it
// is unset.
func InferDim(cfg *config.Config, embedding []float32, docs []vector.Document) {
	if cfg.VectorStore.Dim != 0 {
		return
	}
	if len(embedding) > 0 {
		cfg.VectorStore.Dim = uint32(len(embedding))
		return
	}
	for _, d := range docs {
		if len(d.Embedding) > 0 {
			cfg.VectorStore.Dim = uint32(len(d.Embedding))
			return
		}
	}
}
