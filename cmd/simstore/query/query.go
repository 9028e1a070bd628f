// Package querycmder provides the simstore query command.
package querycmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/cmd/simstore/cmdutil"
	"github.com/papercomputeco/simstore/pkg/cliui"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/stack"
)

type queryCommander struct {
	store     cmdutil.VectorStoreFlags
	corpus    string
	embedding string
	k         int
	filter    map[string]string
	json      bool
}

const queryLongDesc string = `Load a JSON Lines corpus into the configured backend and run one top-k query.

Each corpus line is a document:
  {"page_content": "...", "embedding": [0.1, 0.2], "metadata": {"lang": "en"}}

Examples:
  simstore query --corpus docs.jsonl --embedding 0.1,0.2 --k 5
  simstore query --corpus docs.jsonl --embedding 0.1,0.2 --filter lang=en --json`

const queryShortDesc string = "Run a top-k query over a corpus"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.NoArgs,
		RunE:  cmder.run,
	}

	cmdutil.AddVectorStoreFlags(cmd, &cmder.store)
	cmd.Flags().StringVarP(&cmder.corpus, "corpus", "c", "", "Path to a JSON Lines corpus")
	cmd.Flags().StringVarP(&cmder.embedding, "embedding", "e", "", "Comma-separated query embedding")
	cmd.Flags().IntVar(&cmder.k, "k", 5, "Number of results to return")
	cmd.Flags().StringToStringVar(&cmder.filter, "filter", nil, "Exact metadata match, key=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print results as JSON")
	_ = cmd.MarkFlagRequired("corpus")
	_ = cmd.MarkFlagRequired("embedding")

	return cmd
}

func (c *queryCommander) run(cmd *cobra.Command, _ []string) error {
	embedding, err := cmdutil.ParseEmbedding(c.embedding)
	if err != nil {
		return err
	}
	if len(embedding) == 0 {
		return errors.New("query embedding is empty")
	}

	cfg, err := cmdutil.ResolveConfig(cmd, cmdutil.VectorStoreKeys)
	if err != nil {
		return err
	}
	log := cmdutil.NewLogger(cmd)
	status := cmd.ErrOrStderr()

	var docs []vector.Document
	err = cliui.Step(status, "Loading corpus", func() error {
		docs, err = cmdutil.LoadCorpus(c.corpus)
		return err
	})
	if err != nil {
		return err
	}
	cmdutil.InferDim(cfg, embedding, docs)

	ctx := cmd.Context()
	s, err := stack.Build(ctx, cfg, stack.WithLogger(log))
	if err != nil {
		return err
	}
	defer s.Driver.Close()

	err = cliui.Step(status, fmt.Sprintf("Indexing %d documents into %s", len(docs), cfg.VectorStore.Provider), func() error {
		return s.Driver.Add(ctx, docs)
	})
	if err != nil {
		return err
	}

	results, err := s.Driver.Query(ctx, embedding, c.k, vector.Filter(c.filter))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.json {
		return WriteJSON(out, results)
	}
	WriteTable(out, s.Metric, results)
	return nil
}

// jsonResult is one line of --json output.
type jsonResult struct {
	Rank     int             `json:"rank"`
	Score    float32         `json:"score"`
	Document vector.Document `json:"document"`
}

// WriteJSON prints results as an indented JSON array, best first.
func WriteJSON(w io.Writer, results []vector.QueryResult) error {
	rows := make([]jsonResult, len(results))
	for i, r := range results {
		rows[i] = jsonResult{Rank: i + 1, Score: r.Score, Document: r.Document}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteTable prints one styled line per result, best first.
func WriteTable(w io.Writer, metric vector.Metric, results []vector.QueryResult) {
	order := "lower is better"
	if metric.HigherIsBetter() {
		order = "higher is better"
	}
	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render(fmt.Sprintf("%d results", len(results))),
		cliui.DimStyle.Render(fmt.Sprintf("(%s, %s)", metric, order)),
	)

	for i, r := range results {
		fmt.Fprintf(w, "  %2d. %s  %s",
			i+1,
			cliui.ScoreStyle.Render(fmt.Sprintf("%.4f", r.Score)),
			r.Document.PageContent,
		)
		if md := formatMetadata(r.Document.Metadata); md != "" {
			fmt.Fprintf(w, "  %s", cliui.DimStyle.Render(md))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func formatMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(md))
	for _, k := range slices.Sorted(maps.Keys(md)) {
		pairs = append(pairs, k+"="+md[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
