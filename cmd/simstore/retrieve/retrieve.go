// Package retrievecmder provides the simstore retrieve command.
package retrievecmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/cmd/simstore/cmdutil"
	"github.com/papercomputeco/simstore/pkg/cliui"
	"github.com/papercomputeco/simstore/pkg/retrieval"
	"github.com/papercomputeco/simstore/pkg/vector"
)

type retrieveCommander struct {
	corpus    string
	embedding string
	query     string
	threshold float32
	render    int
	markdown  bool
}

const retrieveLongDesc string = `Run a threshold retrieval session over a JSON Lines corpus.

Every corpus document whose cosine similarity to the query embedding is at
least --threshold is printed, best first. With --render, the selected row is
rendered as a context digest ending with the query text.

Examples:
  simstore retrieve --corpus docs.jsonl --embedding 0.1,0.2 --threshold 0.5
  simstore retrieve --corpus docs.jsonl --embedding 0.1,0.2 --query "what is x" --render 0`

const retrieveShortDesc string = "Retrieve every document above a similarity threshold"

func NewRetrieveCmd() *cobra.Command {
	cmder := &retrieveCommander{}

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: retrieveShortDesc,
		Long:  retrieveLongDesc,
		Args:  cobra.NoArgs,
		RunE:  cmder.run,
	}

	cmd.Flags().StringVarP(&cmder.corpus, "corpus", "c", "", "Path to a JSON Lines corpus")
	cmd.Flags().StringVarP(&cmder.embedding, "embedding", "e", "", "Comma-separated query embedding")
	cmd.Flags().StringVarP(&cmder.query, "query", "q", "", "Query text shown in the digest")
	cmd.Flags().Float32VarP(&cmder.threshold, "threshold", "t", 0.5, "Minimum cosine similarity in [-1, 1]")
	cmd.Flags().IntVar(&cmder.render, "render", -1, "Render the retrieved row at this index as a digest")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the digest as terminal markdown")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func (c *retrieveCommander) run(cmd *cobra.Command, _ []string) error {
	embedding, err := cmdutil.ParseEmbedding(c.embedding)
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

	ctx := cmd.Context()
	session := retrieval.NewSession(c.query, embedding, retrieval.WithLogger(log))
	defer session.Close()

	if err := session.BindCorpus(ctx, docs); err != nil {
		return err
	}
	results, err := session.Retrieve(ctx, c.threshold)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render(fmt.Sprintf("%d documents", len(results))),
		cliui.DimStyle.Render(fmt.Sprintf("(cosine >= %.4f)", c.threshold)),
	)
	for i, r := range results {
		prefix := fmt.Sprintf("  [%d] %.4f  ", i, r.Score)
		fmt.Fprintf(out, "  [%d] %s  %s\n", i, cliui.ScoreStyle.Render(fmt.Sprintf("%.4f", r.Score)),
			cliui.Fit(out, r.Document.PageContent, len(prefix)))
	}
	fmt.Fprintln(out)

	if c.render < 0 {
		return nil
	}
	if len(results) == 0 {
		return errors.New("nothing retrieved to render")
	}

	digest, err := session.Render(c.render)
	if err != nil {
		return err
	}

	if c.markdown {
		rendered, err := cliui.RenderMarkdown(digestMarkdown(digest))
		if err != nil {
			log.Debug("markdown rendering failed", "error", err)
		}
		fmt.Fprint(out, rendered)
		return nil
	}

	fmt.Fprintln(out, digest)
	return nil
}

// digestMarkdown quotes each digest line under a heading.
func digestMarkdown(digest string) string {
	var b strings.Builder
	b.WriteString("## Retrieved context\n\n")
	for _, line := range strings.Split(digest, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
