package simstorecmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	simstorecmder "github.com/papercomputeco/simstore/cmd/simstore"
	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ = Describe("simstore", func() {
	var (
		tmpDir string
		corpus string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "simstore-cmd-test-*")
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(vector.EncodeDocuments(&buf, []vector.Document{
			{PageContent: "alpha", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"lang": "en"}},
			{PageContent: "beta", Embedding: []float32{0, 1, 0}, Metadata: map[string]string{"lang": "de"}},
			{PageContent: "gamma", Embedding: []float32{0.8, 0.6, 0}, Metadata: map[string]string{"lang": "de"}},
		})).To(Succeed())
		corpus = filepath.Join(tmpDir, "docs.jsonl")
		Expect(os.WriteFile(corpus, buf.Bytes(), 0o600)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	run := func(args ...string) (string, error) {
		cmd := simstorecmder.NewSimstoreCmd()
		var out, errOut bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		err := cmd.Execute()
		return out.String(), err
	}

	It("registers every subcommand", func() {
		cmd := simstorecmder.NewSimstoreCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("backends", "config", "query", "retrieve", "serve", "version"))
	})

	It("lists the built-in backends", func() {
		out, err := run("backends")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("chroma\nflat\npgvector\nqdrant\nredisearch\nsqlitevec\n"))
	})

	Describe("query", func() {
		type row struct {
			Rank     int             `json:"rank"`
			Score    float32         `json:"score"`
			Document vector.Document `json:"document"`
		}

		It("ranks the corpus with the flat backend", func() {
			out, err := run("query", "--corpus", corpus, "--embedding", "1,0,0", "--k", "2", "--json")
			Expect(err).NotTo(HaveOccurred())

			var rows []row
			Expect(json.Unmarshal([]byte(out), &rows)).To(Succeed())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Document.PageContent).To(Equal("alpha"))
			Expect(rows[0].Score).To(BeNumerically("~", 1.0, 1e-6))
			Expect(rows[1].Document.PageContent).To(Equal("gamma"))
			Expect(rows[1].Score).To(BeNumerically("~", 0.8, 1e-6))
		})

		It("honors the metric flag and filters", func() {
			out, err := run("query", "--corpus", corpus, "--embedding", "1,0,0",
				"--metric", "l2", "--filter", "lang=de", "--json")
			Expect(err).NotTo(HaveOccurred())

			var rows []row
			Expect(json.Unmarshal([]byte(out), &rows)).To(Succeed())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Document.PageContent).To(Equal("gamma"))
			Expect(rows[0].Score).To(BeNumerically("~", 0.4, 1e-6))
			Expect(rows[1].Document.PageContent).To(Equal("beta"))
		})

		It("prints a readable table by default", func() {
			out, err := run("query", "--corpus", corpus, "--embedding", "0,1,0", "--k", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("beta"))
			Expect(out).To(ContainSubstring("lang=de"))
		})

		It("rejects a dimension mismatch", func() {
			_, err := run("query", "--corpus", corpus, "--embedding", "1,0", "--dim", "3")
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("requires a corpus", func() {
			_, err := run("query", "--embedding", "1,0,0")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("retrieve", func() {
		It("prints rows above the threshold and the digest", func() {
			out, err := run("retrieve", "--corpus", corpus, "--embedding", "1,0,0",
				"--threshold", "0.5", "--query", "first letter", "--render", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("2 documents"))
			Expect(out).To(ContainSubstring("[0]"))
			Expect(out).To(ContainSubstring("[1]"))
			Expect(out).NotTo(ContainSubstring("beta"))
			Expect(out).To(ContainSubstring("(score=0.8000) gamma"))
			Expect(out).To(ContainSubstring("Query: first letter"))
		})

		It("rejects an out of range threshold", func() {
			_, err := run("retrieve", "--corpus", corpus, "--embedding", "1,0,0", "--threshold", "1.5")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("config", func() {
		It("sets, gets and lists values in the config dir", func() {
			_, err := run("config", "set", "vector_store.provider", "qdrant")
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(tmpDir, "config.toml")).To(BeAnExistingFile())

			out, err := run("config", "get", "vector_store.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("qdrant"))

			out, err = run("config", "list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`vector_store.provider    = "qdrant"`))
		})

		It("rejects unknown keys", func() {
			_, err := run("config", "set", "proxy.upstream", "x")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("feeds persisted values into query", func() {
			_, err := run("config", "set", "vector_store.metric", "ip")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("query", "--corpus", corpus, "--embedding", "2,0,0", "--k", "1", "--json")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`"score": 2`))
		})
	})

	It("prints the version", func() {
		out, err := run("version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Version: dev"))
	})
})
