package redisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

// searchReply builds an FT.SEARCH reply for docs scored by distances.
func searchReply(docs []vector.Document, distances []string) []any {
	reply := []any{int64(len(docs))}
	for i, doc := range docs {
		mdJSON, _ := json.Marshal(doc.Metadata)
		reply = append(reply,
			"docs:"+doc.PageContent,
			[]any{
				"page_content", doc.PageContent,
				"metadata", string(mdJSON),
				"embedding", string(vector.SerializeFloat32(doc.Embedding)),
				"__score", distances[i],
			},
		)
	}
	return reply
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		client *fakeClient
		cfg    vector.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeClient()
		cfg = vector.Config{
			Dim:       2,
			Metric:    vector.MetricCosine,
			Namespace: "docs",
			Options:   map[string]string{"tag_fields": "lang"},
		}
	})

	newDriver := func() *Driver {
		d, err := NewDriverWithClient(ctx, client, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	Describe("construction", func() {
		It("should reuse an existing index", func() {
			client.on("FT.INFO", func([]any) (any, error) { return []any{"index_name", "docs"}, nil })
			newDriver()
			Expect(client.commands()).To(Equal([]string{"FT.INFO"}))
		})

		It("should create a missing index", func() {
			client.on("FT.INFO", func([]any) (any, error) { return nil, serverError("Unknown index name") })
			newDriver()
			Expect(client.commands()).To(Equal([]string{"FT.INFO", "FT.CREATE"}))

			create := client.last("FT.CREATE")
			Expect(create).To(ContainElements("docs:", "COSINE", uint32(2), "meta_lang"))
		})

		It("should tolerate a concurrent creation", func() {
			client.on("FT.INFO", func([]any) (any, error) { return nil, serverError("Unknown index name") })
			client.on("FT.CREATE", func([]any) (any, error) { return nil, serverError("Index already exists") })
			newDriver()
		})

		It("should report transport failures as configuration errors", func() {
			client.on("FT.INFO", func([]any) (any, error) { return nil, errors.New("connection reset") })
			_, err := NewDriverWithClient(ctx, client, cfg, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
		})

		It("should report create failures as configuration errors", func() {
			client.on("FT.INFO", func([]any) (any, error) { return nil, serverError("Unknown index name") })
			client.on("FT.CREATE", func([]any) (any, error) { return nil, serverError("Bad arguments for vector field") })
			_, err := NewDriverWithClient(ctx, client, cfg, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
		})

		It("should validate the config before talking to the server", func() {
			cfg.Dim = 0
			_, err := NewDriverWithClient(ctx, client, cfg, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(client.commands()).To(BeEmpty())
		})

		It("should reject a bad oversample", func() {
			cfg.Options["oversample"] = "0"
			_, err := NewDriverWithClient(ctx, client, cfg, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
		})

		It("should default the index and prefix", func() {
			cfg.Namespace = ""
			d := newDriver()
			Expect(d.index).To(Equal(DefaultIndex))
			Expect(d.prefix).To(Equal(DefaultIndex + ":"))
		})

		It("should require a target URL", func() {
			_, err := NewDriver(ctx, vector.Config{Dim: 2}, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))

			_, err = NewDriver(ctx, vector.Config{Dim: 2, Target: "http://not-redis"}, nil)
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
		})
	})

	Describe("Add", func() {
		It("should write one hash per document in a transaction", func() {
			d := newDriver()
			Expect(d.Add(ctx, []vector.Document{
				{PageContent: "one", Embedding: []float32{1, 0}, Metadata: map[string]string{"lang": "en", "x": "y"}},
				{PageContent: "two", Embedding: []float32{0, 1}},
			})).To(Succeed())

			Expect(client.hsets).To(HaveLen(2))
			first := client.hsets[0]
			Expect(first[0]).To(HavePrefix("docs:"))
			Expect(first[1:]).To(Equal([]any{
				"page_content", "one",
				"metadata", `{"lang":"en","x":"y"}`,
				"embedding", vector.SerializeFloat32([]float32{1, 0}),
				"meta_lang", "en",
			}))
			Expect(client.hsets[1][1:]).To(ContainElement(`{}`))
			Expect(client.hsets[0][0]).NotTo(Equal(client.hsets[1][0]))
		})

		It("should reject a mismatched batch without writing", func() {
			d := newDriver()
			err := d.Add(ctx, []vector.Document{
				{Embedding: []float32{1, 0}},
				{Embedding: []float32{1}},
			})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			Expect(client.hsets).To(BeEmpty())
		})

		It("should wrap transaction failures", func() {
			d := newDriver()
			client.txErr = errors.New("EXECABORT")
			err := d.Add(ctx, []vector.Document{{Embedding: []float32{1, 0}}})
			Expect(err).To(MatchError(vector.ErrInsertion))
			Expect(err).To(MatchError(client.txErr))
		})
	})

	Describe("Query", func() {
		docs := []vector.Document{
			{PageContent: "a", Embedding: []float32{1, 0}, Metadata: map[string]string{"lang": "en", "kind": "faq"}},
			{PageContent: "b", Embedding: []float32{0.6, 0.8}, Metadata: map[string]string{"lang": "en", "kind": "blog"}},
			{PageContent: "c", Embedding: []float32{0, 1}, Metadata: map[string]string{"lang": "en", "kind": "faq"}},
		}

		It("should decode hits and convert distances", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) {
				return searchReply(docs[:2], []string{"0", "0.4"}), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Document).To(Equal(docs[0]))
			Expect(results[0].Score).To(Equal(float32(1)))
			Expect(results[1].Score).To(BeNumerically("~", 0.6, 1e-6))
		})

		It("should push tag filters into the search", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) { return []any{int64(0)}, nil })

			_, err := d.Query(ctx, []float32{1, 0}, 3, vector.Filter{"lang": "en"})
			Expect(err).NotTo(HaveOccurred())

			args := client.last("FT.SEARCH")
			Expect(args[2]).To(Equal("(@meta_lang:{en})=>[KNN 3 @embedding $vec AS __score]"))
		})

		It("should oversample and post-filter other keys", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) {
				return searchReply(docs, []string{"0", "0.4", "1"}), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 1, vector.Filter{"kind": "faq"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Document.PageContent).To(Equal("a"))

			args := client.last("FT.SEARCH")
			Expect(args[2]).To(Equal("*=>[KNN 4 @embedding $vec AS __score]"))

			results, err = d.Query(ctx, []float32{1, 0}, 5, vector.Filter{"kind": "faq"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[1].Document.PageContent).To(Equal("c"))
		})

		It("should widen the search until filtered matches are found", func() {
			cfg.Options["oversample"] = "2"
			d := newDriver()

			var corpus []vector.Document
			var distances []string
			for i := range 20 {
				kind := "faq"
				if i >= 18 {
					kind = "blog"
				}
				corpus = append(corpus, vector.Document{
					PageContent: fmt.Sprintf("doc%02d", i),
					Embedding:   []float32{1, 0},
					Metadata:    map[string]string{"lang": "en", "kind": kind},
				})
				distances = append(distances, fmt.Sprintf("%d", i))
			}
			var windows []int
			client.on("FT.SEARCH", func(args []any) (any, error) {
				knn := args[len(args)-3].(int)
				windows = append(windows, knn)
				n := min(knn, len(corpus))
				return searchReply(corpus[:n], distances[:n]), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 2, vector.Filter{"kind": "blog"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Document.PageContent).To(Equal("doc18"))
			Expect(results[1].Document.PageContent).To(Equal("doc19"))
			Expect(windows).To(Equal([]int{4, 8, 16, 32}))
		})

		It("should stop widening once the index is exhausted", func() {
			d := newDriver()
			var calls int
			client.on("FT.SEARCH", func([]any) (any, error) {
				calls++
				return searchReply(docs, []string{"0", "0.4", "1"}), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 2, vector.Filter{"kind": "none"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(calls).To(Equal(1))
		})

		It("should recheck tag matches for exact equality", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) {
				return searchReply(docs[:1], []string{"0"}), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 1, vector.Filter{"lang": "EN"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(client.last("FT.SEARCH")[2]).To(HavePrefix("(@meta_lang:{EN})"))
		})

		It("should post-filter empty tag values instead of querying them", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) {
				return searchReply(docs, []string{"0", "0.4", "1"}), nil
			})

			results, err := d.Query(ctx, []float32{1, 0}, 1, vector.Filter{"lang": ""})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(client.last("FT.SEARCH")[2]).To(HavePrefix("*=>"))
		})

		It("should short-circuit k <= 0", func() {
			d := newDriver()
			results, err := d.Query(ctx, []float32{1, 0}, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(client.commands()).NotTo(ContainElement("FT.SEARCH"))
		})

		It("should validate the query dimension", func() {
			d := newDriver()
			_, err := d.Query(ctx, []float32{1, 0, 0}, 1, nil)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("should wrap server and parse failures", func() {
			d := newDriver()
			client.on("FT.SEARCH", func([]any) (any, error) { return nil, serverError("Syntax error") })
			_, err := d.Query(ctx, []float32{1, 0}, 1, nil)
			Expect(err).To(MatchError(vector.ErrQuery))

			client.on("FT.SEARCH", func([]any) (any, error) { return []any{int64(1), "docs:1"}, nil })
			_, err = d.Query(ctx, []float32{1, 0}, 1, nil)
			Expect(err).To(MatchError(vector.ErrQuery))
		})
	})

	Describe("Close", func() {
		It("should close the client once", func() {
			d := newDriver()
			Expect(d.Close()).To(Succeed())
			Expect(d.Close()).To(Succeed())
			Expect(client.closes).To(Equal(1))
			Expect(d.IsOpen()).To(BeFalse())

			Expect(d.Add(ctx, nil)).To(MatchError(vector.ErrBackendClosed))
			_, err := d.Query(ctx, []float32{1, 0}, 1, nil)
			Expect(err).To(MatchError(vector.ErrBackendClosed))
		})
	})
})

var _ = Describe("Driver against Redis Stack", func() {
	It("should store and find documents", func() {
		url := os.Getenv("SIMSTORE_REDIS_URL")
		if url == "" {
			Skip("SIMSTORE_REDIS_URL not set")
		}
		ctx := context.Background()

		d, err := NewDriver(ctx, vector.Config{
			Dim:       3,
			Metric:    vector.MetricL2,
			Target:    url,
			Namespace: "simstore_test",
			Options:   map[string]string{"tag_fields": "lang"},
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			_ = d.client.Do(ctx, "FT.DROPINDEX", d.index, "DD").Err()
			_ = d.Close()
		})

		Expect(d.Add(ctx, []vector.Document{
			{PageContent: "a", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"lang": "en"}},
			{PageContent: "b", Embedding: []float32{0, 1, 0}, Metadata: map[string]string{"lang": "de"}},
		})).To(Succeed())

		Eventually(func(g Gomega) {
			results, err := d.Query(ctx, []float32{0.9, 0.1, 0}, 1, nil)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(results).To(HaveLen(1))
			g.Expect(results[0].Document.PageContent).To(Equal("a"))
			g.Expect(results[0].Score).To(BeNumerically("~", 0.02, 1e-5))
		}).Should(Succeed())

		results, err := d.Query(ctx, []float32{0.9, 0.1, 0}, 2, vector.Filter{"lang": "de"})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Document.PageContent).To(Equal("b"))
	})
})
