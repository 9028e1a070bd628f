package chroma_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/chroma"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// fakeChroma serves the handful of Chroma endpoints the driver calls.
type fakeChroma struct {
	mu        sync.Mutex
	exists    bool
	space     string
	created   map[string]any
	adds      []map[string]any
	queries   []map[string]any
	queryResp map[string]any
	queryFail bool
	failFirst int32
	requests  atomic.Int32
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.requests.Add(1) <= f.failFirst {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == collectionsPath+"/docs":
		if !f.exists {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cid", "name": "docs", "metadata": map[string]any{"hnsw:space": f.space},
		})
	case r.Method == http.MethodPost && r.URL.Path == collectionsPath:
		f.created = body
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cid", "name": body["name"]})
	case r.URL.Path == collectionsPath+"/cid/add":
		f.adds = append(f.adds, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	case r.URL.Path == collectionsPath+"/cid/query":
		f.queries = append(f.queries, body)
		if f.queryFail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.queryResp)
	default:
		http.Error(w, "unexpected "+r.URL.Path, http.StatusTeapot)
	}
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		fake   *fakeChroma
		server *httptest.Server
		cfg    vector.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeChroma{}
		server = httptest.NewServer(fake)
		DeferCleanup(server.Close)
		cfg = vector.Config{
			Dim:       2,
			Metric:    vector.MetricCosine,
			Target:    server.URL,
			Namespace: "docs",
			Options:   map[string]string{"retry_interval": "1ms"},
		}
	})

	newDriver := func() *chroma.Driver {
		d, err := chroma.NewDriver(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(d.Close)
		return d
	}

	Describe("NewDriver", func() {
		It("requires a target", func() {
			cfg.Target = ""
			_, err := chroma.NewDriver(ctx, cfg, logger.Nop())
			Expect(errors.Is(err, vector.ErrInvalidConfiguration)).To(BeTrue())
		})

		It("creates a missing collection with the metric's space", func() {
			newDriver()
			Expect(fake.created).To(HaveKeyWithValue("name", "docs"))
			Expect(fake.created["metadata"]).To(HaveKeyWithValue("hnsw:space", "cosine"))
		})

		It("reuses an existing collection", func() {
			fake.exists = true
			fake.space = "cosine"
			newDriver()
			Expect(fake.created).To(BeNil())
		})

		It("rejects an existing collection with another space", func() {
			fake.exists = true
			fake.space = "l2"
			_, err := chroma.NewDriver(ctx, cfg, logger.Nop())
			Expect(errors.Is(err, vector.ErrInvalidConfiguration)).To(BeTrue())
			Expect(fake.requests.Load()).To(BeEquivalentTo(1))
		})

		It("retries while chroma is starting", func() {
			fake.failFirst = 2
			newDriver()
			Expect(fake.created).NotTo(BeNil())
		})

		It("gives up after the configured retries", func() {
			fake.failFirst = 100
			cfg.Options["connect_retries"] = "3"
			_, err := chroma.NewDriver(ctx, cfg, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(fake.requests.Load()).To(BeEquivalentTo(3))
		})
	})

	Describe("Add", func() {
		It("sends content, embeddings and metadata", func() {
			d := newDriver()
			err := d.Add(ctx, []vector.Document{
				{PageContent: "a", Embedding: []float32{1, 0}, Metadata: map[string]string{"lang": "go"}},
				{PageContent: "b", Embedding: []float32{0, 1}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.adds).To(HaveLen(1))
			Expect(fake.adds[0]["documents"]).To(Equal([]any{"a", "b"}))
			Expect(fake.adds[0]["ids"]).To(HaveLen(2))
			Expect(fake.adds[0]["metadatas"]).To(Equal([]any{map[string]any{"lang": "go"}, nil}))
		})

		It("rejects a dimension mismatch without a request", func() {
			d := newDriver()
			err := d.Add(ctx, []vector.Document{{Embedding: []float32{1}}})
			Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
			Expect(fake.adds).To(BeEmpty())
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			fake.queryResp = map[string]any{
				"ids":        [][]string{{"1", "2"}},
				"documents":  [][]any{{"a", nil}},
				"metadatas":  [][]any{{map[string]any{"lang": "go"}, nil}},
				"distances":  [][]float32{{0.25, 0.75}},
				"embeddings": [][][]float32{{{1, 0}, {0, 1}}},
			}
		})

		It("converts cosine distances to similarities", func() {
			d := newDriver()
			results, err := d.Query(ctx, []float32{1, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Document.PageContent).To(Equal("a"))
			Expect(results[0].Document.Metadata).To(Equal(map[string]string{"lang": "go"}))
			Expect(results[0].Score).To(BeNumerically("~", 0.75, 1e-6))
			Expect(results[1].Score).To(BeNumerically("~", 0.25, 1e-6))
			Expect(results[1].Document.Embedding).To(Equal([]float32{0, 1}))
		})

		It("keeps l2 distances as scores", func() {
			cfg.Metric = vector.MetricL2
			d := newDriver()
			results, err := d.Query(ctx, []float32{1, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Score).To(BeNumerically("~", 0.25, 1e-6))
		})

		It("sends a single-key filter as an equality", func() {
			d := newDriver()
			_, err := d.Query(ctx, []float32{1, 0}, 1, vector.Filter{"lang": "go"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.queries[0]["where"]).To(Equal(map[string]any{"lang": map[string]any{"$eq": "go"}}))
		})

		It("joins several filter keys with $and", func() {
			d := newDriver()
			_, err := d.Query(ctx, []float32{1, 0}, 1, vector.Filter{"lang": "go", "kind": "doc"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.queries[0]["where"]).To(HaveKey("$and"))
			Expect(fake.queries[0]["where"].(map[string]any)["$and"]).To(HaveLen(2))
		})

		It("returns nothing for k <= 0", func() {
			d := newDriver()
			results, err := d.Query(ctx, []float32{1, 0}, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(fake.queries).To(BeEmpty())
		})

		It("wraps server errors as query errors", func() {
			d := newDriver()
			fake.mu.Lock()
			fake.queryFail = true
			fake.mu.Unlock()
			_, err := d.Query(ctx, []float32{1, 0}, 1, nil)
			Expect(errors.Is(err, vector.ErrQuery)).To(BeTrue())
			Expect(strings.Contains(err.Error(), "boom")).To(BeTrue())
		})
	})

	Describe("Close", func() {
		It("is idempotent and fails later calls", func() {
			d := newDriver()
			Expect(d.Close()).To(Succeed())
			Expect(d.Close()).To(Succeed())
			Expect(d.IsOpen()).To(BeFalse())
			err := d.Add(ctx, nil)
			Expect(errors.Is(err, vector.ErrBackendClosed)).To(BeTrue())
		})
	})
})
