package redisearch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ = Describe("command building", func() {
	It("should build FT.CREATE with the vector field and tag fields", func() {
		args := createIndexArgs("docs", "docs:", 3, vector.MetricCosine, []string{"lang", "kind"})
		Expect(args).To(Equal([]any{
			"FT.CREATE", "docs",
			"ON", "HASH",
			"PREFIX", 1, "docs:",
			"SCHEMA",
			"page_content", "TEXT",
			"metadata", "TEXT",
			"embedding", "VECTOR", "FLAT", 6,
			"TYPE", "FLOAT32",
			"DIM", uint32(3),
			"DISTANCE_METRIC", "COSINE",
			"meta_lang", "TAG", "SEPARATOR", "\x1f", "CASESENSITIVE",
			"meta_kind", "TAG", "SEPARATOR", "\x1f", "CASESENSITIVE",
		}))
	})

	DescribeTable("distance metric names",
		func(m vector.Metric, want string) {
			Expect(distanceMetric(m)).To(Equal(want))
		},
		Entry("l2", vector.MetricL2, "L2"),
		Entry("ip", vector.MetricInnerProduct, "IP"),
		Entry("cosine", vector.MetricCosine, "COSINE"),
	)

	It("should build FT.SEARCH with a bound vector", func() {
		blob := []byte{1, 2, 3, 4}
		args := searchArgs("docs", nil, 5, blob)
		Expect(args).To(Equal([]any{
			"FT.SEARCH", "docs", "*=>[KNN 5 @embedding $vec AS __score]",
			"PARAMS", 2, "vec", blob,
			"SORTBY", "__score", "ASC",
			"RETURN", 4, "page_content", "metadata", "embedding", "__score",
			"LIMIT", 0, 5,
			"DIALECT", 2,
		}))
	})

	It("should render tag predicates in key order", func() {
		Expect(prefilter(vector.Filter{"lang": "en", "kind": "faq"})).
			To(Equal("(@meta_kind:{faq} @meta_lang:{en})"))
	})

	It("should escape tag separators", func() {
		Expect(escapeTag("plain")).To(Equal("plain"))
		Expect(escapeTag("a b-c.d")).To(Equal(`a\ b\-c\.d`))
		Expect(escapeTag("x@y{z}")).To(Equal(`x\@y\{z\}`))
	})

	It("should split tag field lists", func() {
		Expect(splitFields(" lang, ,kind ")).To(Equal([]string{"lang", "kind"}))
		Expect(splitFields("")).To(BeEmpty())
	})
})

var _ = Describe("reply parsing", func() {
	It("should decode documents by position", func() {
		hits, err := parseSearchReply([]any{
			int64(2),
			"docs:1", []any{"page_content", "hello", "__score", "0.5"},
			"docs:2", []any{},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(HaveLen(2))
		Expect(hits[0].key).To(Equal("docs:1"))
		Expect(hits[0].fields).To(Equal(map[string]string{"page_content": "hello", "__score": "0.5"}))
		Expect(hits[1].fields).To(BeEmpty())
	})

	It("should accept an empty result", func() {
		hits, err := parseSearchReply([]any{int64(0)})
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(BeEmpty())
	})

	DescribeTable("should reject malformed replies",
		func(reply any) {
			_, err := parseSearchReply(reply)
			Expect(err).To(HaveOccurred())
		},
		Entry("not an array", "OK"),
		Entry("empty array", []any{}),
		Entry("no total", []any{"docs:1", []any{}}),
		Entry("key without fields", []any{int64(1), "docs:1"}),
		Entry("non-string key", []any{int64(1), int64(7), []any{}}),
		Entry("fields not an array", []any{int64(1), "docs:1", "page_content"}),
		Entry("odd field list", []any{int64(1), "docs:1", []any{"page_content"}}),
		Entry("non-string value", []any{int64(1), "docs:1", []any{"page_content", int64(3)}}),
	)

	It("should parse scores", func() {
		s, err := parseScore("0.25")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(float32(0.25)))

		_, err = parseScore("")
		Expect(err).To(HaveOccurred())
		_, err = parseScore("abc")
		Expect(err).To(HaveOccurred())
	})

	It("should convert distances back to scores", func() {
		Expect(scoreFromDistance(vector.MetricL2, 0.02)).To(Equal(float32(0.02)))
		Expect(scoreFromDistance(vector.MetricInnerProduct, -2)).To(Equal(float32(3)))
		Expect(scoreFromDistance(vector.MetricCosine, 0.25)).To(Equal(float32(0.75)))
	})
})
