package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ = Describe("Document", func() {
	It("should deep-copy on Clone", func() {
		doc := vector.Document{
			PageContent: "hello",
			Embedding:   []float32{1, 2},
			Metadata:    map[string]string{"k": "v"},
		}
		clone := doc.Clone()
		clone.Embedding[0] = 9
		clone.Metadata["k"] = "changed"

		Expect(doc.Embedding).To(Equal([]float32{1, 2}))
		Expect(doc.Metadata).To(HaveKeyWithValue("k", "v"))
	})

	It("should keep an absent embedding absent and empty nil metadata on Clone", func() {
		clone := vector.Document{PageContent: "bare"}.Clone()
		Expect(clone.Embedding).To(BeNil())
		Expect(clone.Metadata).NotTo(BeNil())
		Expect(clone.Metadata).To(BeEmpty())
	})
})

var _ = Describe("Filter", func() {
	md := map[string]string{"lang": "en", "kind": "faq"}

	It("should match everything when empty", func() {
		Expect(vector.Filter(nil).Matches(md)).To(BeTrue())
		Expect(vector.Filter{}.Matches(nil)).To(BeTrue())
	})

	It("should require every pair", func() {
		Expect(vector.Filter{"lang": "en"}.Matches(md)).To(BeTrue())
		Expect(vector.Filter{"lang": "en", "kind": "faq"}.Matches(md)).To(BeTrue())
		Expect(vector.Filter{"lang": "en", "kind": "howto"}.Matches(md)).To(BeFalse())
		Expect(vector.Filter{"missing": ""}.Matches(md)).To(BeFalse())
	})
})

var _ = Describe("CheckAdd and CheckQuery", func() {
	It("should accept matching lengths and empty batches", func() {
		Expect(vector.CheckAdd(2, nil)).To(Succeed())
		Expect(vector.CheckAdd(2, []vector.Document{{Embedding: []float32{1, 2}}})).To(Succeed())
		Expect(vector.CheckQuery(2, []float32{1, 2})).To(Succeed())
	})

	It("should reject missing or mismatched embeddings", func() {
		Expect(vector.CheckAdd(2, []vector.Document{{PageContent: "none"}})).To(MatchError(vector.ErrDimensionMismatch))
		Expect(vector.CheckQuery(2, []float32{1, 2, 3})).To(MatchError(vector.ErrDimensionMismatch))
		Expect(vector.CheckQuery(2, nil)).To(MatchError(vector.ErrDimensionMismatch))
	})
})

type stubDriver struct {
	vector.Driver
	name string
}

type stubWrapper struct {
	vector.Driver
	inner vector.Driver
}

func (w stubWrapper) Inner() vector.Driver { return w.inner }

var _ = Describe("Find", func() {
	It("walks the decorator chain", func() {
		base := stubDriver{name: "base"}
		chain := stubWrapper{inner: stubWrapper{inner: base}}

		found, ok := vector.Find[stubDriver](chain)
		Expect(ok).To(BeTrue())
		Expect(found.name).To(Equal("base"))

		w, ok := vector.Find[vector.Wrapper](chain)
		Expect(ok).To(BeTrue())
		Expect(w).To(Equal(chain))
	})

	It("reports a miss", func() {
		_, ok := vector.Find[stubWrapper](stubDriver{})
		Expect(ok).To(BeFalse())
		_, ok = vector.Find[stubDriver](nil)
		Expect(ok).To(BeFalse())
	})
})
