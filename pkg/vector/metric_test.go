package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ = Describe("Metric", func() {
	DescribeTable("ParseMetric",
		func(in string, want vector.Metric) {
			m, err := vector.ParseMetric(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(want))
		},
		Entry("empty defaults to l2", "", vector.MetricL2),
		Entry("l2", "l2", vector.MetricL2),
		Entry("upper-case L2", "L2", vector.MetricL2),
		Entry("euclidean", "euclidean", vector.MetricL2),
		Entry("ip", "ip", vector.MetricInnerProduct),
		Entry("inner_product", "inner_product", vector.MetricInnerProduct),
		Entry("dot", "dot", vector.MetricInnerProduct),
		Entry("cosine", " Cosine ", vector.MetricCosine),
	)

	It("should reject unknown names", func() {
		_, err := vector.ParseMetric("manhattan")
		Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
	})

	It("should rank according to direction", func() {
		Expect(vector.MetricL2.HigherIsBetter()).To(BeFalse())
		Expect(vector.MetricL2.Better(0.1, 0.2)).To(BeTrue())
		Expect(vector.MetricInnerProduct.Better(0.1, 0.2)).To(BeFalse())
		Expect(vector.MetricCosine.Better(0.9, 0.2)).To(BeTrue())
		Expect(vector.MetricCosine.Better(0.5, 0.5)).To(BeFalse())
	})

	It("should round-trip through text", func() {
		for _, m := range []vector.Metric{vector.MetricL2, vector.MetricInnerProduct, vector.MetricCosine} {
			text, err := m.MarshalText()
			Expect(err).NotTo(HaveOccurred())

			var back vector.Metric
			Expect(back.UnmarshalText(text)).To(Succeed())
			Expect(back).To(Equal(m))
		}
	})

	It("should refuse to marshal an invalid metric", func() {
		_, err := vector.Metric(9).MarshalText()
		Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
		Expect(vector.Metric(9).String()).To(Equal("unknown(9)"))
	})
})
