package vector_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ = Describe("Errors", func() {
	DescribeTable("every sentinel is a storage error",
		func(err error) {
			Expect(errors.Is(err, vector.ErrStorage)).To(BeTrue())
		},
		Entry("invalid configuration", vector.ErrInvalidConfiguration),
		Entry("backend closed", vector.ErrBackendClosed),
		Entry("dimension mismatch", vector.ErrDimensionMismatch),
		Entry("query", vector.ErrQuery),
		Entry("insertion", vector.ErrInsertion),
	)

	It("should keep sentinels distinct", func() {
		Expect(errors.Is(vector.ErrQuery, vector.ErrInsertion)).To(BeFalse())
		Expect(errors.Is(vector.ErrBackendClosed, vector.ErrDimensionMismatch)).To(BeFalse())
	})

	Describe("DimensionError", func() {
		It("should carry both lengths and match ErrDimensionMismatch", func() {
			err := error(vector.NewDimensionError(3, 2))
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			Expect(err).To(MatchError(vector.ErrStorage))
			Expect(err.Error()).To(Equal("dimension mismatch: expected 3, got 2"))

			var dimErr *vector.DimensionError
			Expect(errors.As(err, &dimErr)).To(BeTrue())
			Expect(dimErr.Expected).To(Equal(uint32(3)))
			Expect(dimErr.Actual).To(Equal(2))
		})
	})

	Describe("ConfigError", func() {
		It("should name the field and match ErrInvalidConfiguration", func() {
			err := error(vector.NewConfigError("dim", "must be positive"))
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(err.Error()).To(Equal("invalid configuration: dim: must be positive"))
		})

		It("should omit an empty field", func() {
			err := vector.NewConfigError("", "bad")
			Expect(err.Error()).To(Equal("invalid configuration: bad"))
		})
	})

	Describe("wrapping helpers", func() {
		cause := errors.New("connection refused")

		It("should match both the category and the cause", func() {
			q := vector.QueryError("searching", cause)
			Expect(q).To(MatchError(vector.ErrQuery))
			Expect(q).To(MatchError(vector.ErrStorage))
			Expect(q).To(MatchError(cause))
			Expect(q.Error()).To(Equal("query failed: searching: connection refused"))

			ins := vector.InsertionError("writing", cause)
			Expect(ins).To(MatchError(vector.ErrInsertion))
			Expect(ins).To(MatchError(cause))

			cfg := vector.InvalidConfigurationError("creating index", cause)
			Expect(cfg).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(cfg).To(MatchError(cause))
		})
	})
})
