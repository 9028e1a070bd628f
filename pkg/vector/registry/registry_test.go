package registry_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/flat"
	"github.com/papercomputeco/simstore/pkg/vector/registry"
)

// named returns a factory building a flat driver whose creation is recorded.
func named(label string, made *[]string) registry.Factory {
	return func(_ context.Context, c vector.Config) (vector.Driver, error) {
		*made = append(*made, label)
		d, err := flat.NewDriver(c, nil)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

var _ = Describe("Registry", func() {
	var (
		r    *registry.Registry
		ctx  context.Context
		made []string
	)

	BeforeEach(func() {
		r = registry.New()
		ctx = context.Background()
		made = nil
	})

	Describe("Register", func() {
		It("should canonicalize names", func() {
			Expect(r.Register("  Memory ", named("memory", &made), false)).To(Succeed())
			Expect(r.Has("memory")).To(BeTrue())
			Expect(r.Has("MEMORY")).To(BeTrue())
			Expect(r.List()).To(Equal([]string{"memory"}))
		})

		It("should reject empty names and nil factories", func() {
			Expect(r.Register("  ", named("x", &made), false)).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(r.Register("x", nil, false)).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(r.List()).To(BeEmpty())
		})

		It("should reject duplicates unless override is allowed", func() {
			Expect(r.Register("mem", named("first", &made), false)).To(Succeed())
			Expect(r.Register("MEM", named("second", &made), false)).To(MatchError(vector.ErrInvalidConfiguration))

			d, err := r.Make(ctx, "mem", vector.Config{Dim: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())
			Expect(made).To(Equal([]string{"first"}))

			Expect(r.Register("mem", named("second", &made), true)).To(Succeed())
			d, err = r.Make(ctx, "mem", vector.Config{Dim: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())
			Expect(made).To(Equal([]string{"first", "second"}))
		})
	})

	Describe("Make", func() {
		It("should fail for unknown names", func() {
			_, err := r.Make(ctx, "nope", vector.Config{Dim: 2})
			Expect(err).To(MatchError(vector.ErrInvalidConfiguration))
			Expect(err).To(MatchError(ContainSubstring(`unknown backend "nope"`)))
		})

		It("should return factory errors unchanged", func() {
			boom := errors.New("boom")
			Expect(r.Register("broken", func(context.Context, vector.Config) (vector.Driver, error) {
				return nil, boom
			}, false)).To(Succeed())

			_, err := r.Make(ctx, "broken", vector.Config{Dim: 2})
			Expect(err).To(BeIdenticalTo(boom))
		})
	})

	It("should list names in sorted order", func() {
		for _, name := range []string{"zeta", "alpha", "mid"} {
			Expect(r.Register(name, named(name, &made), false)).To(Succeed())
		}
		Expect(r.List()).To(Equal([]string{"alpha", "mid", "zeta"}))
	})

	It("should tolerate concurrent registration and lookup", func() {
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = r.Register(string(rune('a'+i)), named("concurrent", new([]string)), true)
			}()
			go func() {
				defer wg.Done()
				_ = r.List()
			}()
		}
		wg.Wait()
		Expect(r.List()).To(HaveLen(16))
	})

	Describe("built-ins", func() {
		It("should pre-load the default registry", func() {
			Expect(registry.Default().List()).To(Equal([]string{
				registry.Chroma,
				registry.Flat,
				registry.PGVector,
				registry.Qdrant,
				registry.RediSearch,
				registry.SQLiteVec,
			}))
			Expect(registry.Default()).To(BeIdenticalTo(registry.Default()))
		})

		It("should build a working flat driver", func() {
			d, err := registry.Default().Make(ctx, "flat", vector.Config{Dim: 3, Metric: vector.MetricL2})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(d.Close)

			Expect(d.Add(ctx, []vector.Document{{PageContent: "a", Embedding: []float32{1, 0, 0}}})).To(Succeed())
			results, err := d.Query(ctx, []float32{1, 0, 0}, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("should reject a second RegisterBuiltins on the same registry", func() {
			Expect(registry.RegisterBuiltins(r, nil)).To(Succeed())
			Expect(registry.RegisterBuiltins(r, nil)).To(MatchError(vector.ErrInvalidConfiguration))
		})

		It("should let callers override a built-in", func() {
			Expect(registry.RegisterBuiltins(r, nil)).To(Succeed())
			Expect(r.Register("flat", named("custom", &made), true)).To(Succeed())

			d, err := r.Make(ctx, "flat", vector.Config{Dim: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())
			Expect(made).To(Equal([]string{"custom"}))
		})
	})
})
