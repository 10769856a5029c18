// Package storagetest holds the behavior every storage.Driver must satisfy,
// written as ginkgo specs that driver packages run against their own driver.
package storagetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/storage"
)

// NewTurn returns a turn with every field populated.
func NewTurn(id, model string, createdAt time.Time) *storage.Turn {
	return &storage.Turn{
		ID:               id,
		Model:            model,
		Stream:           true,
		StatusCode:       200,
		Prompt:           "hello",
		Response:         "Hello there",
		PromptTokens:     2,
		CompletionTokens: 3,
		Estimated:        true,
		Duration:         1500 * time.Millisecond,
		CreatedAt:        createdAt,
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called before
// each spec and must return an empty store; the driver is closed afterwards.
func DescribeDriver(newDriver func() storage.Driver) {
	Describe("storage.Driver behavior", func() {
		var (
			driver storage.Driver
			ctx    context.Context
			base   time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
				driver = nil
			}
		})

		Describe("Put", func() {
			It("inserts a new turn", func() {
				inserted, err := driver.Put(ctx, NewTurn("t1", "m1", base))
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeTrue())
			})

			It("is a no-op for an existing ID", func() {
				_, err := driver.Put(ctx, NewTurn("t1", "m1", base))
				Expect(err).NotTo(HaveOccurred())

				changed := NewTurn("t1", "m2", base)
				inserted, err := driver.Put(ctx, changed)
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeFalse())

				got, err := driver.Get(ctx, "t1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Model).To(Equal("m1"))
			})

			It("rejects a nil turn", func() {
				_, err := driver.Put(ctx, nil)
				Expect(err).To(HaveOccurred())
			})

			It("rejects a turn without an ID", func() {
				_, err := driver.Put(ctx, NewTurn("", "m1", base))
				Expect(err).To(HaveOccurred())
			})
		})

		Describe("Get", func() {
			It("returns every stored field", func() {
				want := NewTurn("t1", "m1", base)
				_, err := driver.Put(ctx, want)
				Expect(err).NotTo(HaveOccurred())

				got, err := driver.Get(ctx, "t1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(want.ID))
				Expect(got.Model).To(Equal(want.Model))
				Expect(got.Stream).To(BeTrue())
				Expect(got.StatusCode).To(Equal(200))
				Expect(got.Prompt).To(Equal(want.Prompt))
				Expect(got.Response).To(Equal(want.Response))
				Expect(got.PromptTokens).To(Equal(2))
				Expect(got.CompletionTokens).To(Equal(3))
				Expect(got.TotalTokens()).To(Equal(5))
				Expect(got.Estimated).To(BeTrue())
				Expect(got.Duration).To(Equal(want.Duration))
				Expect(got.CreatedAt).To(BeTemporally("==", want.CreatedAt))
			})

			It("returns NotFoundError for unknown IDs", func() {
				_, err := driver.Get(ctx, "missing")
				Expect(err).To(HaveOccurred())

				var nf storage.NotFoundError
				Expect(errors.As(err, &nf)).To(BeTrue())
				Expect(nf.ID).To(Equal("missing"))
			})
		})

		Describe("List", func() {
			BeforeEach(func() {
				for i, id := range []string{"a", "b", "c"} {
					model := "m1"
					if id == "b" {
						model = "m2"
					}
					_, err := driver.Put(ctx, NewTurn(id, model, base.Add(time.Duration(i)*time.Minute)))
					Expect(err).NotTo(HaveOccurred())
				}
			})

			ids := func(turns []*storage.Turn) []string {
				out := make([]string, 0, len(turns))
				for _, t := range turns {
					out = append(out, t.ID)
				}
				return out
			}

			It("returns turns newest first", func() {
				turns, err := driver.List(ctx, storage.ListOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(turns)).To(Equal([]string{"c", "b", "a"}))
			})

			It("filters by model", func() {
				turns, err := driver.List(ctx, storage.ListOptions{Model: "m1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(turns)).To(Equal([]string{"c", "a"}))
			})

			It("applies the limit", func() {
				turns, err := driver.List(ctx, storage.ListOptions{Limit: 2})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(turns)).To(Equal([]string{"c", "b"}))
			})

			It("returns nothing for an unknown model", func() {
				turns, err := driver.List(ctx, storage.ListOptions{Model: "nope"})
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(BeEmpty())
			})
		})
	})
}
