package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/storage"
	"github.com/papercomputeco/veneer/pkg/storage/sqlite"
	"github.com/papercomputeco/veneer/pkg/storage/storagetest"
)

var _ = Describe("SQLiteDriver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		d, err := sqlite.NewSQLiteDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewSQLiteDriver", func() {
		It("creates a driver with file database", func() {
			tmpDir := GinkgoT().TempDir()
			dbPath := filepath.Join(tmpDir, "test.db")

			s, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			// Verify file was created
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps turns across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			s, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Put(ctx, storagetest.NewTurn("t1", "m1", time.Now()))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			reopened, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			got, err := reopened.Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Model).To(Equal("m1"))
		})
	})
})
