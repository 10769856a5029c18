package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var (
		homeDir string
		cwd     string
	)

	BeforeEach(func() {
		homeDir = GinkgoT().TempDir()
		cwd = GinkgoT().TempDir()

		origCwd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(cwd)).To(Succeed())
		DeferCleanup(os.Chdir, origCwd)

		setenv("HOME", homeDir)
		setenv("XDG_DATA_HOME", "")
		setenv(EnvVar, "")
	})

	It("returns the override unchanged", func() {
		setenv(EnvVar, "/tmp/env.db")

		path, err := ResolveSQLitePath("/tmp/flag.db")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/flag.db"))
	})

	It("prefers VENEER_SQLITE when set", func() {
		setenv(EnvVar, "/tmp/custom.db")

		path, err := ResolveSQLitePath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.db"))
	})

	It("prefers a database in the working directory", func() {
		Expect(os.WriteFile(filepath.Join(cwd, "veneer.db"), []byte("test"), 0o644)).To(Succeed())
		homeDB := filepath.Join(homeDir, ".veneer", "veneer.db")
		Expect(os.MkdirAll(filepath.Dir(homeDB), 0o755)).To(Succeed())
		Expect(os.WriteFile(homeDB, []byte("test"), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("veneer.db"))
	})

	It("resolves ~/.veneer/veneer.db when present", func() {
		dbPath := filepath.Join(homeDir, ".veneer", "veneer.db")
		Expect(os.MkdirAll(filepath.Dir(dbPath), 0o755)).To(Succeed())
		Expect(os.WriteFile(dbPath, []byte("test"), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(dbPath))
	})

	It("fails when nothing is found", func() {
		_, err := ResolveSQLitePath("")
		Expect(err).To(MatchError(ContainSubstring("pass --sqlite")))
	})
})

func setenv(key, value string) {
	orig, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}
