package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	// chdir moves into dir for the rest of the spec.
	chdir := func(dir string) {
		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(os.Chdir, orig)
	}

	BeforeEach(func() {
		var err error
		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv(dotdir.EnvVar, "")
		GinkgoT().Setenv("HOME", filepath.Join(tmpDir, "home"))
		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates the override directory", func() {
			dir := filepath.Join(tmpDir, "state")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		It("makes a relative override absolute", func() {
			chdir(tmpDir)

			result, err := m.Target("rel")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(tmpDir, "rel")))
		})

		It("prefers the override over VENEER_HOME and a local .veneer", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".veneer"), 0o755)).To(Succeed())
			chdir(tmpDir)
			GinkgoT().Setenv(dotdir.EnvVar, filepath.Join(tmpDir, "env"))

			override := filepath.Join(tmpDir, "override")
			Expect(m.Target(override)).To(Equal(override))
		})

		It("prefers VENEER_HOME over a local .veneer", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".veneer"), 0o755)).To(Succeed())
			chdir(tmpDir)
			GinkgoT().Setenv(dotdir.EnvVar, filepath.Join(tmpDir, "env"))

			Expect(m.Target("")).To(Equal(filepath.Join(tmpDir, "env")))
			Expect(filepath.Join(tmpDir, "env")).To(BeADirectory())
		})

		It("uses a local .veneer when it exists", func() {
			local := filepath.Join(tmpDir, ".veneer")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(tmpDir)

			Expect(m.Target("")).To(Equal(local))
		})

		It("ignores a local .veneer file that is not a directory", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, ".veneer"), nil, 0o600)).To(Succeed())
			chdir(tmpDir)

			Expect(m.Target("")).To(Equal(filepath.Join(tmpDir, "home", ".veneer")))
		})

		It("falls back to ~/.veneer and creates it", func() {
			empty := filepath.Join(tmpDir, "empty")
			Expect(os.Mkdir(empty, 0o755)).To(Succeed())
			chdir(empty)

			home := filepath.Join(tmpDir, "home", ".veneer")
			Expect(m.Target("")).To(Equal(home))
			Expect(home).To(BeADirectory())
		})
	})

	Describe("File", func() {
		DescribeTable("joins the name onto the state directory",
			func(name string) {
				path, err := m.File(tmpDir, name)
				Expect(err).NotTo(HaveOccurred())
				Expect(path).To(Equal(filepath.Join(tmpDir, name)))
				Expect(path).NotTo(BeAnExistingFile())
			},
			Entry("config", dotdir.ConfigFile),
			Entry("credentials", dotdir.CredentialsFile),
			Entry("settings", dotdir.SettingsFile),
			Entry("transcript", dotdir.TranscriptFile),
		)

		It("creates the directory but not the file", func() {
			dir := filepath.Join(tmpDir, "fresh")
			path, err := m.File(dir, dotdir.SettingsFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(BeADirectory())
			Expect(path).NotTo(BeAnExistingFile())
		})

		It("fails when the directory cannot be created", func() {
			blocker := filepath.Join(tmpDir, "blocker")
			Expect(os.WriteFile(blocker, nil, 0o600)).To(Succeed())

			_, err := m.File(filepath.Join(blocker, "sub"), dotdir.ConfigFile)
			Expect(err).To(MatchError(ContainSubstring("creating veneer directory")))
		})
	})
})
