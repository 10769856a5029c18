package proxyclient_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/cmd/veneer/proxyclient"
	"github.com/papercomputeco/veneer/pkg/logger"
)

var _ = Describe("Options", func() {
	var (
		tmpDir string
		opts   *proxyclient.Options
		cmd    *cobra.Command
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		opts = &proxyclient.Options{}
		cmd = &cobra.Command{Use: "test"}
		cmd.Flags().String("config-dir", tmpDir, "")
		opts.AddFlags(cmd)
	})

	It("defaults to the local proxy", func() {
		Expect(opts.Resolve(cmd)).To(Succeed())
		Expect(opts.ProxyTarget).To(Equal("http://localhost:8080"))
		Expect(opts.AccessToken).To(BeEmpty())
	})

	It("reads values from config.toml", func() {
		data := "[client]\nproxy_target = \"http://proxy.internal:9000\"\naccess_token = \"tok\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		Expect(opts.Resolve(cmd)).To(Succeed())
		Expect(opts.ProxyTarget).To(Equal("http://proxy.internal:9000"))
		Expect(opts.AccessToken).To(Equal("tok"))
	})

	It("prefers flags over the config file", func() {
		data := "[client]\nproxy_target = \"http://proxy.internal:9000\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		Expect(cmd.Flags().Set("proxy-target", "http://127.0.0.1:1234")).To(Succeed())

		Expect(opts.Resolve(cmd)).To(Succeed())
		Expect(opts.ProxyTarget).To(Equal("http://127.0.0.1:1234"))
	})

	It("prefers the environment over the config file", func() {
		GinkgoT().Setenv("VENEER_CLIENT_ACCESS_TOKEN", "from-env")

		Expect(opts.Resolve(cmd)).To(Succeed())
		Expect(opts.AccessToken).To(Equal("from-env"))
	})

	It("builds a catalog with price overrides", func() {
		path := filepath.Join(tmpDir, "prices.json")
		Expect(os.WriteFile(path, []byte(`{"llama-3.3-70b":{"input":0.7,"output":2.8}}`), 0o600)).To(Succeed())
		opts.PricingFile = path

		c, err := opts.NewClient(logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		cat, err := opts.NewCatalog(c, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		price, err := cat.Price(GinkgoT().Context(), "llama-3.3-70b")
		Expect(err).NotTo(HaveOccurred())
		Expect(price.Known()).To(BeTrue())
	})

	It("rejects an unreadable pricing file", func() {
		opts.PricingFile = filepath.Join(tmpDir, "missing.json")
		c, err := opts.NewClient(logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		_, err = opts.NewCatalog(c, logger.Nop())
		Expect(err).To(HaveOccurred())
	})
})
