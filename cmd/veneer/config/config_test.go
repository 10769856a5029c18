package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/veneer/cmd/veneer/config"
	"github.com/papercomputeco/veneer/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .veneer/ config directory")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			Expect(run("set", "proxy.upstream", "http://localhost:9999")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Upstream).To(Equal("http://localhost:9999"))
		})

		It("masks tokens in its output", func() {
			Expect(run("set", "proxy.access_token", "supersecret")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("supersecret"))
			Expect(out.String()).To(ContainSubstring("*******cret"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "proxy.upstream")).NotTo(Succeed())
			Expect(run("set")).NotTo(Succeed())
		})

		It("rejects invalid numeric values", func() {
			Expect(run("set", "proxy.rate_burst", "not-a-number")).NotTo(Succeed())
			Expect(run("set", "proxy.rate_limit", "-1")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "events.kafka_topic", "turns")).To(Succeed())
			out.Reset()

			Expect(run("get", "events.kafka_topic")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("turns"))
		})

		It("reports unset keys", func() {
			Expect(run("get", "storage.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("masks connection strings", func() {
			Expect(run("set", "storage.postgres_dsn", "postgres://u:pw@db/veneer")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("u:pw"))
			Expect(out.String()).To(ContainSubstring(`"*********************neer"`))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})

	Describe("completion", func() {
		It("completes config keys for get", func() {
			cmd := configcmder.NewConfigCmd()
			get, _, err := cmd.Find([]string{"get"})
			Expect(err).NotTo(HaveOccurred())

			keys, directive := get.ValidArgsFunction(get, nil, "")
			Expect(keys).To(Equal(config.ValidConfigKeys()))
			Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
		})
	})
})
