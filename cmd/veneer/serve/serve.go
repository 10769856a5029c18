// Package servecmder provides the serve command that runs the veneer proxy.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/config"
	"github.com/papercomputeco/veneer/pkg/credentials"
	"github.com/papercomputeco/veneer/pkg/eventstream"
	"github.com/papercomputeco/veneer/pkg/eventstream/kafka"
	"github.com/papercomputeco/veneer/pkg/eventstream/nop"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/storage"
	"github.com/papercomputeco/veneer/pkg/storage/inmemory"
	"github.com/papercomputeco/veneer/pkg/storage/postgres"
	"github.com/papercomputeco/veneer/pkg/storage/sqlite"
	"github.com/papercomputeco/veneer/proxy"
)

// Flags is the registry of serve flags.
var Flags = config.FlagSet{
	config.FlagProxyListen:  {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the proxy to listen on"},
	config.FlagUpstream:     {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream model API base URL"},
	config.FlagAccessToken:  {Name: "access-token", ViperKey: "proxy.access_token", Description: "Bearer token clients must present (default: none required)"},
	config.FlagRateLimit:    {Name: "rate-limit", ViperKey: "proxy.rate_limit", Description: "Upstream requests per second (0 disables limiting)"},
	config.FlagRateBurst:    {Name: "rate-burst", ViperKey: "proxy.rate_burst", Description: "Upstream request burst size"},
	config.FlagSQLite:       {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	config.FlagPostgres:     {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string (takes precedence over --sqlite)"},
	config.FlagKafkaBrokers: {Name: "kafka-brokers", ViperKey: "events.kafka_brokers", Description: "Comma separated Kafka brokers for turn events"},
	config.FlagKafkaTopic:   {Name: "kafka-topic", ViperKey: "events.kafka_topic", Description: "Kafka topic for turn events"},
}

var flagKeys = []string{
	config.FlagProxyListen,
	config.FlagUpstream,
	config.FlagAccessToken,
	config.FlagRateLimit,
	config.FlagRateBurst,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type serveCommander struct {
	listen      string
	upstream    string
	accessToken string
	rateLimit   float64
	rateBurst   uint
	sqlitePath  string
	postgresDSN string
	brokers     string
	topic       string
	provider    string
	configDir   string
	logJSON     bool
	logFile     string
	debug       bool

	logger *slog.Logger
}

const serveLongDesc string = `Run the veneer proxy.

The proxy exposes GET /models, POST /chat and POST /image, relays each request
to the upstream model API with the stored API key, and streams chat responses
back byte for byte. Every chat turn is recorded to storage and, when brokers
are configured, published to Kafka.

The upstream key comes from "veneer auth" or the provider's environment
variable (VENICE_API_KEY for venice).

Additional endpoints:
  GET /health       Liveness check
  GET /metrics      Prometheus metrics
  GET /turns        Recorded turns, newest first (?model=&limit=)
  GET /turns/:id    A single recorded turn`

const serveShortDesc string = "Run the veneer proxy"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, Flags, flagKeys)

			cmder.listen = v.GetString("proxy.listen")
			cmder.upstream = v.GetString("proxy.upstream")
			cmder.accessToken = v.GetString("proxy.access_token")
			cmder.rateLimit = v.GetFloat64("proxy.rate_limit")
			cmder.rateBurst = v.GetUint("proxy.rate_burst")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.brokers = v.GetString("events.kafka_brokers")
			cmder.topic = v.GetString("events.kafka_topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, Flags, config.FlagProxyListen, &cmder.listen)
	config.AddStringFlag(cmd, Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, Flags, config.FlagAccessToken, &cmder.accessToken)
	config.AddFloat64Flag(cmd, Flags, config.FlagRateLimit, &cmder.rateLimit)
	config.AddUintFlag(cmd, Flags, config.FlagRateBurst, &cmder.rateBurst)
	config.AddStringFlag(cmd, Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, Flags, config.FlagKafkaBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, Flags, config.FlagKafkaTopic, &cmder.topic)
	cmd.Flags().StringVar(&cmder.provider, "provider", credentials.DefaultProvider, "Credential provider for the upstream key")
	cmd.Flags().BoolVar(&cmder.logJSON, "log-json", false, "Write JSON logs with source locations")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeLog func()
	var err error
	c.logger, closeLog, err = c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	apiKey, err := c.resolveAPIKey()
	if err != nil {
		return err
	}

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		Provider:    c.provider,
		APIKey:      apiKey,
		AccessToken: c.accessToken,
		RateLimit:   c.rateLimit,
		RateBurst:   int(c.rateBurst),
		Publisher:   publisher,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context done, shutting down")
	}

	return nil
}

// newLogger builds the console logger and, with --log-file, fans records out to
// a JSON file as well. The returned func closes the file.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	console := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithComponent("proxy"))
	if c.logJSON {
		console = logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithSource(true), logger.WithComponent("proxy"))
	}
	if c.logFile == "" {
		return console, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f), logger.WithComponent("proxy"))

	return logger.Multi(console, file), func() { _ = f.Close() }, nil
}

func (c *serveCommander) resolveAPIKey() (string, error) {
	if !credentials.IsSupportedProvider(c.provider) {
		return "", fmt.Errorf("unsupported provider: %q", c.provider)
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.ResolveKey(c.provider)
	if err != nil {
		return "", fmt.Errorf("resolving API key: %w", err)
	}
	if key == "" {
		c.logger.Warn("no upstream API key configured; requests are relayed without credentials",
			"provider", c.provider,
			"env", credentials.EnvVarForProvider(c.provider),
		)
	}
	return key, nil
}

func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch {
	case c.postgresDSN != "":
		driver, err := postgres.NewDriver(ctx, c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case c.sqlitePath != "":
		driver, err := sqlite.NewSQLiteDriver(c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.sqlitePath)
		return driver, nil

	default:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := kafka.ParseBrokers(c.brokers)
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.topic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing turn events",
		"brokers", brokers,
		"topic", c.topic,
	)
	return publisher, nil
}
