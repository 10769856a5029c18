package config

const (
	defaultUpstream    = "https://api.venice.ai/api/v1"
	defaultProxyListen = ":8080"
	defaultRateBurst   = 10

	defaultClientProxyTarget = "http://localhost:8080"

	defaultKafkaTopic = "veneer.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Upstream:  defaultUpstream,
			Listen:    defaultProxyListen,
			RateBurst: defaultRateBurst,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
