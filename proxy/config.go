package proxy

import (
	"github.com/papercomputeco/veneer/pkg/eventstream"
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the base URL of the upstream model API
	// (e.g., "https://api.venice.ai/api/v1").
	UpstreamURL string

	// Provider names the credential provider. It is reported in turn events.
	Provider string

	// APIKey is injected as the upstream bearer token on every relayed request.
	APIKey string

	// AccessToken, when set, must be presented by clients as their bearer token.
	AccessToken string

	// RateLimit is the sustained number of upstream requests per second.
	// Zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter's bucket size. Defaults to 1 when limiting.
	RateBurst int

	// Publisher receives an event for every recorded turn. Optional.
	Publisher eventstream.Publisher
}
