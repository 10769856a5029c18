// Package catalog caches the upstream model list and resolves model pricing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/metering"
)

// DefaultTTL is how long a fetched model list is served from cache.
const DefaultTTL = 10 * time.Minute

// Lister fetches models by type. *client.Client implements it.
type Lister interface {
	ListModels(ctx context.Context, modelType string) ([]llm.ModelMetadata, error)
}

// Config holds configuration for a Catalog.
type Config struct {
	Lister Lister

	// TTL defaults to DefaultTTL.
	TTL time.Duration

	// Overrides take precedence over catalog pricing.
	Overrides metering.PricingTable

	Clock  func() time.Time
	Logger *slog.Logger
}

// Catalog is a read-through cache over the model list. It is safe for
// concurrent use.
type Catalog struct {
	lister    Lister
	ttl       time.Duration
	overrides metering.PricingTable
	clock     func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	models  []llm.ModelMetadata
	fetched time.Time
}

// New creates a Catalog.
func New(c Config) *Catalog {
	cat := &Catalog{
		lister:    c.Lister,
		ttl:       c.TTL,
		overrides: c.Overrides,
		clock:     c.Clock,
		logger:    c.Logger,
		entries:   make(map[string]entry),
	}
	if cat.ttl <= 0 {
		cat.ttl = DefaultTTL
	}
	if cat.clock == nil {
		cat.clock = time.Now
	}
	if cat.logger == nil {
		cat.logger = logger.Nop()
	}
	return cat
}

// Models returns the models of modelType, fetching them when the cached list
// is missing or stale. A failed refresh falls back to a stale list if one
// exists.
func (c *Catalog) Models(ctx context.Context, modelType string) ([]llm.ModelMetadata, error) {
	c.mu.Lock()
	e, ok := c.entries[modelType]
	c.mu.Unlock()

	if ok && c.clock().Sub(e.fetched) < c.ttl {
		return e.models, nil
	}

	models, err := c.Refresh(ctx, modelType)
	if err != nil {
		if ok {
			c.logger.Warn("serving stale model list",
				"type", modelType,
				"error", err,
			)
			return e.models, nil
		}
		return nil, err
	}
	return models, nil
}

// Refresh fetches the models of modelType and replaces the cached list.
func (c *Catalog) Refresh(ctx context.Context, modelType string) ([]llm.ModelMetadata, error) {
	if c.lister == nil {
		return nil, errors.New("no model lister configured")
	}

	models, err := c.lister.ListModels(ctx, modelType)
	if err != nil {
		return nil, fmt.Errorf("fetching %q models: %w", modelType, err)
	}
	models = slices.Clone(models)

	c.mu.Lock()
	c.entries[modelType] = entry{models: models, fetched: c.clock()}
	c.mu.Unlock()

	c.logger.Debug("refreshed model list",
		"type", modelType,
		"count", len(models),
	)
	return models, nil
}

// Find returns the model with id among the models of modelType.
func (c *Catalog) Find(ctx context.Context, modelType, id string) (llm.ModelMetadata, bool, error) {
	models, err := c.Models(ctx, modelType)
	if err != nil {
		return llm.ModelMetadata{}, false, err
	}
	for _, m := range models {
		if m.ID == id {
			return m, true, nil
		}
	}
	return llm.ModelMetadata{}, false, nil
}

// Price resolves the token pricing of a text model. Overrides win; a model
// missing from the catalog has an unknown price, not an error.
func (c *Catalog) Price(ctx context.Context, model string) (metering.Price, error) {
	if p, ok := c.overrides.Lookup(model); ok {
		return p, nil
	}

	m, ok, err := c.Find(ctx, llm.ModelTypeText, model)
	if err != nil || !ok {
		return metering.Price{}, err
	}
	return metering.PriceFromModel(m), nil
}

// ImagePrice resolves the per-image price of an image model. nil means
// unknown.
func (c *Catalog) ImagePrice(ctx context.Context, model string) (*float64, error) {
	m, ok, err := c.Find(ctx, llm.ModelTypeImage, model)
	if err != nil || !ok {
		return nil, err
	}
	if v, ok := metering.GenerationPrice(m); ok {
		return &v, nil
	}
	return nil, nil
}
