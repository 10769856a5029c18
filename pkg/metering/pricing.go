package metering

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// Price is a model's token pricing in USD per million tokens.
// A nil side did not resolve.
type Price struct {
	Input  *float64 `json:"input,omitempty"`
	Output *float64 `json:"output,omitempty"`
}

// Known reports whether at least one side resolved.
func (p Price) Known() bool {
	return p.Input != nil || p.Output != nil
}

// PriceFromModel resolves the token pricing of a model.
func PriceFromModel(m llm.ModelMetadata) Price {
	var p Price
	if v, ok := ResolvePrice(m.ModelSpec.Pricing.Input); ok {
		p.Input = &v
	}
	if v, ok := ResolvePrice(m.ModelSpec.Pricing.Output); ok {
		p.Output = &v
	}
	return p
}

// GenerationPrice resolves the per-image price of an image model.
func GenerationPrice(m llm.ModelMetadata) (float64, bool) {
	return ResolvePrice(m.ModelSpec.Pricing.Generation)
}

// ResolvePrice reads a pricing field that is either a bare number or an
// object keyed by currency, returning the USD amount. Numeric strings are
// accepted. Missing, null, negative or otherwise malformed values do not
// resolve.
func ResolvePrice(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	switch raw[0] {
	case '{':
		var byCurrency map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byCurrency); err != nil {
			return 0, false
		}
		if usd, ok := byCurrency["usd"]; ok {
			return scalarPrice(usd)
		}
		for currency, v := range byCurrency {
			if strings.EqualFold(currency, "usd") {
				return scalarPrice(v)
			}
		}
		return 0, false
	default:
		return scalarPrice(raw)
	}
}

func scalarPrice(raw json.RawMessage) (float64, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// PricingTable maps normalized model ids to prices that take precedence over
// catalog metadata.
type PricingTable map[string]Price

// LoadPricing reads a JSON pricing override file:
//
//	{"llama-3.3-70b": {"input": 0.7, "output": 2.8}}
//
// An empty path returns an empty table.
func LoadPricing(path string) (PricingTable, error) {
	table := PricingTable{}
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var overrides map[string]Price
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	for model, price := range overrides {
		table[NormalizeModel(model)] = price
	}
	return table, nil
}

// Lookup returns the override for model, if any.
func (t PricingTable) Lookup(model string) (Price, bool) {
	p, ok := t[NormalizeModel(model)]
	return p, ok
}

// Merge returns a copy of t overlaid with other.
func (t PricingTable) Merge(other PricingTable) PricingTable {
	out := maps.Clone(t)
	if out == nil {
		out = PricingTable{}
	}
	maps.Copy(out, other)
	return out
}

// NormalizeModel lowercases a model id and strips a trailing -YYYY-MM-DD or
// -YYYYMMDD release date.
func NormalizeModel(model string) string {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return normalized
	}

	if idx := strings.LastIndex(normalized, "-"); idx != -1 {
		suffix := normalized[idx+1:]
		if len(suffix) == 8 && isDigits(suffix) {
			normalized = normalized[:idx]
		}
	}

	return stripDateSuffix(normalized)
}

// stripDateSuffix removes a trailing -YYYY-MM-DD date suffix.
func stripDateSuffix(model string) string {
	if len(model) < 12 {
		return model
	}

	suffix := model[len(model)-11:]
	if suffix[0] != '-' {
		return model
	}
	date := suffix[1:]
	if isDigits(date[0:4]) && date[4] == '-' && isDigits(date[5:7]) && date[7] == '-' && isDigits(date[8:10]) {
		return model[:len(model)-11]
	}
	return model
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
