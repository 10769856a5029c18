package metering

const perMillion = 1_000_000.0

// ComputeCost prices a response in USD:
//
//	inputPrice*inputTokens/1e6 + outputPrice*outputTokens/1e6
//
// ok is false when neither price resolved, so an unknown cost is never
// reported as 0. A side whose price did not resolve contributes nothing.
func ComputeCost(inputTokens, outputTokens int, price Price) (float64, bool) {
	if !price.Known() {
		return 0, false
	}

	var cost float64
	if price.Input != nil {
		cost += *price.Input * float64(inputTokens) / perMillion
	}
	if price.Output != nil {
		cost += *price.Output * float64(outputTokens) / perMillion
	}
	return cost, true
}

// ImageCost prices count generated images at a per-image price.
func ImageCost(count int, price *float64) (float64, bool) {
	if price == nil {
		return 0, false
	}
	return float64(count) * *price, true
}
