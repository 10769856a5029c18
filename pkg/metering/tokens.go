// Package metering holds the pure functions behind message metrics: token
// estimates, price resolution from model metadata, cost, and throughput.
package metering

import (
	"math"
	"time"
	"unicode/utf8"
)

// charsPerToken is the heuristic used when the upstream reports no usage.
const charsPerToken = 4

// EstimateTokens approximates the token count of text as ceil(chars/4),
// counting characters as Unicode code points.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// TokensPerSecond returns tokens/elapsed, or 0 when elapsed is not positive.
func TokensPerSecond(tokens int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
