package chunk

import (
	"regexp"

	"github.com/fieldwise/agrokb/internal/types"
)

// Product-recommendation signal patterns, v1. A narrative chunk matching any
// of these is kept out of the general knowledge index: branded dosing advice
// is served from the verified product catalog, never from scraped text.
var (
	// rateUnitPattern matches application-rate numerics bound to a per-area
	// or per-volume unit: "2.5 l/ha", "32 fl oz per acre".
	rateUnitPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:fl\s?oz|oz|ml|l|liters?|litres?|g|kg|lbs?|pts?|qts?|gal(?:lons?)?)\s*(?:/|per\s)\s*(?:ha\b|hectare|acre|100\s?l\b|1000\s?sq\s?ft)`)

	// formulationCodePattern matches pesticide formulation codes ("480 EC",
	// "75 WP"), which only occur in branded product references.
	formulationCodePattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:EC|SC|WP|WG|SL|EW|OD|CS|GR|DF)\b`)

	// trademarkPattern and dosePattern together catch "BrandName® at 20 ml"
	// phrasing that carries no per-area unit.
	trademarkPattern = regexp.MustCompile(`[\p{L}\d][®™]`)
	dosePattern      = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:ml|l|g|kg|oz|fl\s?oz|pts?|qts?)\b`)
)

// ContainsProductRecommendation reports whether content carries an explicit
// product-recommendation signal.
func ContainsProductRecommendation(content string) bool {
	if rateUnitPattern.MatchString(content) {
		return true
	}
	if formulationCodePattern.MatchString(content) {
		return true
	}
	return trademarkPattern.MatchString(content) && dosePattern.MatchString(content)
}

// AgronomyChunker wraps Chunker with the knowledge-index policy boundary:
// narrative chunks carrying product-recommendation signals are dropped
// before identity assignment, so surviving chunk indexes stay dense. Table
// chunks are exempt — structured rate tables (yield-goal nitrogen charts)
// are reference data, and the leak vector this policy closes is narrative
// dosing guidance.
type AgronomyChunker struct {
	*Chunker
}

// NewAgronomy returns an AgronomyChunker with the default budgets.
func NewAgronomy() *AgronomyChunker {
	return &AgronomyChunker{Chunker: New()}
}

// Chunk splits pc and suppresses product-recommendation chunks, returning
// the surviving chunks and the suppressed count for the run report.
func (a *AgronomyChunker) Chunk(pc *types.ParsedContent, sourceID string, base types.ChunkMetadata) ([]types.ChunkData, int) {
	all := a.pieces(pc)
	kept := make([]piece, 0, len(all))
	dropped := 0
	for _, p := range all {
		if p.ctype != types.ChunkTypeTable && ContainsProductRecommendation(p.content) {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return a.assemble(kept, sourceID, base), dropped
}
