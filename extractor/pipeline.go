package extractor

import "math"

// FilterOptions carries optional CSS include/exclude scoping applied before
// the main Extract algorithm runs.
type FilterOptions struct {
	IncludeTags []string
	ExcludeTags []string
}

// ExtractFiltered applies FilterTags to rawHTML before running Extract,
// letting a caller scope extraction to a known content region or exclude a
// known-noisy one ahead of the generic heuristics.
func ExtractFiltered(rawHTML, sourceURL string, filter FilterOptions) Extraction {
	if len(filter.IncludeTags) > 0 || len(filter.ExcludeTags) > 0 {
		rawHTML = FilterTags(rawHTML, filter.IncludeTags, filter.ExcludeTags)
	}
	return Extract(rawHTML, sourceURL)
}

// TokenSavings reports the estimated token-count reduction between raw HTML
// and its cleaned markdown/text rendering, as a diagnostic.
type TokenSavings struct {
	OriginalEstimate int
	CleanedEstimate  int
	SavingsPercent   float64
}

// EstimateSavings compares token estimates for raw HTML against cleaned
// output (markdown or text).
func EstimateSavings(rawHTML, cleaned string) TokenSavings {
	original := EstimateTokens(rawHTML)
	cleanedEst := EstimateTokens(cleaned)

	savings := 0.0
	if original > 0 {
		savings = float64(original-cleanedEst) / float64(original) * 100
		savings = math.Round(savings*100) / 100
	}

	return TokenSavings{
		OriginalEstimate: original,
		CleanedEstimate:  cleanedEst,
		SavingsPercent:   savings,
	}
}
