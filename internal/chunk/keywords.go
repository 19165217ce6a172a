package chunk

import (
	"regexp"

	"github.com/fieldwise/agrokb/internal/types"
)

// Pattern tables driving content-type classification, v1. Word-boundary
// anchored so short keywords do not fire inside longer words ("rate" in
// "moderate"). Tuning these tables changes chunk typing and packing targets
// but never chunk identity.
var (
	symptomPattern = regexp.MustCompile(`(?i)\b(symptoms?|diseases?|pests?|deficienc(?:y|ies)|lesions?|chlorosis|chlorotic|necro(?:sis|tic)|wilt(?:ing)?|blights?|rots?|spots?|stunt(?:ed|ing)?|yellowing|mottl(?:ed|ing)|larvae?|infestations?|infections?|damage)\b`)

	treatmentPattern = regexp.MustCompile(`(?i)\b(treatments?|control(?:s|ling)?|management|fungicides?|herbicides?|insecticides?|spray(?:s|ing|ed)?|appl(?:y|ied|ication|ications)|prevent(?:ion|ing|ative)?|suppress(?:ion|ing)?|resistan(?:t|ce))\b`)

	productPattern = regexp.MustCompile(`(?i)\b(rates?|formulations?|brands?|labels?|labeled|active ingredients?|trade names?|products?|registered)\b`)

	procedurePattern = regexp.MustCompile(`(?i)\b(steps?|procedures?|instructions?|how to|calibrat(?:e|ion|ing)|scout(?:ing)?|sampling|soil tests?|testing|plant(?:ing)|timing|methods?)\b`)
)

// classificationOrder fixes the precedence when several tables match a
// heading, and the tie-break when body scores are equal.
var classificationOrder = []struct {
	contentType string
	pattern     *regexp.Regexp
}{
	{types.ChunkTypeSymptom, symptomPattern},
	{types.ChunkTypeTreatment, treatmentPattern},
	{types.ChunkTypeProduct, productPattern},
	{types.ChunkTypeProcedure, procedurePattern},
}

// ClassifyContent infers a chunk's content type from its heading and body.
// A heading match is authoritative (headings name what follows); otherwise
// the body is scored by pattern-match count. Text matching nothing is
// background.
func ClassifyContent(heading, body string) string {
	if heading != "" {
		for _, entry := range classificationOrder {
			if entry.pattern.MatchString(heading) {
				return entry.contentType
			}
		}
	}

	best := types.ChunkTypeBackground
	bestScore := 0
	for _, entry := range classificationOrder {
		if score := len(entry.pattern.FindAllString(body, -1)); score > bestScore {
			best = entry.contentType
			bestScore = score
		}
	}
	return best
}
