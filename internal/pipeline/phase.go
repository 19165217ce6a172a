package pipeline

// Phase is one stage of the ingestion pipeline. Phases run in declaration
// order; the image phases are skipped with --skip-images and the
// validation phase with --skip-validation.
type Phase int

const (
	PhaseValidate Phase = iota
	PhaseScrape
	PhaseUpsertSources
	PhaseParse
	PhaseChunk
	PhaseEmbed
	PhaseUpsertChunks
	PhaseImageExtract
	PhaseImageEmbed
	PhaseImageUpsert
	PhaseComplete
)

// phaseCount is the number of runnable phases, excluding the terminal marker.
const phaseCount = int(PhaseComplete)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "URL validation"
	case PhaseScrape:
		return "Scrape"
	case PhaseUpsertSources:
		return "Source upsert"
	case PhaseParse:
		return "Parse"
	case PhaseChunk:
		return "Chunk"
	case PhaseEmbed:
		return "Embed"
	case PhaseUpsertChunks:
		return "Chunk upsert"
	case PhaseImageExtract:
		return "Image extraction"
	case PhaseImageEmbed:
		return "Image captioning"
	case PhaseImageUpsert:
		return "Image upsert"
	case PhaseComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}
