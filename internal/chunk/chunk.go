// Package chunk splits parsed documents into retrieval-sized, token-bounded
// units. Narrative sections are packed paragraph-by-paragraph toward a
// content-type-specific token target with a sentence-aligned overlap window
// carried across chunk boundaries; tables are emitted whole. Chunk identity
// (a content hash of source, position, and text) is assigned last so the
// agronomy policy filter can drop chunks without leaving index holes.
package chunk

import (
	"regexp"
	"strings"

	"github.com/fieldwise/agrokb/internal/tokens"
	"github.com/fieldwise/agrokb/internal/types"
)

// DefaultOverlapTokens is the approximate size of the sentence-aligned
// overlap window repeated at chunk boundaries.
const DefaultOverlapTokens = 75

// DefaultHardMaxTokens is the ceiling no narrative chunk may exceed,
// regardless of content type. Tables are exempt: a severed table row is
// useless for retrieval.
const DefaultHardMaxTokens = 1024

// DefaultTargets maps an inferred content type to the token budget chunks
// of that type pack toward. Symptom descriptions read best in short, dense
// spans; background material tolerates long ones.
var DefaultTargets = map[string]int{
	types.ChunkTypeSymptom:    400,
	types.ChunkTypeTreatment:  600,
	types.ChunkTypeProduct:    600,
	types.ChunkTypeProcedure:  800,
	types.ChunkTypeBackground: 1000,
}

// paragraphBreak splits section text on blank-line boundaries, tolerating
// stray whitespace on the blank line.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Chunker splits ParsedContent into ChunkData. Construct with New; the
// fields may be tuned before first use but must not change between calls
// for the same document (chunk hashes depend on packing).
type Chunker struct {
	Targets map[string]int
	Overlap int
	HardMax int
}

// New returns a Chunker with the default budgets.
func New() *Chunker {
	return &Chunker{
		Targets: DefaultTargets,
		Overlap: DefaultOverlapTokens,
		HardMax: DefaultHardMaxTokens,
	}
}

// piece is a chunk before identity assignment. Indexes and hashes are
// assigned only after policy filtering so chunkIndex stays dense.
type piece struct {
	content string
	section string
	ctype   string
}

// Chunk splits pc into chunks belonging to sourceID. base carries
// source-level metadata copied onto every chunk; Section and ContentType
// are filled per chunk.
func (c *Chunker) Chunk(pc *types.ParsedContent, sourceID string, base types.ChunkMetadata) []types.ChunkData {
	return c.assemble(c.pieces(pc), sourceID, base)
}

// pieces produces the document's chunks in document order: narrative
// sections first, then tables.
func (c *Chunker) pieces(pc *types.ParsedContent) []piece {
	var out []piece
	for _, sec := range pc.Sections {
		out = append(out, c.sectionPieces(sec)...)
	}
	for _, tbl := range pc.Tables {
		content := FormatTable(tbl)
		if content == "" {
			continue
		}
		out = append(out, piece{content: content, section: tbl.Heading, ctype: types.ChunkTypeTable})
	}
	return out
}

// sectionPieces packs one section's paragraphs into chunks. The section
// heading is prepended to the text, so the first chunk of a section always
// opens with its heading.
func (c *Chunker) sectionPieces(sec types.Section) []piece {
	text := strings.TrimSpace(sec.Text)
	if text == "" {
		return nil
	}
	if heading := strings.TrimSpace(sec.Heading); heading != "" {
		text = heading + "\n\n" + text
	}

	target := c.targetFor(ClassifyContent(sec.Heading, sec.Text))

	// A chunk never closes below the overlap size: anything smaller would be
	// wholly duplicated by its successor's seed.
	minFlush := c.Overlap
	if minFlush <= 0 {
		minFlush = 1
	}

	var out []piece
	var cur strings.Builder
	curTokens := 0
	appended := 0 // parts added since the last flush; the overlap seed does not count

	flush := func(seedNext bool) {
		if appended == 0 {
			// Nothing but the overlap seed: emitting it would duplicate the
			// previous chunk's tail.
			cur.Reset()
			curTokens = 0
			return
		}
		content := strings.TrimSpace(cur.String())
		out = append(out, piece{
			content: content,
			section: sec.Heading,
			ctype:   ClassifyContent(sec.Heading, content),
		})
		cur.Reset()
		curTokens = 0
		appended = 0
		if seedNext && c.Overlap > 0 {
			if seed := tokens.TailSentences(content, c.Overlap); seed != "" {
				cur.WriteString(seed)
				curTokens = tokens.Estimate(seed)
			}
		}
	}

	// The +1 in the hard-ceiling checks covers the paragraph separator the
	// join adds, so TokenCount stays within HardMax after the write.
	add := func(part string, partTokens int) {
		if appended > 0 &&
			((curTokens >= minFlush && curTokens+partTokens > target) || curTokens+partTokens+1 > c.HardMax) {
			flush(true)
		}
		// The overlap seed yields when it would push the chunk past the
		// hard ceiling.
		if appended == 0 && curTokens > 0 && curTokens+partTokens+1 > c.HardMax {
			cur.Reset()
			curTokens = 0
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(part)
		curTokens = tokens.Estimate(cur.String())
		appended++
	}

	for _, para := range splitParagraphs(text) {
		pt := tokens.Estimate(para)
		if pt > c.HardMax {
			for _, part := range c.splitOversized(para, target) {
				add(part, tokens.Estimate(part))
			}
			continue
		}
		add(para, pt)
	}
	flush(false)

	return out
}

// splitOversized splits a paragraph whose estimate exceeds the hard ceiling
// into sentence-packed parts under the section's target. A single sentence
// exceeding the target (unpunctuated dumps, long URLs) falls back to a word
// split.
func (c *Chunker) splitOversized(para string, target int) []string {
	var parts []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		parts = append(parts, strings.Join(cur, " "))
		cur = cur[:0]
		curTokens = 0
	}

	for _, sentence := range tokens.SplitSentences(para) {
		st := tokens.Estimate(sentence)
		if st > target {
			flush()
			parts = append(parts, splitByWords(sentence, target)...)
			continue
		}
		if curTokens > 0 && curTokens+st > target {
			flush()
		}
		cur = append(cur, sentence)
		curTokens += st
	}
	flush()

	return parts
}

// splitByWords is the last-resort split for text with no sentence structure.
func splitByWords(text string, target int) []string {
	var parts []string
	var cur []string
	curTokens := 0

	for _, word := range strings.Fields(text) {
		wt := tokens.Estimate(word)
		if curTokens > 0 && curTokens+wt > target {
			parts = append(parts, strings.Join(cur, " "))
			cur = cur[:0]
			curTokens = 0
		}
		cur = append(cur, word)
		curTokens += wt
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, " "))
	}

	return parts
}

// assemble attaches identity and metadata: dense 0-based indexes in document
// order, token counts, and the content hash that serves as the dedup key.
func (c *Chunker) assemble(pieces []piece, sourceID string, base types.ChunkMetadata) []types.ChunkData {
	chunks := make([]types.ChunkData, 0, len(pieces))
	for i, p := range pieces {
		md := base
		md.Section = p.section
		md.ContentType = p.ctype
		chunks = append(chunks, types.ChunkData{
			Content:     p.content,
			SourceID:    sourceID,
			ChunkIndex:  i,
			TokenCount:  tokens.Estimate(p.content),
			ContentHash: ContentHash(sourceID, i, p.content),
			Metadata:    md,
		})
	}
	return chunks
}

func (c *Chunker) targetFor(ctype string) int {
	if t, ok := c.Targets[ctype]; ok && t > 0 {
		if t > c.HardMax {
			return c.HardMax
		}
		return t
	}
	return DefaultTargets[types.ChunkTypeBackground]
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
