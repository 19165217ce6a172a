package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrokb/internal/types"
)

func TestContainsProductRecommendation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"rate with per-area unit", "Apply 2.5 l/ha at first sign of flowering.", true},
		{"imperial rate", "Use 32 fl oz per acre in at least 15 gallons of water.", true},
		{"formulation code", "Tebuzol 430 SC gave the best control in strip trials.", true},
		{"trademark with dose", "Cropguard® at 20 ml per plant knocked down aphids.", true},
		{"plain narrative", "Nitrogen deficiency causes uniform yellowing of older leaves.", false},
		{"yield is not dosage", "Yield goals above 200 bushels per acre need split nitrogen.", false},
		{"bare volume without brand", "Water transplants with 2 l of starter solution weekly.", false},
		{"lowercase is not a formulation code", "Plots averaged 30 sc higher emergence under mulch.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ContainsProductRecommendation(tc.content), tc.content)
		})
	}
}

func TestAgronomyChunker_SuppressesNarrativeDosing(t *testing.T) {
	pc := &types.ParsedContent{
		Sections: []types.Section{
			{
				Heading: "Symptoms",
				Text:    "Leaf spots enlarge into tan lesions with dark borders. Severe infections kill entire leaves.",
			},
			{
				Heading: "Treatment",
				Text:    "Apply 2.5 l/ha of Tebuzol 430 SC at first flowering and repeat after fourteen days.",
			},
		},
		Tables: []types.Table{{
			Heading: "Nitrogen Rate Guidelines",
			Rows: [][]string{
				{"Yield goal", "N rate"},
				{"150 bu/acre", "120 lb/acre"},
				{"200 bu/acre", "160 lb/acre"},
			},
		}},
	}

	a := NewAgronomy()
	chunks, dropped := a.Chunk(pc, "src-9", types.ChunkMetadata{Institution: "extension.umn.edu"})

	assert.Equal(t, 1, dropped, "the narrative dosing chunk must be suppressed")
	require.Len(t, chunks, 2)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "Symptoms"))
	assert.Equal(t, types.ChunkTypeSymptom, chunks[0].Metadata.ContentType)

	assert.Equal(t, types.ChunkTypeTable, chunks[1].Metadata.ContentType)
	assert.Contains(t, chunks[1].Content, "120 lb/acre",
		"structured rate tables are reference data and must survive")

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex, "surviving indexes must stay dense")
		assert.Equal(t, ContentHash("src-9", i, ch.Content), ch.ContentHash,
			"hashes must be computed from post-filter indexes")
		assert.Equal(t, "extension.umn.edu", ch.Metadata.Institution)
		assert.NotContains(t, ch.Content, "Tebuzol")
	}
}

func TestAgronomyChunker_CleanDocumentDropsNothing(t *testing.T) {
	a := NewAgronomy()
	chunks, dropped := a.Chunk(nitrogenDoc(), "src-10", types.ChunkMetadata{})

	assert.Zero(t, dropped)
	assert.NotEmpty(t, chunks)
}
