package sources

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrokb/internal/schemas"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validSourceList = `{
	"purdue_corn": {
		"institution": "Purdue Extension",
		"priority": "high",
		"region": "midwest",
		"urls": [
			{
				"url": "https://extension.purdue.example/corn/nitrogen",
				"title": "Nitrogen Management in Corn",
				"crops": ["corn"],
				"topics": ["nutrient_deficiency"],
				"expectedChunks": 14
			},
			{
				"url": "https://extension.purdue.example/corn/diseases",
				"title": "Corn Disease Guide",
				"crops": ["corn"],
				"topics": ["disease"],
				"useBrowser": true
			}
		]
	},
	"iowa_soybean": {
		"institution": "Iowa State Extension",
		"urls": [
			{
				"url": "https://extension.iastate.example/soybean/scn",
				"title": "Soybean Cyst Nematode",
				"crops": ["soybean"],
				"topics": ["pest"]
			}
		]
	}
}`

func TestLoadSourceList(t *testing.T) {
	path := writeFile(t, "sources.json", validSourceList)

	descriptors, err := LoadSourceList(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	// Groups are walked in sorted key order: iowa_soybean before purdue_corn.
	assert.Equal(t, "https://extension.iastate.example/soybean/scn", descriptors[0].URL)
	assert.Equal(t, "Iowa State Extension", descriptors[0].Institution)
	assert.Equal(t, "medium", descriptors[0].Priority, "missing priority defaults")
	assert.Equal(t, TypeExtensionBulletin, descriptors[0].SourceType)

	nitrogen := descriptors[1]
	assert.Equal(t, "Nitrogen Management in Corn", nitrogen.Title)
	assert.Equal(t, "Purdue Extension", nitrogen.Institution)
	assert.Equal(t, "high", nitrogen.Priority)
	assert.Equal(t, "midwest", nitrogen.Region)
	assert.Equal(t, []string{"corn"}, nitrogen.Crops)
	assert.Equal(t, []string{"nutrient_deficiency"}, nitrogen.Topics)
	assert.False(t, nitrogen.UseBrowser)

	assert.True(t, descriptors[2].UseBrowser, "per-URL useBrowser carries through")
}

func TestLoadSourceList_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing institution",
			content: `{"grp": {"urls": [{"url": "https://a.example/x"}]}}`,
		},
		{
			name:    "empty urls",
			content: `{"grp": {"institution": "A", "urls": []}}`,
		},
		{
			name:    "bad priority",
			content: `{"grp": {"institution": "A", "priority": "urgent", "urls": [{"url": "https://a.example/x"}]}}`,
		},
		{
			name:    "url wrong type",
			content: `{"grp": {"institution": "A", "urls": [{"url": 42}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "sources.json", tt.content)

			_, err := LoadSourceList(path)
			require.Error(t, err)

			var validationErr *schemas.ValidationError
			assert.True(t, errors.As(err, &validationErr), "expected schema validation error, got %v", err)
		})
	}
}

func TestLoadSourceList_MissingFile(t *testing.T) {
	_, err := LoadSourceList(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read source list")
}

func TestLoadSourceList_MalformedJSON(t *testing.T) {
	path := writeFile(t, "sources.json", "{ not json")

	_, err := LoadSourceList(path)
	require.Error(t, err)
}

const validProblem = `{
	"problem": {
		"crop": "corn",
		"region": "eastern cornbelt",
		"domain": "nutrient_deficiency"
	},
	"sources": [
		{
			"url": "https://www.extension.osu.example/corn-nitrogen",
			"title": "Corn Nitrogen Deficiency",
			"authority": "primary",
			"crops": ["corn"],
			"topics": ["nitrogen"]
		},
		{
			"url": "https://blog.agranalytics.example/leaf-yellowing",
			"title": "Why Corn Leaves Yellow",
			"authority": "supporting",
			"institution": "Agranalytics",
			"useBrowser": true
		}
	]
}`

func TestLoadAgronomyProblem(t *testing.T) {
	path := writeFile(t, "problem.json", validProblem)

	descriptors, err := LoadAgronomyProblem(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	primary := descriptors[0]
	assert.Equal(t, TypeAgronomyReference, primary.SourceType)
	assert.Equal(t, AuthorityPrimary, primary.Priority, "authority becomes priority")
	assert.Equal(t, "eastern cornbelt", primary.Region)
	assert.Equal(t, []string{"corn"}, primary.Crops, "problem crop already present, no duplicate")
	assert.Equal(t, []string{"nitrogen", "nutrient_deficiency"}, primary.Topics, "problem domain folded in")
	assert.Equal(t, "extension.osu.example", primary.Institution, "host fallback strips www")

	supporting := descriptors[1]
	assert.Equal(t, AuthoritySupporting, supporting.Priority)
	assert.Equal(t, "Agranalytics", supporting.Institution, "explicit institution wins")
	assert.Equal(t, []string{"corn"}, supporting.Crops, "problem crop folded into empty crops")
	assert.True(t, supporting.UseBrowser)
}

func TestLoadAgronomyProblem_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing problem",
			content: `{"sources": [{"url": "https://a.example/x", "authority": "primary"}]}`,
		},
		{
			name: "bad authority",
			content: `{"problem": {"crop": "corn", "region": "midwest", "domain": "pest"},
				"sources": [{"url": "https://a.example/x", "authority": "definitive"}]}`,
		},
		{
			name: "no sources",
			content: `{"problem": {"crop": "corn", "region": "midwest", "domain": "pest"},
				"sources": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "problem.json", tt.content)

			_, err := LoadAgronomyProblem(path)
			require.Error(t, err)

			var validationErr *schemas.ValidationError
			assert.True(t, errors.As(err, &validationErr), "expected schema validation error, got %v", err)
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	valid := Descriptor{URL: "https://extension.example.edu/corn", SourceType: TypeExtensionBulletin}
	assert.NoError(t, valid.Validate())

	missing := Descriptor{SourceType: TypeExtensionBulletin}
	assert.Error(t, missing.Validate(), "URL is required")

	notAURL := Descriptor{URL: "corn deficiency guide", SourceType: TypeExtensionBulletin}
	assert.Error(t, notAURL.Validate())
}

func TestWithValue(t *testing.T) {
	assert.Equal(t, []string{"corn"}, withValue(nil, "corn"))
	assert.Equal(t, []string{"corn"}, withValue([]string{"corn"}, "corn"))
	assert.Equal(t, []string{"Corn"}, withValue([]string{"Corn"}, "corn"), "case-insensitive dedup")
	assert.Equal(t, []string{"soybean", "corn"}, withValue([]string{"soybean"}, "corn"))
	assert.Nil(t, withValue(nil, ""))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "extension.umn.example", hostOf("https://www.extension.umn.example/crops"))
	assert.Equal(t, "extension.umn.example", hostOf("https://extension.umn.example/crops"))
	assert.Equal(t, "", hostOf("://bad"))
}
