// Package sources loads the JSON files naming what to ingest: grouped
// institutional source lists and agronomy problem files. Each format is
// checked against an embedded JSON Schema before unmarshalling, and the
// result is normalized into Descriptors the pipeline consumes.
package sources

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fieldwise/agrokb/internal/schemas"
)

// Source types recorded on each source row, by provenance of the
// descriptor: curated institutional list vs. agronomy problem file.
const (
	TypeExtensionBulletin = "extension_bulletin"
	TypeAgronomyReference = "agronomy_reference"
)

// Authority levels an agronomy problem assigns its candidate sources.
const (
	AuthorityPrimary    = "primary"
	AuthoritySupporting = "supporting"
)

const defaultPriority = "medium"

//go:embed source_list.schema.json
var sourceListSchema []byte

//go:embed agronomy_problem.schema.json
var agronomyProblemSchema []byte

// Descriptor is one normalized ingestion target.
type Descriptor struct {
	URL         string   `json:"url" validate:"required,url"`
	Title       string   `json:"title"`
	SourceType  string   `json:"source_type" validate:"required"`
	Institution string   `json:"institution"`
	Crops       []string `json:"crops,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Region      string   `json:"region,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	UseBrowser  bool     `json:"use_browser,omitempty"`
}

// Validate validates the Descriptor using the validator.
func (d *Descriptor) Validate() error {
	validate := validator.New()
	return validate.Struct(d)
}

// sourceGroup is one named entry in a source-list file.
type sourceGroup struct {
	Institution string        `json:"institution"`
	Priority    string        `json:"priority"`
	Region      string        `json:"region"`
	SourceType  string        `json:"sourceType"`
	URLs        []sourceEntry `json:"urls"`
}

type sourceEntry struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Crops      []string `json:"crops"`
	Topics     []string `json:"topics"`
	UseBrowser bool     `json:"useBrowser"`
}

// problemFile is an agronomy problem statement plus candidate sources.
type problemFile struct {
	Problem problemStatement `json:"problem"`
	Sources []problemSource  `json:"sources"`
}

type problemStatement struct {
	Crop   string `json:"crop"`
	Region string `json:"region"`
	Domain string `json:"domain"`
}

type problemSource struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Authority   string   `json:"authority"`
	Institution string   `json:"institution"`
	Crops       []string `json:"crops"`
	Topics      []string `json:"topics"`
	UseBrowser  bool     `json:"useBrowser"`
}

// LoadSourceList reads a grouped source-list file and flattens it into
// descriptors. Group keys are walked in sorted order so two runs over the
// same file ingest in the same order.
func LoadSourceList(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source list: %w", err)
	}
	if err := schemas.ValidateBytes(sourceListSchema, data); err != nil {
		return nil, fmt.Errorf("invalid source list %s: %w", path, err)
	}

	var groups map[string]sourceGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse source list %s: %w", path, err)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Descriptor
	for _, key := range keys {
		group := groups[key]
		sourceType := group.SourceType
		if sourceType == "" {
			sourceType = TypeExtensionBulletin
		}
		priority := group.Priority
		if priority == "" {
			priority = defaultPriority
		}
		for _, entry := range group.URLs {
			d := Descriptor{
				URL:         entry.URL,
				Title:       entry.Title,
				SourceType:  sourceType,
				Institution: group.Institution,
				Crops:       entry.Crops,
				Topics:      entry.Topics,
				Region:      group.Region,
				Priority:    priority,
				UseBrowser:  entry.UseBrowser,
			}
			if err := d.Validate(); err != nil {
				return nil, fmt.Errorf("invalid source %q in group %q: %w", entry.URL, key, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// LoadAgronomyProblem reads an agronomy problem file and normalizes its
// candidate sources into descriptors. The problem's crop and domain are
// folded into each source's crops and topics, its region propagates to
// every descriptor, and authority becomes the descriptor priority.
func LoadAgronomyProblem(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agronomy problem: %w", err)
	}
	if err := schemas.ValidateBytes(agronomyProblemSchema, data); err != nil {
		return nil, fmt.Errorf("invalid agronomy problem %s: %w", path, err)
	}

	var pf problemFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse agronomy problem %s: %w", path, err)
	}

	var out []Descriptor
	for _, src := range pf.Sources {
		institution := src.Institution
		if institution == "" {
			institution = hostOf(src.URL)
		}
		d := Descriptor{
			URL:         src.URL,
			Title:       src.Title,
			SourceType:  TypeAgronomyReference,
			Institution: institution,
			Crops:       withValue(src.Crops, pf.Problem.Crop),
			Topics:      withValue(src.Topics, pf.Problem.Domain),
			Region:      pf.Problem.Region,
			Priority:    src.Authority,
			UseBrowser:  src.UseBrowser,
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", src.URL, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// withValue returns values with v included, never duplicating an entry
// that is already present (case-insensitively).
func withValue(values []string, v string) []string {
	if v == "" {
		return values
	}
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return values
		}
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, values...)
	return append(out, v)
}

// hostOf is the institution fallback when a source names none: the URL's
// host without a leading www.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
