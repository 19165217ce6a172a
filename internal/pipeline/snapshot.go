package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldwise/agrokb/internal/types"
)

// Snapshot file names under the state directory. Each is a single line of
// JSON, overwritten per run; their stability across runs is what makes the
// --skip-* flags safe.
const (
	ScrapedDocumentsFile = "scraped_documents.json"
	URLStatusFile        = "url_status.json"
	FailedDocumentsFile  = "failed_documents.json"
	SummaryFile          = "summary.json"
)

// URLStatus is the reachability record for one source URL.
type URLStatus struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FailedDocument is one per-document failure, kept for triage; the
// pipeline continues past it.
type FailedDocument struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Snapshots persists each phase's output under one state directory so a
// later run can re-enter the pipeline with --skip-* flags instead of
// recomputing earlier phases.
type Snapshots struct {
	dir string
}

// NewSnapshots returns a snapshot store rooted at dir. The directory is
// created lazily on first write.
func NewSnapshots(dir string) Snapshots {
	return Snapshots{dir: dir}
}

// Dir returns the state directory.
func (s Snapshots) Dir() string {
	return s.dir
}

// SaveScrapedDocuments writes the scrape phase output. PDF payloads ride
// along base64-encoded inside the JSON.
func (s Snapshots) SaveScrapedDocuments(docs []types.ScrapedDocument) error {
	return s.write(ScrapedDocumentsFile, docs)
}

// LoadScrapedDocuments reads the scrape snapshot for a --skip-scrape run.
func (s Snapshots) LoadScrapedDocuments() ([]types.ScrapedDocument, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ScrapedDocumentsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped snapshot (run without --skip-scrape first): %w", err)
	}
	var docs []types.ScrapedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse scraped snapshot: %w", err)
	}
	return docs, nil
}

// SaveURLStatus writes the per-URL reachability log.
func (s Snapshots) SaveURLStatus(statuses []URLStatus) error {
	return s.write(URLStatusFile, statuses)
}

// SaveFailedDocuments writes the per-document failure log.
func (s Snapshots) SaveFailedDocuments(failures []FailedDocument) error {
	return s.write(FailedDocumentsFile, failures)
}

// SaveSummary writes the run report.
func (s Snapshots) SaveSummary(report *Report) error {
	return s.write(SummaryFile, report)
}

func (s Snapshots) write(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", s.dir, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
