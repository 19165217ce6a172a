package types

// ParsedContent is the format-independent result of parsing one document.
// Ephemeral: it is chunked immediately and never persisted.
type ParsedContent struct {
	Title      string    `json:"title"`
	Sections   []Section `json:"sections"`
	Tables     []Table   `json:"tables"`
	WordCount  int       `json:"word_count"`
	ImageCount int       `json:"image_count"`
	TableCount int       `json:"table_count"`
}

// Section is a heading-delimited span of narrative text with any images
// found inside it.
type Section struct {
	Heading string      `json:"heading,omitempty"`
	Text    string      `json:"text"`
	Images  []ImageData `json:"images,omitempty"`
}

// Table is an extracted data table. Heading is the nearest preceding
// heading element; Caption is the table's own caption when one exists.
type Table struct {
	Heading string     `json:"heading,omitempty"`
	Caption string     `json:"caption,omitempty"`
	Rows    [][]string `json:"rows"`
}

// ImageData describes an image found during parsing, with whatever textual
// context the document provided around it.
type ImageData struct {
	URL            string   `json:"url"`
	AltText        string   `json:"alt_text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	Context        string   `json:"context,omitempty"`
	SectionHeading string   `json:"section_heading,omitempty"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Crop           string   `json:"crop,omitempty"`
}

// HasText reports whether the image carries any usable descriptive text.
func (i ImageData) HasText() bool {
	return i.AltText != "" || i.Caption != "" || i.Context != ""
}
