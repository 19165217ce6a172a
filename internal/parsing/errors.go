package parsing

import "fmt"

// Error represents a failure extracting content from one document.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// InvalidPDFError reports a payload that was routed to the PDF path but
// does not carry the %PDF- magic header.
type InvalidPDFError struct {
	URL  string
	Head string
}

func (e *InvalidPDFError) Error() string {
	return fmt.Sprintf("invalid PDF at %s: payload does not start with %%PDF- (got %q)", e.URL, e.Head)
}

// EmptyContentError reports a document that parsed without error but
// yielded no sections or tables.
type EmptyContentError struct {
	URL string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("no content extracted from %s", e.URL)
}
