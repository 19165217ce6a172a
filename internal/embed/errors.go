package embed

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Error is the general embedding failure type.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("embed: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// TokenCeilingError is the terminal error of batch bisection: a batch of
// one still exceeded the provider's context window, so no amount of
// splitting can embed this text. Ref identifies the offending item (chunk
// content hash or image URL).
type TokenCeilingError struct {
	Ref        string
	TokenCount int
	Cause      error
}

func (e *TokenCeilingError) Error() string {
	return fmt.Sprintf("embed: %s (%d tokens estimated) exceeds the provider context window even in a batch of one",
		e.Ref, e.TokenCount)
}

func (e *TokenCeilingError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether err is a provider rate-limit or quota
// response worth retrying with backoff.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusServiceUnavailable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

// IsContextLength reports whether err is the provider rejecting a request
// for being too large. Local estimates are conservative but the provider's
// tokenizer has the final word, so this can fire despite client-side
// packing.
func IsContextLength(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "exceeds the maximum") ||
		strings.Contains(msg, "payload size exceeds")
}
