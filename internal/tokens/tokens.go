// Package tokens provides token estimation and sentence splitting used by
// the chunker and the embedding batcher. Estimates are intentionally
// conservative: budgets derived from them must stay below provider ceilings
// even when the provider's own tokenizer counts higher.
package tokens

import (
	"strings"
	"unicode"
)

// charsPerToken is the approximation used across the pipeline (~4 characters
// per token for English prose). Provider tokenizers drift from this, which is
// why request ceilings are configured below the documented hard limits.
const charsPerToken = 4

// Estimate returns an approximate token count for text.
// Empty or whitespace-only text estimates to zero.
func Estimate(text string) int {
	n := len(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateAll returns the summed estimate for a set of texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// sentenceTerminators end a sentence when followed by whitespace or EOF.
var sentenceTerminators = map[rune]bool{
	'.': true,
	'!': true,
	'?': true,
}

// SplitSentences splits text into sentences on terminal punctuation followed
// by whitespace. Abbreviation handling is deliberately minimal: a terminator
// followed by a lowercase letter does not split, which covers the common
// "e.g. something" and "2.5 l/ha" cases well enough for overlap windows.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !sentenceTerminators[runes[i]] {
			continue
		}

		// Look past any closing quotes or parens.
		end := i + 1
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')') {
			end++
		}

		// A terminator mid-number ("2.5") or mid-abbreviation ("e.g.") does
		// not end a sentence: require whitespace next, then a non-lowercase
		// rune (or EOF).
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		next := end
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		if next < len(runes) && unicode.IsLower(runes[next]) {
			continue
		}

		sentence := strings.TrimSpace(string(runes[start:end]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = next
		i = next - 1
	}

	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}

	return sentences
}

// TailSentences returns the trailing sentences of text whose combined
// estimate is at least want tokens (sentence-aligned, never mid-sentence).
// Returns an empty string when text has no sentences.
func TailSentences(text string, want int) string {
	if want <= 0 {
		return ""
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	got := 0
	start := len(sentences)
	for start > 0 && got < want {
		start--
		got += Estimate(sentences[start])
	}

	return strings.Join(sentences[start:], " ")
}
