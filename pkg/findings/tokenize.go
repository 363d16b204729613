// Package findings implements the similarity and deduplication logic for the
// finding lifecycle: text normalization, fingerprints, TF-IDF and Jaccard
// matching, and recurring-issue detection. It is pure computation; persistence
// lives in the store.
package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

var (
	uuidRe     = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	longHexRe  = regexp.MustCompile(`\b[0-9a-fA-F]{12,}\b`)
	ipv4Re     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	eventRefRe = regexp.MustCompile(`\(events?\s+\[\d+\](?:\s*,\s*\[\d+\])*[^)]*\)|\[\d+\]`)
	numberRe   = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	punctRe    = regexp.MustCompile(`[^\w<>]+`)
)

// stopWords filters common English words plus domain filler the LLM tends to
// pad findings with.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "with": true,
	"by": true, "from": true, "and": true, "or": true, "but": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "has": true, "have": true, "had": true, "as": true,
	"which": true, "may": true, "can": true, "could": true, "should": true,
	"would": true, "will": true, "not": true, "no": true,

	"indicating": true, "indicates": true, "requires": true, "required": true,
	"immediate": true, "attention": true, "overall": true, "poses": true,
	"observed": true, "detected": true, "multiple": true, "potential": true,
	"possible": true, "suggests": true, "suggesting": true,
}

// Tokenize normalizes a finding's text into a comparable token list:
// lowercase, identifiers and numbers collapsed to placeholders, punctuation
// stripped, stop-words removed. Duplicates are kept; callers that need a set
// use TokenSet.
func Tokenize(text string) []string {
	s := strings.ToLower(text)
	s = uuidRe.ReplaceAllString(s, "<ID>")
	s = longHexRe.ReplaceAllString(s, "<ID>")
	s = ipv4Re.ReplaceAllString(s, "<IP>")
	s = eventRefRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, "<NUM>")
	s = punctRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TokenSet returns the deduplicated token set of a text.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	return set
}

// Fingerprint is the order-independent identity of a finding's text: sorted
// unique tokens, joined, SHA-256, first 32 hex chars.
func Fingerprint(text string) string {
	set := TokenSet(text)
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	sum := sha256.Sum256([]byte(strings.Join(tokens, " ")))
	return hex.EncodeToString(sum[:])[:32]
}
