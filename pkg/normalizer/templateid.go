package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Parameterization rules: messages differing only in identifiers collapse to
// one template. UUIDs before hex before numbers, so a UUID never decays into
// number fragments.
var (
	tmplUUIDRe = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	tmplIPRe   = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	tmplHexRe  = regexp.MustCompile(`\b(?:0x)?[0-9a-fA-F]{8,}\b`)
	tmplNumRe  = regexp.MustCompile(`\b\d+\b`)
)

// ParameterizeMessage collapses volatile identifiers in a message to
// placeholders.
func ParameterizeMessage(message string) string {
	s := tmplUUIDRe.ReplaceAllString(message, "<ID>")
	s = tmplIPRe.ReplaceAllString(s, "<IP>")
	s = tmplHexRe.ReplaceAllString(s, "<H>")
	s = tmplNumRe.ReplaceAllString(s, "<N>")
	return s
}

// TemplateID derives the grouping id for a message: hash of its
// parameterized form. Events sharing a TemplateID are scored once via a
// representative.
func TemplateID(message string) string {
	sum := sha256.Sum256([]byte(ParameterizeMessage(message)))
	return hex.EncodeToString(sum[:])[:32]
}
