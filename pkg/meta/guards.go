package meta

import (
	"strings"
)

// contradictionPhrases reject resolution evidence whose own wording says the
// issue is not fixed.
var contradictionPhrases = []string{
	"persists",
	"unresolved",
	"still active",
	"still occurring",
	"still present",
	"continues to",
	"continuing",
	"remains unresolved",
	"remains open",
	"not resolved",
	"failed",
	"failure",
	"connection refused",
	"confirms ongoing",
	"ongoing issue",
	"recurring",
}

// errorSeverities are event severities that can never prove a resolution.
var errorSeverities = map[string]bool{
	"error": true, "err": true, "critical": true, "crit": true,
	"alert": true, "emergency": true, "emerg": true,
}

// selfReferenceThreshold is the word-overlap fraction past which a referenced
// event is considered a restatement of the finding itself.
const selfReferenceThreshold = 0.4

// evidenceContradicts reports whether the evidence text contains a phrase
// indicating the issue is still happening.
func evidenceContradicts(evidence string) bool {
	lower := strings.ToLower(evidence)
	for _, phrase := range contradictionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// allErrorSeverity reports whether every referenced event with a known
// severity is an error-class event. Events without severity don't count
// either way; zero classifiable events means the guard does not fire.
func allErrorSeverity(severities []string) bool {
	classified := 0
	for _, sev := range severities {
		if sev == "" {
			continue
		}
		classified++
		if !errorSeverities[strings.ToLower(sev)] {
			return false
		}
	}
	return classified > 0
}

// significantWords are the words of at least 3 chars of a text, lowercased.
// The length floor matches the template-pattern word extraction.
func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;!?()[]{}\"'")
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
}

// overlapFraction is |a ∩ b| / |a|.
func overlapFraction(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return float64(n) / float64(len(a))
}

// selfReferential reports whether an event message and a finding text overlap
// at least 40% in either direction: evidence that merely restates the problem
// proves nothing.
func selfReferential(eventMessage, findingText string) bool {
	ew := significantWords(eventMessage)
	fw := significantWords(findingText)
	return overlapFraction(ew, fw) >= selfReferenceThreshold ||
		overlapFraction(fw, ew) >= selfReferenceThreshold
}

// wordOverlapAtLeast reports whether at least frac of a's significant words
// appear among b's.
func wordOverlapAtLeast(a []string, b map[string]bool, frac float64) bool {
	if len(a) == 0 {
		return false
	}
	n := 0
	for _, w := range a {
		if b[w] {
			n++
		}
	}
	return float64(n)/float64(len(a)) >= frac
}
