package findings

import (
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// Candidate is a finding proposed by the LLM before persistence.
type Candidate struct {
	Text          string
	Severity      string
	CriterionSlug string
	EventRefs     []int // indexes into the analyzed event list
}

// DefaultDedupThreshold is the similarity cutoff when configuration supplies
// none.
const DefaultDedupThreshold = 0.6

// maxKeyEvents caps how many event ids link to one finding.
const maxKeyEvents = 20

// keyEventOverlap is the token-overlap fraction required to link an event.
const keyEventOverlap = 0.3

// criterionCompatible: an empty slug on either side matches any criterion.
func criterionCompatible(a, b string) bool {
	return a == "" || b == "" || a == b
}

// EscalateSeverity returns the higher of the two severities. Downgrades never
// happen automatically.
func EscalateSeverity(current, candidate string) string {
	if models.SeverityRank(candidate) > models.SeverityRank(current) {
		return candidate
	}
	return current
}

// DedupBatch collapses near-duplicates within one LLM response. Only pairs on
// the same criterion are compared; the higher-severity text survives.
func DedupBatch(candidates []Candidate, threshold float64) []Candidate {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	sets := make([]map[string]bool, len(candidates))
	for i, c := range candidates {
		sets[i] = TokenSet(c.Text)
	}

	dropped := make([]bool, len(candidates))
	for i := range candidates {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if dropped[j] || candidates[i].CriterionSlug != candidates[j].CriterionSlug {
				continue
			}
			if Jaccard(sets[i], sets[j]) < threshold {
				continue
			}
			if models.SeverityRank(candidates[j].Severity) > models.SeverityRank(candidates[i].Severity) {
				candidates[i] = candidates[j]
				sets[i] = sets[j]
			}
			dropped[j] = true
		}
	}

	out := candidates[:0]
	for i, c := range candidates {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out
}

// Matcher deduplicates candidates against the system's open and acknowledged
// findings. The TF-IDF model is built once per meta-analysis call.
type Matcher struct {
	existing  []models.Finding
	tokens    [][]string
	sets      []map[string]bool
	byPrint   map[string]int
	model     *tfidfModel
	threshold float64
}

// NewMatcher indexes the existing findings for matching.
func NewMatcher(existing []models.Finding, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	m := &Matcher{
		existing:  existing,
		tokens:    make([][]string, len(existing)),
		sets:      make([]map[string]bool, len(existing)),
		byPrint:   make(map[string]int, len(existing)),
		threshold: threshold,
	}
	for i, f := range existing {
		m.tokens[i] = Tokenize(f.Text)
		set := make(map[string]bool, len(m.tokens[i]))
		for _, t := range m.tokens[i] {
			set[t] = true
		}
		m.sets[i] = set
		fp := f.Fingerprint
		if fp == "" {
			fp = Fingerprint(f.Text)
		}
		if _, dup := m.byPrint[fp]; !dup {
			m.byPrint[fp] = i
		}
	}
	if len(existing) >= minCorpusSize {
		m.model = newTFIDF(m.tokens)
	}
	return m
}

// Match finds the existing finding a candidate duplicates, or nil. Order:
// exact fingerprint, TF-IDF cosine (corpus permitting), Jaccard.
func (m *Matcher) Match(c Candidate) *models.Finding {
	if len(m.existing) == 0 {
		return nil
	}
	fp := Fingerprint(c.Text)
	if i, ok := m.byPrint[fp]; ok && criterionCompatible(m.existing[i].CriterionSlug, c.CriterionSlug) {
		return &m.existing[i]
	}

	tokens := Tokenize(c.Text)
	if m.model != nil {
		qv := m.model.vector(tokens)
		best, bestSim := -1, 0.0
		for i := range m.existing {
			if !criterionCompatible(m.existing[i].CriterionSlug, c.CriterionSlug) {
				continue
			}
			if sim := cosine(qv, m.model.docs[i]); sim > bestSim {
				best, bestSim = i, sim
			}
		}
		if best >= 0 && bestSim >= m.threshold {
			return &m.existing[best]
		}
	}

	qset := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		qset[t] = true
	}
	for i := range m.existing {
		if !criterionCompatible(m.existing[i].CriterionSlug, c.CriterionSlug) {
			continue
		}
		if Jaccard(qset, m.sets[i]) >= m.threshold {
			return &m.existing[i]
		}
	}
	return nil
}

// MatchRecurring checks a surviving new candidate against recently resolved
// findings. A match never reopens the resolved row; the caller inserts a new
// finding with RecurringText instead.
func MatchRecurring(c Candidate, resolved []models.Finding, threshold float64) *models.Finding {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	fp := Fingerprint(c.Text)
	qset := TokenSet(c.Text)
	for i := range resolved {
		f := &resolved[i]
		if !criterionCompatible(f.CriterionSlug, c.CriterionSlug) {
			continue
		}
		rfp := f.Fingerprint
		if rfp == "" {
			rfp = Fingerprint(f.Text)
		}
		if rfp == fp {
			return f
		}
		if Jaccard(qset, TokenSet(f.Text)) >= threshold {
			return f
		}
	}
	return nil
}

// RecurringText marks a finding that repeats a previously resolved issue.
func RecurringText(text string, resolvedAt time.Time) string {
	return "Recurring: " + text + " (previously resolved " + resolvedAt.UTC().Format("2006-01-02 15:04:05") + ")"
}

// LinkKeyEvents picks window events whose messages share enough words with the
// finding text. Overlap is measured against the finding's token set.
func LinkKeyEvents(text string, events []models.Event) []string {
	fset := TokenSet(text)
	if len(fset) == 0 {
		return nil
	}
	var ids []string
	for i := range events {
		eset := TokenSet(events[i].Message)
		inter := 0
		for t := range fset {
			if eset[t] {
				inter++
			}
		}
		if float64(inter)/float64(len(fset)) >= keyEventOverlap {
			ids = append(ids, events[i].ID)
			if len(ids) >= maxKeyEvents {
				break
			}
		}
	}
	return ids
}
