package meta

import (
	"sort"

	"github.com/loglens/loglens/pkg/models"
	"github.com/loglens/loglens/pkg/normalizer"
)

// line is one 1-indexed entry shown to the meta model. Each line represents a
// template group; EventID is the representative used for evidence linking.
type line struct {
	Index       int
	EventID     string
	Message     string
	Severity    string
	Host        string
	Program     string
	Occurrences int
	MaxScore    float64
}

// maxContextLines is the point past which zero-score lines are dropped.
const maxContextLines = 5

// buildLines groups events by template id (falling back to event id), keeping
// a representative and an occurrence count per group, ordered by first
// appearance.
func buildLines(events []models.Event, scores map[string]map[int]float64) []line {
	index := make(map[string]int)
	var lines []line
	for _, ev := range events {
		key := ev.TemplateID
		if key == "" {
			key = normalizer.TemplateID(ev.Message)
		}
		if i, ok := index[key]; ok {
			lines[i].Occurrences++
			if s := maxScore(scores[ev.ID]); s > lines[i].MaxScore {
				lines[i].MaxScore = s
			}
			continue
		}
		index[key] = len(lines)
		lines = append(lines, line{
			EventID:     ev.ID,
			Message:     ev.Message,
			Severity:    ev.Severity,
			Host:        ev.Host,
			Program:     ev.Program,
			Occurrences: 1,
			MaxScore:    maxScore(scores[ev.ID]),
		})
	}
	reindex(lines)
	return lines
}

// compactLines drops zero-score lines when the list is long, as long as at
// least one non-zero line survives. Indices are remapped.
func compactLines(lines []line) []line {
	if len(lines) <= maxContextLines {
		return lines
	}
	nonZero := 0
	for _, l := range lines {
		if l.MaxScore > 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		return lines
	}
	kept := lines[:0]
	for _, l := range lines {
		if l.MaxScore > 0 {
			kept = append(kept, l)
		}
	}
	reindex(kept)
	return kept
}

// prioritize stable-sorts lines descending by max score and remaps indices.
func prioritize(lines []line) {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].MaxScore > lines[j].MaxScore })
	reindex(lines)
}

func reindex(lines []line) {
	for i := range lines {
		lines[i].Index = i + 1
	}
}

func maxScore(byCriterion map[int]float64) float64 {
	var m float64
	for _, s := range byCriterion {
		if s > m {
			m = s
		}
	}
	return m
}
