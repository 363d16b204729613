package normal

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/loglens/loglens/pkg/models"
)

type compiledTemplate struct {
	tmpl    models.NormalBehaviorTemplate
	message *regexp.Regexp
	host    *regexp.Regexp
	program *regexp.Regexp
}

// Matcher holds the enabled templates with their regexes compiled once.
// Templates with invalid patterns are logged and skipped.
type Matcher struct {
	templates []compiledTemplate
}

// NewMatcher compiles the given templates. All matching is case-insensitive.
func NewMatcher(templates []models.NormalBehaviorTemplate) *Matcher {
	m := &Matcher{}
	for _, t := range templates {
		if !t.Enabled || t.Pattern == "" {
			continue
		}
		msg, err := regexp.Compile(`(?i)` + ConvertLegacyPattern(t.Pattern))
		if err != nil {
			slog.Warn("Invalid template pattern, skipping", "template_id", t.ID, "error", err)
			continue
		}
		ct := compiledTemplate{tmpl: t, message: msg}
		if t.HostPattern != "" {
			if ct.host, err = regexp.Compile(`(?i)` + t.HostPattern); err != nil {
				slog.Warn("Invalid template host pattern, ignoring", "template_id", t.ID, "error", err)
				ct.host = nil
			}
		}
		if t.ProgramPattern != "" {
			if ct.program, err = regexp.Compile(`(?i)` + t.ProgramPattern); err != nil {
				slog.Warn("Invalid template program pattern, ignoring", "template_id", t.ID, "error", err)
				ct.program = nil
			}
		}
		m.templates = append(m.templates, ct)
	}
	return m
}

// Len reports the number of usable templates.
func (m *Matcher) Len() int {
	return len(m.templates)
}

// Matches reports whether any template marks the event as routine. A template
// applies when it is global or scoped to the event's system, its message
// regex matches, and any host/program regexes match too.
func (m *Matcher) Matches(ev models.Event) bool {
	for _, ct := range m.templates {
		if ct.tmpl.SystemID != "" && ct.tmpl.SystemID != ev.SystemID {
			continue
		}
		if !ct.message.MatchString(ev.Message) {
			continue
		}
		if ct.host != nil && !ct.host.MatchString(ev.Host) {
			continue
		}
		if ct.program != nil && !ct.program.MatchString(ev.Program) {
			continue
		}
		return true
	}
	return false
}

// Filter splits events into kept (not routine) and the count excluded.
func (m *Matcher) Filter(events []models.Event) ([]models.Event, int) {
	if len(m.templates) == 0 {
		return events, 0
	}
	kept := make([]models.Event, 0, len(events))
	excluded := 0
	for _, ev := range events {
		if m.Matches(ev) {
			excluded++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, excluded
}

// PatternWords extracts the significant literal words of each template's
// pattern (stop regex syntax stripped), used for context sanitation during
// meta-analysis.
func (m *Matcher) PatternWords() [][]string {
	out := make([][]string, 0, len(m.templates))
	for _, ct := range m.templates {
		out = append(out, SignificantWords(ct.tmpl.Pattern))
	}
	return out
}

var (
	charClassRe = regexp.MustCompile(`\[[^\]]*\]|\\[A-Za-z]|\{\d+(?:,\d*)?\}`)
	wordRe      = regexp.MustCompile(`[A-Za-z]{3,}`)
)

// SignificantWords pulls the literal alphabetic words (length >= 3) out of a
// pattern or message, lowercased and deduplicated. Character classes, escapes
// and repetition counts are stripped first so generated patterns contribute
// only their literal text.
func SignificantWords(s string) []string {
	s = charClassRe.ReplaceAllString(s, " ")
	matches := wordRe.FindAllString(s, -1)
	seen := make(map[string]bool, len(matches))
	var words []string
	for _, w := range matches {
		lw := strings.ToLower(w)
		if seen[lw] {
			continue
		}
		seen[lw] = true
		words = append(words, lw)
	}
	return words
}
