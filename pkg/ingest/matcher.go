// Package ingest accepts raw log batches, runs them through multiline
// reassembly and normalization, redacts secrets, matches events to their
// owning system and persists them idempotently.
package ingest

import (
	"strings"

	"github.com/loglens/loglens/pkg/models"
)

// Matcher resolves a normalized event to its log source. Match order is
// fixed: connector id, host, source ip, program. The first hit wins.
// Matching is case-insensitive; empty hints never match.
type Matcher struct {
	byConnector map[string]models.LogSource
	byHost      map[string]models.LogSource
	bySourceIP  map[string]models.LogSource
	byProgram   map[string]models.LogSource
}

// NewMatcher indexes the given sources. When two sources carry the same hint
// the first one listed wins.
func NewMatcher(sources []models.LogSource) *Matcher {
	m := &Matcher{
		byConnector: make(map[string]models.LogSource),
		byHost:      make(map[string]models.LogSource),
		bySourceIP:  make(map[string]models.LogSource),
		byProgram:   make(map[string]models.LogSource),
	}
	for _, s := range sources {
		addHint(m.byConnector, s.ConnectorID, s)
		addHint(m.byHost, s.Host, s)
		addHint(m.bySourceIP, s.SourceIP, s)
		addHint(m.byProgram, s.Program, s)
	}
	return m
}

func addHint(index map[string]models.LogSource, hint string, s models.LogSource) {
	key := strings.ToLower(strings.TrimSpace(hint))
	if key == "" {
		return
	}
	if _, taken := index[key]; !taken {
		index[key] = s
	}
}

// Match returns the owning source for an event, or false when nothing
// matches and the event belongs in the discovery buffer.
func (m *Matcher) Match(ev *models.Event) (models.LogSource, bool) {
	if s, ok := lookup(m.byConnector, ev.ConnectorID); ok {
		return s, true
	}
	if s, ok := lookup(m.byHost, ev.Host); ok {
		return s, true
	}
	if s, ok := lookup(m.bySourceIP, ev.SourceIP); ok {
		return s, true
	}
	if s, ok := lookup(m.byProgram, ev.Program); ok {
		return s, true
	}
	return models.LogSource{}, false
}

func lookup(index map[string]models.LogSource, value string) (models.LogSource, bool) {
	if value == "" {
		return models.LogSource{}, false
	}
	s, ok := index[strings.ToLower(value)]
	return s, ok
}
