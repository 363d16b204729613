package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loglens/loglens/pkg/models"
)

// ErrUnparseable is returned when no JSON document can be recovered from the
// model output.
var ErrUnparseable = errors.New("llm: response contains no parseable JSON")

// ExtractJSON recovers the JSON document from model output that may be
// wrapped in triple-backtick fences or surrounded by prose.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && strings.EqualFold(strings.TrimSpace(rest[:nl]), "json") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	// Trim prose around the outermost JSON value.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndexByte(s, '}')
	} else {
		end = strings.LastIndexByte(s, ']')
	}
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// ParseScores decodes a scoring response into eventCount rows of six floats.
// Accepts {"scores": [...]} or a bare array; rows are padded or truncated;
// values are clamped to [0,1].
func ParseScores(content string, eventCount int) ([][]float64, error) {
	doc := ExtractJSON(content)
	if doc == "" {
		return nil, ErrUnparseable
	}

	var rows [][]float64
	if strings.HasPrefix(doc, "{") {
		var wrapped struct {
			Scores [][]float64 `json:"scores"`
		}
		if err := json.Unmarshal([]byte(doc), &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode scores object: %w", err)
		}
		rows = wrapped.Scores
	} else {
		if err := json.Unmarshal([]byte(doc), &rows); err != nil {
			return nil, fmt.Errorf("failed to decode scores array: %w", err)
		}
	}

	out := make([][]float64, eventCount)
	for i := range out {
		row := make([]float64, models.CriterionCount)
		if i < len(rows) {
			for j := 0; j < models.CriterionCount && j < len(rows[i]); j++ {
				row[j] = clamp01(rows[i][j])
			}
		}
		out[i] = row
	}
	return out, nil
}

// rawMetaResponse mirrors the meta JSON contract with lenient field types.
type rawMetaResponse struct {
	MetaScores         map[string]float64 `json:"meta_scores"`
	Summary            string             `json:"summary"`
	NewFindings        []NewFinding       `json:"new_findings"`
	ResolvedIndices    []json.RawMessage  `json:"resolved_indices"`
	StillActiveIndices []int              `json:"still_active_indices"`
	RecommendedAction  string             `json:"recommended_action"`
}

// ParseMetaResponse decodes a meta-analysis response. Missing meta scores
// default to 0; resolved entries may be objects or legacy plain indices.
func ParseMetaResponse(content string) (*MetaResponse, error) {
	doc := ExtractJSON(content)
	if doc == "" {
		return nil, ErrUnparseable
	}

	var raw rawMetaResponse
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode meta response: %w", err)
	}

	resp := &MetaResponse{
		MetaScores:         make(map[string]float64, models.CriterionCount),
		Summary:            raw.Summary,
		StillActiveIndices: raw.StillActiveIndices,
		RecommendedAction:  raw.RecommendedAction,
	}
	for _, slug := range criterionSlugs() {
		resp.MetaScores[slug] = clamp01(raw.MetaScores[slug])
	}

	for _, f := range raw.NewFindings {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		if models.SeverityRank(f.Severity) == 0 && f.Severity != models.SeverityInfo {
			f.Severity = models.SeverityInfo
		}
		if f.Criterion != "" {
			if _, ok := models.CriterionBySlug(f.Criterion); !ok {
				f.Criterion = ""
			}
		}
		resp.NewFindings = append(resp.NewFindings, f)
	}

	for _, entry := range raw.ResolvedIndices {
		trimmed := bytes.TrimSpace(entry)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var res Resolution
			if err := json.Unmarshal(entry, &res); err == nil {
				resp.Resolved = append(resp.Resolved, res)
			}
			continue
		}
		// Legacy plain index: no evidence, no refs. Kept so the guardrails
		// reject it explicitly instead of it vanishing.
		var idx int
		if err := json.Unmarshal(entry, &idx); err == nil {
			resp.Resolved = append(resp.Resolved, Resolution{Index: idx})
		}
	}

	return resp, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
