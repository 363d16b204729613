// Package redact hides secrets in stored events and, separately, filters
// personal data out of LLM-bound payloads. Ingest redaction changes what is
// persisted; the privacy filter transforms events in memory only.
package redact

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Placeholder replaces redacted values.
const Placeholder = "[REDACTED]"

// builtinRule is one ordered regex substitution. Quoted-value rules come
// before unquoted ones so a greedy \S+ cannot consume the closing quote.
type builtinRule struct {
	name        string
	pattern     string
	replacement string
}

var builtinRules = []builtinRule{
	{
		name:        "connection_string_credentials",
		pattern:     `([a-zA-Z][a-zA-Z0-9+.-]*://[^:/\s]+:)[^@/\s]+(@)`,
		replacement: `${1}` + Placeholder + `${2}`,
	},
	{
		name:        "quoted_secret_assignment",
		pattern:     `((?:password|passwd|secret|api[_-]?key|token|access[_-]?key|private[_-]?key|credentials)\s*[=:]\s*")[^"]*(")`,
		replacement: `${1}` + Placeholder + `${2}`,
	},
	{
		name:        "single_quoted_secret_assignment",
		pattern:     `((?:password|passwd|secret|api[_-]?key|token|access[_-]?key|private[_-]?key|credentials)\s*[=:]\s*')[^']*(')`,
		replacement: `${1}` + Placeholder + `${2}`,
	},
	{
		// Quote-led values were handled above; skip them here so the quotes
		// survive.
		name:        "unquoted_secret_assignment",
		pattern:     `((?:password|passwd|secret|api[_-]?key|token|access[_-]?key|private[_-]?key|credentials)\s*[=:]\s*)[^"'\s]\S*`,
		replacement: `${1}` + Placeholder,
	},
	{
		name:        "authorization_header",
		pattern:     `((?:authorization)\s*:\s*)\S.*`,
		replacement: `${1}` + Placeholder,
	},
}

// sensitiveKeys are payload keys whose values are replaced outright.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"access_key":    true,
	"private_key":   true,
	"client_secret": true,
	"refresh_token": true,
	"credentials":   true,
}

type compiledRule struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor applies the builtin rules plus user-configured patterns to event
// messages and payloads. Patterns compile once; Reload swaps them when the
// configuration changes.
type Redactor struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewRedactor compiles the builtin rules plus extra user patterns. Invalid
// user patterns are logged and skipped.
func NewRedactor(userPatterns []string) *Redactor {
	r := &Redactor{}
	r.Reload(userPatterns)
	return r
}

// Reload recompiles the rule set with the given user patterns.
func (r *Redactor) Reload(userPatterns []string) {
	rules := make([]compiledRule, 0, len(builtinRules)+len(userPatterns))
	for _, b := range builtinRules {
		re, err := regexp.Compile(`(?i)` + b.pattern)
		if err != nil {
			slog.Error("Failed to compile builtin redaction rule, skipping",
				"rule", b.name, "error", err)
			continue
		}
		rules = append(rules, compiledRule{name: b.name, regex: re, replacement: b.replacement})
	}
	for i, p := range userPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			slog.Warn("Failed to compile user redaction pattern, skipping",
				"index", i, "error", err)
			continue
		}
		rules = append(rules, compiledRule{name: "user", regex: re, replacement: Placeholder})
	}

	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
}

// RedactMessage applies all rules to a message string.
func (r *Redactor) RedactMessage(message string) string {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for _, rule := range rules {
		message = rule.regex.ReplaceAllString(message, rule.replacement)
	}
	return message
}

// RedactPayload walks a JSON payload: sensitive keys are replaced outright,
// other string values are pattern-substituted. Returns a redacted copy.
func (r *Redactor) RedactPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if sensitiveKeys[strings.ToLower(key)] {
			out[key] = Placeholder
			continue
		}
		out[key] = r.redactValue(value)
	}
	return out
}

func (r *Redactor) redactValue(value any) any {
	switch v := value.(type) {
	case string:
		return r.RedactMessage(v)
	case map[string]any:
		return r.RedactPayload(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return value
	}
}
