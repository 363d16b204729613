package normalizer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Canonical RFC 5424 severities, least to most severe.
var severityOrder = map[string]int{
	"debug":     0,
	"info":      1,
	"notice":    2,
	"warning":   3,
	"error":     4,
	"critical":  5,
	"alert":     6,
	"emergency": 7,
}

var syslogSeverities = [8]string{
	"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
}

var severityAliases = map[string]string{
	"err":           "error",
	"warn":          "warning",
	"crit":          "critical",
	"emerg":         "emergency",
	"fatal":         "critical",
	"panic":         "emergency",
	"trace":         "debug",
	"verbose":       "debug",
	"informational": "info",
	"information":   "info",
}

// CanonicalSeverity lowercases and resolves aliases. Unknown values map to "".
// Idempotent: CanonicalSeverity(CanonicalSeverity(x)) == CanonicalSeverity(x).
func CanonicalSeverity(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := severityAliases[s]; ok {
		return alias
	}
	if _, ok := severityOrder[s]; ok {
		return s
	}
	return ""
}

// MoreSevere reports whether a outranks b. Unknown severities rank lowest.
func MoreSevere(a, b string) bool {
	return severityOrder[a] > severityOrder[b]
}

// syslogSeverity maps a syslog numeric severity 0–7.
func syslogSeverity(n int) string {
	if n < 0 || n > 7 {
		return ""
	}
	return syslogSeverities[n]
}

// otelSeverity maps an OTel severity_number 1–24 by range.
func otelSeverity(n int) string {
	switch {
	case n >= 1 && n <= 8:
		return "debug"
	case n >= 9 && n <= 12:
		return "info"
	case n >= 13 && n <= 16:
		return "warning"
	case n >= 17 && n <= 20:
		return "error"
	case n >= 21 && n <= 24:
		return "critical"
	default:
		return ""
	}
}

// resolveSeverity applies the strict resolution order: string fields, numeric
// syslog fields, OTel severity_number, PRI, then the JSON-body level. It also
// returns the facility derived from PRI when the entry carries none.
func resolveSeverity(entry map[string]any, bodyLevel string) (severity, facility string) {
	// (1) Non-empty string fields.
	for _, key := range []string{"severity", "level", "syslog_severity", "severity_text"} {
		if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				if sev := syslogSeverity(n); sev != "" {
					return sev, ""
				}
				continue
			}
			if sev := CanonicalSeverity(s); sev != "" {
				return sev, ""
			}
		}
	}

	// (2) Numeric severity/level as syslog 0–7.
	for _, key := range []string{"severity", "level"} {
		if n, ok := intField(entry, key); ok {
			if sev := syslogSeverity(n); sev != "" {
				return sev, ""
			}
		}
	}

	// (3) OTel severity_number 1–24.
	if n, ok := intField(entry, "severity_number"); ok {
		if sev := otelSeverity(n); sev != "" {
			return sev, ""
		}
	}

	// (4) RFC 5424 PRI: severity = pri % 8, facility = pri / 8.
	if pri, ok := intField(entry, "pri"); ok && pri >= 0 && pri <= 191 {
		sev := syslogSeverity(pri % 8)
		fac := ""
		if _, has := entry["facility"]; !has {
			fac = strconv.Itoa(pri / 8)
		}
		return sev, fac
	}

	// (5) Level extracted from a JSON message body (Pino/Bunyan/Winston).
	if bodyLevel != "" {
		if n, err := strconv.Atoi(bodyLevel); err == nil {
			if sev := pinoLevel(n); sev != "" {
				return sev, ""
			}
		}
		if sev := CanonicalSeverity(bodyLevel); sev != "" {
			return sev, ""
		}
	}

	return "", ""
}

// pinoLevel maps Pino/Bunyan numeric levels (10–60) to canonical severities.
func pinoLevel(n int) string {
	switch {
	case n >= 60:
		return "critical"
	case n >= 50:
		return "error"
	case n >= 40:
		return "warning"
	case n >= 30:
		return "info"
	case n >= 10:
		return "debug"
	default:
		return ""
	}
}

// contentRule raises severity based on message content.
type contentRule struct {
	severity string
	patterns []*regexp.Regexp
}

// Ordered most severe first; the first matching rule wins.
var contentRules = []contentRule{
	{"emergency", compileAll(
		`\bkernel\s+panic\b`,
		`\bsystem\s+halt(ed)?\b`,
	)},
	{"alert", compileAll(
		`\bout of memory\b`,
		`\boom[- ]kill(er|ed)?\b`,
		`\bfilesystem\s+read-?only\b`,
	)},
	{"critical", compileAll(
		`\blevel\s*[=:]\s*"?(crit|critical|fatal)\b`,
		`\bsegmentation fault\b`,
		`\bcore dumped\b`,
		`\bwill not be restarted\b`,
		`\bdata\s+corruption\b`,
	)},
	{"error", compileAll(
		`\blevel\s*[=:]\s*"?error`,
		`\berror\s*[=:]`,
		`\bfailed to\b`,
		`\bconnection refused\b`,
		`\bpermission denied\b`,
		`\bpanic:\s`,
		`\btraceback \(most recent call last\)`,
	)},
	{"warning", compileAll(
		`\blevel\s*[=:]\s*"?warn(ing)?\b`,
		`\bdeprecated\b`,
		`\bretry(ing)?\b.*\battempt\b`,
		`\bdisk\s+(space|usage)\b.*\b(9\d|8[5-9])%`,
	)},
	{"notice", compileAll(
		`\blevel\s*[=:]\s*"?notice\b`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// enrichSeverity returns the more severe of the header severity and the
// content-derived one. Never downgrades; with no header severity the content
// severity stands alone.
func enrichSeverity(header, message string) string {
	content := ""
	for _, rule := range contentRules {
		for _, re := range rule.patterns {
			if re.MatchString(message) {
				content = rule.severity
				break
			}
		}
		if content != "" {
			break
		}
	}
	if content == "" {
		return header
	}
	if header == "" || MoreSevere(content, header) {
		return content
	}
	return header
}

func intField(entry map[string]any, key string) (int, bool) {
	switch v := entry[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
