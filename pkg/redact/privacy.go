package redact

import (
	"log/slog"
	"regexp"
	"sync"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/models"
)

// Category patterns for the LLM privacy filter. Each is independently
// toggleable; the filter never touches stored data. Application order is
// fixed so overlapping patterns (URL before IPv4, MAC before phone) behave
// the same on every run.
type privacyPattern struct {
	name        string
	pattern     string
	replacement string
}

var privacyPatterns = []privacyPattern{
	{"url", `\bhttps?://[^\s"']+`, "[URL]"},
	{"email", `\b[\w.+-]+@[\w-]+\.[\w.-]+\b`, "[EMAIL]"},
	{"user_paths", `(?:/home/|/Users/|C:\\Users\\)[^\s/\\]+`, "[USERPATH]"},
	{"mac", `\b(?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}\b`, "[MAC]"},
	{"ipv4", `\b(?:\d{1,3}\.){3}\d{1,3}\b`, "[IP]"},
	{"ipv6", `\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{0,4}\b`, "[IPV6]"},
	{"credit_card", `\b(?:\d[ -]?){13,16}\b`, "[CARD]"},
	{"phone", `\+?\d[\d\s().-]{7,}\d`, "[PHONE]"},
	{"passwords", `(?i)(password|passwd|pwd)\s*[=:]\s*\S+`, "${1}=[MASKED]"},
	{"api_keys", `(?i)\b(?:sk|pk|rk)-[A-Za-z0-9]{16,}\b`, "[APIKEY]"},
	{"usernames", `(?i)\b(user(?:name)?)\s*[=:]\s*\S+`, "${1}=[USER]"},
}

// PrivacyFilter applies the toggle-per-category transformation to events
// bound for the LLM. Compiled once per configuration; Reload swaps the set.
type PrivacyFilter struct {
	mu           sync.RWMutex
	rules        []compiledRule
	stripHost    bool
	stripProgram bool
	enabled      bool
}

// NewPrivacyFilter compiles the filter for the given settings.
func NewPrivacyFilter(cfg config.PrivacyConfig) *PrivacyFilter {
	f := &PrivacyFilter{}
	f.Reload(cfg)
	return f
}

// Reload recompiles the filter from fresh settings.
func (f *PrivacyFilter) Reload(cfg config.PrivacyConfig) {
	toggles := map[string]bool{
		"ipv4":        cfg.IPv4,
		"ipv6":        cfg.IPv6,
		"email":       cfg.Email,
		"phone":       cfg.Phone,
		"url":         cfg.URL,
		"user_paths":  cfg.UserPaths,
		"mac":         cfg.MAC,
		"credit_card": cfg.CreditCard,
		"passwords":   cfg.Passwords,
		"api_keys":    cfg.APIKeys,
		"usernames":   cfg.Usernames,
	}

	var rules []compiledRule
	for _, p := range privacyPatterns {
		if !toggles[p.name] {
			continue
		}
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("Failed to compile privacy pattern, skipping", "category", p.name, "error", err)
			continue
		}
		rules = append(rules, compiledRule{name: p.name, regex: re, replacement: p.replacement})
	}
	for i, p := range cfg.CustomPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			slog.Warn("Failed to compile custom privacy pattern, skipping", "index", i, "error", err)
			continue
		}
		rules = append(rules, compiledRule{name: "custom", regex: re, replacement: Placeholder})
	}

	f.mu.Lock()
	f.rules = rules
	f.stripHost = cfg.StripHost
	f.stripProgram = cfg.StripProgram
	f.enabled = cfg.Enabled
	f.mu.Unlock()
}

// Apply transforms an event copy for the LLM. The stored event is unchanged.
func (f *PrivacyFilter) Apply(ev models.Event) models.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.enabled {
		return ev
	}
	ev.Message = f.filterString(ev.Message)
	if f.stripHost {
		ev.Host = ""
	} else {
		ev.Host = f.filterString(ev.Host)
	}
	if f.stripProgram {
		ev.Program = ""
	} else {
		ev.Program = f.filterString(ev.Program)
	}
	return ev
}

// FilterText transforms a bare string (summaries, context lines).
func (f *PrivacyFilter) FilterText(s string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.enabled {
		return s
	}
	return f.filterString(s)
}

func (f *PrivacyFilter) filterString(s string) string {
	for _, rule := range f.rules {
		s = rule.regex.ReplaceAllString(s, rule.replacement)
	}
	return s
}
