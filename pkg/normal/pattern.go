// Package normal implements the normal-behavior template engine: generating
// anchored regex patterns from example messages, matching events against
// enabled templates, and converting legacy wildcard patterns.
package normal

import (
	"regexp"
	"strings"
)

// genRule replaces detected spans with a targeted regex fragment. Order
// matters: specific shapes (UUIDs, MACs, interface names) run before the bare
// digit rule that would otherwise chew them up.
type genRule struct {
	name     string
	detect   *regexp.Regexp
	fragment string
}

var genRules = []genRule{
	{"uuid", regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`},
	{"mac_colon_dash", regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}\b`),
		`(?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}`},
	{"mac_dot", regexp.MustCompile(`\b(?:[0-9a-fA-F]{4}\.){2}[0-9a-fA-F]{4}\b`),
		`(?:[0-9a-fA-F]{4}\.){2}[0-9a-fA-F]{4}`},
	{"ipv4_cidr", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?:/\d{1,2})?\b`),
		`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?:/\d{1,2})?`},
	{"ipv6", regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{0,4}\b`),
		`(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{0,4}`},
	{"interface", regexp.MustCompile(`\b(?:GigabitEthernet|TenGigabitEthernet|FastEthernet|TwentyFiveGigE|FortyGigE|HundredGigE|Ethernet|ethernet|ge-|xe-|et-|eth|ens|eno|enp|bond|br)[\d/.:-]+\b`),
		`(?:GigabitEthernet|TenGigabitEthernet|FastEthernet|TwentyFiveGigE|FortyGigE|HundredGigE|Ethernet|ethernet|ge-|xe-|et-|eth|ens|eno|enp|bond|br)[\d/.:-]+`},
	{"port_channel", regexp.MustCompile(`\b(?:Port-channel|Vlan|Loopback)\d+\b`),
		`(?:Port-channel|Vlan|Loopback)\d+`},
	{"chassis_unit", regexp.MustCompile(`\b(?:Switch|Stack|Unit|Slot|Module|Member|Node)\s?\d+\b`),
		`(?:Switch|Stack|Unit|Slot|Module|Member|Node)\s?\d+`},
	{"stp_instance", regexp.MustCompile(`\b(?:MSTI|MST|STP)\s?\d+\b`),
		`(?:MSTI|MST|STP)\s?\d+`},
	{"hex_0x", regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`), `0x[0-9a-fA-F]+`},
	{"long_hex", regexp.MustCompile(`\b[0-9a-fA-F]{12,}\b`), `[0-9a-fA-F]{12,}`},
	{"path", regexp.MustCompile(`(?:/[\w.-]+){2,}/?`), `(?:/[\w.-]+){2,}/?`},
	{"double_quoted", regexp.MustCompile(`"[^"]*"`), `"[^"]*"`},
	{"single_quoted", regexp.MustCompile(`'[^']*'`), `'[^']*'`},
	{"underscore_digits", regexp.MustCompile(`_\d+\b`), `_\d+`},
	{"number", regexp.MustCompile(`\d+`), `\d+`},
}

// GeneratePattern builds an anchored regex from an example message. Detected
// variable spans become targeted fragments; literal text is escaped.
func GeneratePattern(example string) string {
	type segment struct {
		text    string
		literal bool
	}
	segments := []segment{{text: example, literal: true}}

	for _, rule := range genRules {
		var next []segment
		for _, seg := range segments {
			if !seg.literal {
				next = append(next, seg)
				continue
			}
			rest := seg.text
			for rest != "" {
				loc := rule.detect.FindStringIndex(rest)
				if loc == nil {
					next = append(next, segment{text: rest, literal: true})
					break
				}
				if loc[0] > 0 {
					next = append(next, segment{text: rest[:loc[0]], literal: true})
				}
				next = append(next, segment{text: rule.fragment})
				rest = rest[loc[1]:]
			}
		}
		segments = next
	}

	var b strings.Builder
	b.WriteString("^")
	for _, seg := range segments {
		if seg.literal {
			b.WriteString(regexp.QuoteMeta(seg.text))
		} else {
			b.WriteString(seg.text)
		}
	}
	b.WriteString("$")
	return b.String()
}

// GenerateLiteralPattern builds an anchored exact-match pattern for host or
// program fields.
func GenerateLiteralPattern(value string) string {
	if value == "" {
		return ""
	}
	return "^" + regexp.QuoteMeta(value) + "$"
}

// ConvertLegacyPattern turns a `*` wildcard pattern into a regex: literals
// escaped, each `*` becomes `.*`. Already-anchored regex patterns pass
// through.
func ConvertLegacyPattern(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		return pattern
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
