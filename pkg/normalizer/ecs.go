package normalizer

import "strings"

// ecsMappings maps nested ECS/OTel paths to flat fields. The flat field is
// only set when absent or empty; explicit flat fields take priority.
var ecsMappings = []struct {
	path []string
	flat string
}{
	{[]string{"host", "name"}, "host"},
	{[]string{"host", "hostname"}, "host"},
	{[]string{"resource", "host", "name"}, "host"},
	{[]string{"source", "ip"}, "source_ip"},
	{[]string{"client", "ip"}, "source_ip"},
	{[]string{"service", "name"}, "service"},
	{[]string{"resource", "service", "name"}, "service"},
	{[]string{"log", "level"}, "severity"},
	{[]string{"log", "syslog", "severity", "name"}, "severity"},
	{[]string{"log", "syslog", "facility", "name"}, "facility"},
	{[]string{"process", "name"}, "program"},
	{[]string{"event", "provider"}, "program"},
	{[]string{"attributes", "trace_id"}, "trace_id"},
	{[]string{"attributes", "span_id"}, "span_id"},
	{[]string{"trace", "id"}, "trace_id"},
	{[]string{"span", "id"}, "span_id"},
}

// flattenECS pulls known nested paths up to flat fields in place. The nested
// structures stay in the entry and end up in the opaque payload.
func flattenECS(entry map[string]any) {
	for _, m := range ecsMappings {
		if flat, ok := entry[m.flat].(string); ok && strings.TrimSpace(flat) != "" {
			continue
		}
		if v, ok := nestedString(entry, m.path); ok {
			entry[m.flat] = v
		}
	}
	// @timestamp needs no flattening: the timestamp resolver reads it directly.
}

func nestedString(entry map[string]any, path []string) (string, bool) {
	var cur any = entry
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
