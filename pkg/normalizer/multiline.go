package normalizer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Multiline reassembly runs over a whole ingest batch before per-entry
// normalization. Four ordered methods; each consumes entries so later
// methods skip them.

var (
	// "[N-M]" continuation headers (PostgreSQL syslog splitting).
	contHeaderRe = regexp.MustCompile(`(?s)^\[(\d+)-(\d+)\]\s?(.*)$`)

	// PostgreSQL log_line_prefix: "2024-01-02 03:04:05.678 UTC [123] user@db LEVEL:".
	pgPrefixRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\.\d+\s+\S+\s+\[(\d+)\]\s+\S+@\S+\s+(ERROR|WARNING|LOG|FATAL|PANIC|DETAIL|HINT|CONTEXT|STATEMENT|QUERY):`)

	levelTokenRe     = regexp.MustCompile(`^\[?(?:ERROR|ERR|WARNING|WARN|INFO|NOTICE|DEBUG|TRACE|FATAL|PANIC|CRITICAL|CRIT)\b`)
	timestampLeadRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}|^\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`)
	keyValueShortRe  = regexp.MustCompile(`^\s*[\w.$-]+:\s+\S`)
	stackFrameLeadRe = regexp.MustCompile(`^\s*at\s`)
)

var pgHeadLevels = map[string]bool{
	"ERROR": true, "WARNING": true, "LOG": true, "FATAL": true, "PANIC": true,
}

// pgContinuationOrder is the fixed absorption order for PostgreSQL
// continuation levels.
var pgContinuationOrder = []string{"DETAIL", "HINT", "CONTEXT", "STATEMENT", "QUERY"}

// maxFragmentsPerHead caps how many same-second fragments one head absorbs.
const maxFragmentsPerHead = 20

// batchEntry tracks one raw entry through reassembly.
type batchEntry struct {
	entry    map[string]any
	index    int
	host     string
	program  string
	message  string
	ts       time.Time
	consumed bool
}

// Reassemble merges multiline entries within the batch and against the
// cross-batch fragment buffer. Returns the surviving entries in original
// order, with released buffered fragments appended.
func (r *Reassembler) Reassemble(entries []map[string]any, now time.Time) []map[string]any {
	batch := make([]*batchEntry, 0, len(entries))
	for i, e := range entries {
		msg, _ := e["message"].(string)
		if msg == "" {
			if alt, ok := e["msg"].(string); ok {
				msg = alt
			}
		}
		batch = append(batch, &batchEntry{
			entry:   e,
			index:   i,
			host:    stringField(e, "host"),
			program: firstStringField(e, "program", "app_name", "ident", "tag"),
			message: msg,
			ts:      resolveTimestamp(e, now),
		})
	}

	mergeContinuationHeaders(batch)
	mergePgSameSecond(batch)
	released := r.mergeFragments(batch, now)

	var out []map[string]any
	for _, be := range batch {
		if be.consumed {
			continue
		}
		be.entry["message"] = be.message
		out = append(out, be.entry)
	}
	return append(out, released...)
}

// mergeContinuationHeaders merges "[N-M]" groups keyed by (host, program, N).
// The M=1 entry absorbs sequential continuations; orphan groups with no head
// merge into a single entry at the earliest position.
func mergeContinuationHeaders(batch []*batchEntry) {
	type contPart struct {
		be   *batchEntry
		m    int
		text string
	}
	groups := make(map[string][]contPart)
	var order []string

	for _, be := range batch {
		m := contHeaderRe.FindStringSubmatch(be.message)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		seq, _ := strconv.Atoi(m[2])
		key := be.host + "\x00" + be.program + "\x00" + strconv.Itoa(n)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], contPart{be: be, m: seq, text: decodeSyslogEscapes(m[3])})
	}

	for _, key := range order {
		parts := groups[key]
		sort.SliceStable(parts, func(i, j int) bool { return parts[i].m < parts[j].m })

		var head *batchEntry
		var texts []string
		if parts[0].m == 1 {
			head = parts[0].be
			texts = append(texts, parts[0].text)
			prev := 1
			for _, p := range parts[1:] {
				if p.m != prev+1 {
					break
				}
				texts = append(texts, p.text)
				p.be.consumed = true
				prev = p.m
			}
		} else {
			// Orphan group: one merged event at the earliest batch position.
			earliest := parts[0].be
			for _, p := range parts {
				if p.be.index < earliest.index {
					earliest = p.be
				}
			}
			head = earliest
			for _, p := range parts {
				texts = append(texts, p.text)
				if p.be != head {
					p.be.consumed = true
				}
			}
		}
		head.message = strings.Join(texts, "\n")
	}
}

// mergePgSameSecond merges PostgreSQL log_line_prefix entries grouped by
// (host, program, PID, second). Head levels absorb continuation levels in the
// fixed order; only the first head per group absorbs.
func mergePgSameSecond(batch []*batchEntry) {
	type pgEntry struct {
		be    *batchEntry
		level string
	}
	groups := make(map[string][]pgEntry)
	var order []string

	for _, be := range batch {
		if be.consumed {
			continue
		}
		m := pgPrefixRe.FindStringSubmatch(be.message)
		if m == nil {
			continue
		}
		key := be.host + "\x00" + be.program + "\x00" + m[2] + "\x00" + m[1]
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], pgEntry{be: be, level: m[3]})
	}

	for _, key := range order {
		entries := groups[key]
		var head *batchEntry
		for _, e := range entries {
			if pgHeadLevels[e.level] {
				head = e.be
				break
			}
		}
		if head == nil {
			continue
		}
		for _, level := range pgContinuationOrder {
			for _, e := range entries {
				if e.level != level || e.be.consumed || e.be == head {
					continue
				}
				head.message += "\n" + e.be.message
				e.be.consumed = true
			}
		}
	}
}

// classify returns true when the message looks like a continuation fragment
// rather than the head of a new record.
func isFragment(msg string) bool {
	if msg == "" {
		return false
	}
	trimmedLeft := strings.TrimLeft(msg, " \t")
	if trimmedLeft != msg {
		return true // indented
	}
	switch msg[0] {
	case '}', ')', ',', ']', ':':
		return true
	case '-', '+', '*', '|', '>':
		return true // list/diff leader
	}
	if stackFrameLeadRe.MatchString(msg) {
		return true
	}
	if len(msg) <= 60 {
		if keyValueShortRe.MatchString(msg) && !levelTokenRe.MatchString(msg) && !timestampLeadRe.MatchString(msg) {
			return true
		}
		if strings.HasSuffix(strings.TrimRight(msg, " "), ",") {
			return true
		}
	}
	return false
}

func isHead(msg string) bool {
	return levelTokenRe.MatchString(msg) || timestampLeadRe.MatchString(msg)
}

func decodeSyslogEscapes(s string) string {
	s = strings.ReplaceAll(s, "#011", "\t")
	return strings.ReplaceAll(s, "#012", "\n")
}
