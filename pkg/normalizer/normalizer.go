// Package normalizer turns heterogeneous ingest entries into canonical events:
// ECS flattening, message/timestamp/severity resolution, content-based
// severity enrichment, host and source-ip cleaning, multiline reassembly,
// and the normalized content hash.
package normalizer

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loglens/loglens/pkg/models"
)

// ErrInvalidEntry rejects entries without a usable message.
var ErrInvalidEntry = errors.New("invalid_entry")

// truncationMarker is appended to messages cut at the configured max length.
const truncationMarker = " [...truncated]"

// Options tunes per-entry normalization.
type Options struct {
	MaxMessageLength int
	MaxFutureDrift   time.Duration
}

// Normalizer converts raw ingest entries into canonical events. Stateless and
// safe for concurrent use; multiline state lives in the Reassembler.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer, filling zero options with defaults.
func New(opts Options) *Normalizer {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 8192
	}
	if opts.MaxFutureDrift <= 0 {
		opts.MaxFutureDrift = 300 * time.Second
	}
	return &Normalizer{opts: opts}
}

// Normalize converts one entry. peerAddr is the transport peer, used as the
// source-ip fallback. Parse-level surprises never fail the entry; only a
// missing message does.
func (n *Normalizer) Normalize(entry map[string]any, peerAddr string, now time.Time) (models.Event, error) {
	flattenECS(entry)

	message, bodyLevel := resolveMessage(entry)
	if message == "" {
		return models.Event{}, ErrInvalidEntry
	}
	if len(message) > n.opts.MaxMessageLength {
		cut := n.opts.MaxMessageLength
		// Back up to a rune boundary so the cut never splits a UTF-8 sequence.
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + truncationMarker
	}

	ts := resolveTimestamp(entry, now)
	ts, clamped := clampFuture(ts, now, n.opts.MaxFutureDrift)

	severity, priFacility := resolveSeverity(entry, bodyLevel)
	severity = enrichSeverity(severity, message)

	host, sourceIP := resolveHostAndIP(entry, peerAddr)

	facility := stringField(entry, "facility")
	if facility == "" {
		facility = priFacility
	}

	ev := models.Event{
		ReceivedAt:    now.UTC(),
		Timestamp:     ts,
		Message:       message,
		Severity:      severity,
		Host:          host,
		SourceIP:      sourceIP,
		Service:       stringField(entry, "service"),
		Facility:      facility,
		Program:       firstStringField(entry, "program", "app_name", "ident", "tag"),
		TraceID:       stringField(entry, "trace_id"),
		SpanID:        stringField(entry, "span_id"),
		ConnectorID:   stringField(entry, "connector_id"),
		ExternalID:    firstStringField(entry, "external_id", "id"),
		Payload:       entry,
		FutureClamped: clamped,
	}
	return ev, nil
}

// resolveMessage picks the message from its aliases and, when the message is
// itself a JSON log object, extracts the inner text and level.
func resolveMessage(entry map[string]any) (message, bodyLevel string) {
	for _, key := range []string{"message", "short_message", "msg", "body"} {
		s, ok := entry[key].(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		message = strings.TrimSpace(s)
		break
	}
	if message == "" {
		return "", ""
	}

	// Pino/Bunyan/Winston ship a JSON object as the whole message.
	if strings.HasPrefix(message, "{") && strings.HasSuffix(message, "}") {
		var body map[string]any
		if err := json.Unmarshal([]byte(message), &body); err == nil {
			inner := ""
			for _, key := range []string{"msg", "message", "text"} {
				if s, ok := body[key].(string); ok && strings.TrimSpace(s) != "" {
					inner = strings.TrimSpace(s)
					break
				}
			}
			if inner != "" {
				for _, key := range []string{"level", "severity", "loglevel", "lvl"} {
					switch v := body[key].(type) {
					case string:
						if strings.TrimSpace(v) != "" {
							bodyLevel = strings.TrimSpace(v)
						}
					case float64:
						bodyLevel = jsonNumberString(v)
					}
					if bodyLevel != "" {
						break
					}
				}
				message = inner
			}
		}
	}
	return message, bodyLevel
}

func jsonNumberString(v float64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func stringField(entry map[string]any, key string) string {
	if s, ok := entry[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstStringField(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(entry, key); s != "" {
			return s
		}
	}
	return ""
}
