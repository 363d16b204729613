package normalizer

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestNormalizeRejectsMissingMessage(t *testing.T) {
	n := New(Options{})
	_, err := n.Normalize(map[string]any{"host": "web-01"}, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestNormalizeTruncatesLongMessages(t *testing.T) {
	n := New(Options{MaxMessageLength: 10})
	ev, err := n.Normalize(map[string]any{"message": "0123456789abcdef"}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "0123456789 [...truncated]", ev.Message)
}

func TestNormalizeTruncationKeepsRuneBoundary(t *testing.T) {
	// The byte limit falls inside the three-byte euro sign; the cut backs up
	// so the result stays valid UTF-8.
	n := New(Options{MaxMessageLength: 6})
	ev, err := n.Normalize(map[string]any{"message": "abcd€xyz"}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "abcd [...truncated]", ev.Message)
	assert.True(t, utf8.ValidString(ev.Message))
}

func TestNormalizeDockerNATHostResolution(t *testing.T) {
	n := New(Options{})
	ev, err := n.Normalize(map[string]any{
		"message":   "hello",
		"source_ip": "172.17.0.1",
		"host":      "10.20.30.40",
	}, "", testNow)
	require.NoError(t, err)
	// A NAT source with a real IPv4 header means the header is the origin.
	assert.Equal(t, "10.20.30.40", ev.Host)
	assert.Equal(t, "10.20.30.40", ev.SourceIP)
}

func TestNormalizeBogusHostFallsBackToSourceIP(t *testing.T) {
	n := New(Options{})
	ev, err := n.Normalize(map[string]any{
		"message": "hello",
		"host":    "12:34:56",
	}, "udp://192.0.2.7:52502", testNow)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", ev.Host)
	assert.Equal(t, "192.0.2.7", ev.SourceIP)
}

func TestNormalizeJSONBodyMessage(t *testing.T) {
	n := New(Options{})
	ev, err := n.Normalize(map[string]any{
		"message": `{"level":50,"msg":"connection lost","pid":42}`,
	}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "connection lost", ev.Message)
	assert.Equal(t, "error", ev.Severity)
}

func TestNormalizePRISeverityAndFacility(t *testing.T) {
	n := New(Options{})
	// PRI 165 = facility 20, severity 5 (notice).
	ev, err := n.Normalize(map[string]any{"message": "x", "pri": 165}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "notice", ev.Severity)
	assert.Equal(t, "20", ev.Facility)
}

func TestNormalizeFutureClamp(t *testing.T) {
	n := New(Options{MaxFutureDrift: 300 * time.Second})

	within := testNow.Add(299 * time.Second)
	ev, err := n.Normalize(map[string]any{
		"message": "x", "timestamp": within.Format(time.RFC3339),
	}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, within, ev.Timestamp)
	assert.False(t, ev.FutureClamped)

	beyond := testNow.Add(301 * time.Second)
	ev, err = n.Normalize(map[string]any{
		"message": "x", "timestamp": beyond.Format(time.RFC3339),
	}, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow, ev.Timestamp)
	assert.True(t, ev.FutureClamped)
}

func TestCanonicalSeverityIdempotent(t *testing.T) {
	tests := map[string]string{
		"ERR":     "error",
		"warn":    "warning",
		"Fatal":   "critical",
		"panic":   "emergency",
		"info":    "info",
		"unknown": "",
	}
	for raw, want := range tests {
		got := CanonicalSeverity(raw)
		assert.Equal(t, want, got, raw)
		assert.Equal(t, got, CanonicalSeverity(got), raw)
	}
}

func TestEnrichSeverityNeverDowngrades(t *testing.T) {
	// Content says error, header says critical: header wins.
	assert.Equal(t, "critical", enrichSeverity("critical", "connection refused"))
	// Content outranks the header.
	assert.Equal(t, "error", enrichSeverity("info", "failed to open socket"))
	// No header: content stands alone.
	assert.Equal(t, "emergency", enrichSeverity("", "kernel panic - not syncing"))
	// Neither matches: header survives untouched.
	assert.Equal(t, "info", enrichSeverity("info", "user logged in"))
}

func TestEpochUnitDetection(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  time.Time
	}{
		{"seconds", 1_700_000_000, time.Unix(1_700_000_000, 0)},
		{"millis threshold", 1e12, time.Unix(0, int64(1e12)*int64(time.Millisecond))},
		{"micros threshold", 1e15, time.Unix(0, int64(1e15)*int64(time.Microsecond))},
		{"nanos threshold", 1e18, time.Unix(0, int64(1e18))},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want.UTC(), epochToTime(tt.value).UTC(), tt.name)
	}
}

func TestResolveTimestampFallsBackToNow(t *testing.T) {
	assert.Equal(t, testNow, resolveTimestamp(map[string]any{"timestamp": "not a time"}, testNow))
	assert.Equal(t, testNow, resolveTimestamp(map[string]any{}, testNow))
}

func TestCleanTransportAddr(t *testing.T) {
	tests := map[string]string{
		"udp://1.2.3.4:52502": "1.2.3.4",
		"[::1]:5140":          "::1",
		"1.2.3.4:514":         "1.2.3.4",
		"1.2.3.4":             "1.2.3.4",
		" web-01 ":            "web-01",
		"":                    "",
	}
	for raw, want := range tests {
		got := CleanTransportAddr(raw)
		assert.Equal(t, want, got, raw)
		// Idempotent.
		assert.Equal(t, got, CleanTransportAddr(got), raw)
	}
}

func TestComputeHashStable(t *testing.T) {
	ev := models.Event{
		Timestamp: testNow,
		Message:   "disk full",
		Host:      "web-01",
		SourceIP:  "192.0.2.7",
		Program:   "kernel",
	}
	ComputeHash(&ev)
	first := ev.NormalizedHash
	require.Len(t, first, 64)

	ComputeHash(&ev)
	assert.Equal(t, first, ev.NormalizedHash)

	// Any hashed field changes the hash.
	ev.Host = "web-02"
	ComputeHash(&ev)
	assert.NotEqual(t, first, ev.NormalizedHash)
}

func TestApplyTimezoneCorrectionFixedOffset(t *testing.T) {
	ev := models.Event{Timestamp: testNow}
	sys := models.MonitoredSystem{ID: "s", TzOffsetMinutes: 120}
	ApplyTimezoneCorrection(&ev, sys, time.UTC)
	assert.Equal(t, testNow.Add(-2*time.Hour), ev.Timestamp)
}

func TestApplyTimezoneCorrectionUnknownNameIsNoop(t *testing.T) {
	ev := models.Event{Timestamp: testNow}
	sys := models.MonitoredSystem{ID: "s", TimezoneName: "Not/AZone"}
	ApplyTimezoneCorrection(&ev, sys, time.UTC)
	assert.Equal(t, testNow, ev.Timestamp)
}

func TestParameterizeMessage(t *testing.T) {
	in := "conn 550e8400-e29b-41d4-a716-446655440000 from 10.0.0.1 took 250 ms"
	out := ParameterizeMessage(in)
	assert.Equal(t, "conn <ID> from <IP> took <N> ms", out)

	// Equal up to parameters means equal template ids.
	other := "conn 6ba7b810-9dad-11d1-80b4-00c04fd430c8 from 192.168.7.9 took 3 ms"
	assert.Equal(t, TemplateID(in), TemplateID(other))
}
