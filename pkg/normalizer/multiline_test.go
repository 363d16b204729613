package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(host, program, message string) map[string]any {
	return map[string]any{"host": host, "program": program, "message": message}
}

func TestReassembleContinuationHeaders(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("db", "postgres", "[5-1] first"),
		entry("db", "postgres", "[5-2] #011second"),
		entry("db", "postgres", "[5-3] third"),
	}, testNow)

	require.Len(t, out, 1)
	assert.Equal(t, "first\n\tsecond\nthird", out[0]["message"])
}

func TestReassembleContinuationStopsAtGap(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("db", "postgres", "[5-1] first"),
		entry("db", "postgres", "[5-3] third"),
	}, testNow)

	// Non-sequential continuation stays a separate entry.
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0]["message"])
	assert.Equal(t, "[5-3] third", out[1]["message"])
}

func TestReassembleOrphanContinuationGroup(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("db", "postgres", "[7-2] beta"),
		entry("db", "postgres", "[7-3] gamma"),
	}, testNow)

	require.Len(t, out, 1)
	assert.Equal(t, "beta\ngamma", out[0]["message"])
}

func TestReassembleKeysGroupsByHostAndProgram(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("db-1", "postgres", "[5-1] one"),
		entry("db-2", "postgres", "[5-2] other host"),
	}, testNow)

	// Same N on a different host is a different group.
	require.Len(t, out, 2)
}

func TestReassemblePgSameSecond(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("db", "postgres", `2024-01-02 03:04:05.678 UTC [123] app@orders ERROR: relation "x" does not exist`),
		entry("db", "postgres", `2024-01-02 03:04:05.679 UTC [123] app@orders STATEMENT: SELECT * FROM x`),
		entry("db", "postgres", `2024-01-02 03:04:05.680 UTC [123] app@orders HINT: check the schema`),
	}, testNow)

	require.Len(t, out, 1)
	msg, _ := out[0]["message"].(string)
	// Continuations attach in the fixed order, HINT before STATEMENT.
	assert.Contains(t, msg, "ERROR:")
	assert.Less(t, strings.Index(msg, "HINT:"), strings.Index(msg, "STATEMENT:"))
}

func TestReassembleSameSecondFragments(t *testing.T) {
	r := NewReassembler()
	out := r.Reassemble([]map[string]any{
		entry("app-01", "java", "ERROR: request handler crashed"),
		entry("app-01", "java", "    at com.example.Handler.run(Handler.java:42)"),
		entry("app-01", "java", "    at com.example.Main.main(Main.java:10)"),
	}, testNow)

	require.Len(t, out, 1)
	assert.Equal(t,
		"ERROR: request handler crashed\n    at com.example.Handler.run(Handler.java:42)\n    at com.example.Main.main(Main.java:10)",
		out[0]["message"])
}

func TestReassembleBuffersOrphansAcrossBatches(t *testing.T) {
	r := NewReassembler()

	out := r.Reassemble([]map[string]any{
		entry("app-01", "java", "    at com.example.Main.main(Main.java:10)"),
	}, testNow)
	assert.Empty(t, out)
	assert.Equal(t, 1, r.BufferedFragments())

	// A head arriving close enough in a later batch claims the fragment.
	out = r.Reassemble([]map[string]any{
		entry("app-01", "java", "ERROR: startup failed"),
	}, testNow.Add(2*time.Second))
	require.Len(t, out, 1)
	assert.Equal(t,
		"    at com.example.Main.main(Main.java:10)\nERROR: startup failed",
		out[0]["message"])
	assert.Equal(t, 0, r.BufferedFragments())
}

func TestReassembleReleasesExpiredFragments(t *testing.T) {
	r := NewReassembler()

	out := r.Reassemble([]map[string]any{
		entry("app-01", "java", "    at com.example.Main.main(Main.java:10)"),
	}, testNow)
	assert.Empty(t, out)

	// Past the TTL the fragment comes back as a standalone entry.
	out = r.Reassemble(nil, testNow.Add(11*time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, "    at com.example.Main.main(Main.java:10)", out[0]["message"])
	assert.Equal(t, 0, r.BufferedFragments())
}

func TestIsFragment(t *testing.T) {
	fragments := []string{
		"    indented line",
		"\ttab indented",
		"} closing brace",
		"at java.lang.Thread.run(Thread.java:748)",
		"caused_by: timeout",
	}
	for _, msg := range fragments {
		assert.True(t, isFragment(msg), msg)
	}

	heads := []string{
		"ERROR: something broke",
		"2024-01-02 03:04:05 starting up",
		"Jan  2 03:04:05 web-01 sshd[12]: accepted",
		"plain standalone message",
	}
	for _, msg := range heads {
		assert.False(t, isFragment(msg), msg)
	}
}
