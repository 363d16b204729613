package normal

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/loglens/pkg/models"
)

func mustMatch(t *testing.T, pattern, msg string) {
	t.Helper()
	re, err := regexp.Compile(`(?i)` + pattern)
	require.NoError(t, err)
	assert.True(t, re.MatchString(msg), "pattern %q should match %q", pattern, msg)
}

func mustNotMatch(t *testing.T, pattern, msg string) {
	t.Helper()
	re, err := regexp.Compile(`(?i)` + pattern)
	require.NoError(t, err)
	assert.False(t, re.MatchString(msg), "pattern %q should not match %q", pattern, msg)
}

func TestGeneratePatternNumbers(t *testing.T) {
	p := GeneratePattern("session closed for user after 31 seconds")
	mustMatch(t, p, "session closed for user after 31 seconds")
	mustMatch(t, p, "session closed for user after 7 seconds")
	mustNotMatch(t, p, "session opened for user after 31 seconds")
}

func TestGeneratePatternIPv4(t *testing.T) {
	p := GeneratePattern("Accepted publickey for deploy from 10.1.2.3 port 51514")
	mustMatch(t, p, "Accepted publickey for deploy from 192.168.0.77 port 22")
	mustNotMatch(t, p, "Failed publickey for deploy from 10.1.2.3 port 51514")
}

func TestGeneratePatternUUIDBeforeNumbers(t *testing.T) {
	p := GeneratePattern("request 550e8400-e29b-41d4-a716-446655440000 completed")
	mustMatch(t, p, "request ffffffff-aaaa-bbbb-cccc-000011112222 completed")
	assert.Contains(t, p, `[0-9a-fA-F]{8}-`)
	assert.NotContains(t, p, `\d+-`)
}

func TestGeneratePatternInterface(t *testing.T) {
	p := GeneratePattern("Interface GigabitEthernet1/0/24 changed state to up")
	mustMatch(t, p, "Interface GigabitEthernet2/0/1 changed state to up")
	mustNotMatch(t, p, "Interface GigabitEthernet1/0/24 changed state to down")
}

func TestGeneratePatternQuotedAndPath(t *testing.T) {
	p := GeneratePattern(`opened file "/var/log/app/current.log" mode r`)
	mustMatch(t, p, `opened file "/srv/data/other.log" mode r`)
}

func TestGeneratePatternHexAndMAC(t *testing.T) {
	p := GeneratePattern("learned 00:1a:2b:3c:4d:5e flags 0x8402")
	mustMatch(t, p, "learned aa:bb:cc:dd:ee:ff flags 0x1")
}

func TestGeneratePatternAnchored(t *testing.T) {
	p := GeneratePattern("link up")
	assert.Equal(t, "^link up$", p)
	mustNotMatch(t, p, "link up on eth0")
}

func TestGenerateLiteralPattern(t *testing.T) {
	assert.Equal(t, `^web-01\.prod$`, GenerateLiteralPattern("web-01.prod"))
	assert.Empty(t, GenerateLiteralPattern(""))
}

func TestConvertLegacyPattern(t *testing.T) {
	p := ConvertLegacyPattern("session * closed for user *")
	mustMatch(t, p, "session 12 closed for user bob")
	mustNotMatch(t, p, "other session 12 closed for user bob extra")

	// Anchored regex passes through untouched.
	assert.Equal(t, `^done \d+$`, ConvertLegacyPattern(`^done \d+$`))
}

func TestMatcherScopeAndFields(t *testing.T) {
	templates := []models.NormalBehaviorTemplate{
		{ID: "t1", SystemID: "sys-a", Pattern: `^backup finished in \d+s$`, Enabled: true},
		{ID: "t2", SystemID: "", Pattern: `^ntp sync ok$`, ProgramPattern: `^chronyd$`, Enabled: true},
		{ID: "t3", SystemID: "sys-a", Pattern: `^disabled .*$`, Enabled: false},
	}
	m := NewMatcher(templates)
	require.Equal(t, 2, m.Len())

	assert.True(t, m.Matches(models.Event{SystemID: "sys-a", Message: "backup finished in 42s"}))
	assert.False(t, m.Matches(models.Event{SystemID: "sys-b", Message: "backup finished in 42s"}))

	// Global template with program constraint.
	assert.True(t, m.Matches(models.Event{SystemID: "sys-b", Message: "ntp sync ok", Program: "chronyd"}))
	assert.False(t, m.Matches(models.Event{SystemID: "sys-b", Message: "ntp sync ok", Program: "systemd"}))

	// Disabled template never matches.
	assert.False(t, m.Matches(models.Event{SystemID: "sys-a", Message: "disabled thing"}))
}

func TestMatcherSkipsInvalidPattern(t *testing.T) {
	m := NewMatcher([]models.NormalBehaviorTemplate{
		{ID: "bad", Pattern: `^([unclosed$`, Enabled: true},
		{ID: "good", Pattern: `^ok$`, Enabled: true},
	})
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Matches(models.Event{Message: "ok"}))
}

func TestFilter(t *testing.T) {
	m := NewMatcher([]models.NormalBehaviorTemplate{
		{ID: "t1", Pattern: `^heartbeat$`, Enabled: true},
	})
	events := []models.Event{
		{ID: "e1", Message: "heartbeat"},
		{ID: "e2", Message: "disk failure"},
	}
	kept, excluded := m.Filter(events)
	assert.Equal(t, 1, excluded)
	require.Len(t, kept, 1)
	assert.Equal(t, "e2", kept[0].ID)
}

func TestSignificantWords(t *testing.T) {
	words := SignificantWords(`^session closed for user \w+ after \d+ seconds$`)
	assert.Equal(t, []string{"session", "closed", "for", "user", "after", "seconds"}, words)
}
