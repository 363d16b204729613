package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loglens/loglens/pkg/models"
)

func TestEvidenceContradicts(t *testing.T) {
	tests := []struct {
		evidence string
		want     bool
	}{
		{"Service restarted and healthy since 10:02", false},
		{"The disk alert persists despite cleanup", true},
		{"Connection refused on retry", true},
		{"Backup completed successfully", false},
		{"Issue remains unresolved", true},
		{"STILL ACTIVE as of this window", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evidenceContradicts(tt.evidence), tt.evidence)
	}
}

func TestAllErrorSeverity(t *testing.T) {
	assert.True(t, allErrorSeverity([]string{"error", "critical"}))
	assert.True(t, allErrorSeverity([]string{"err"}))
	assert.False(t, allErrorSeverity([]string{"error", "info"}))
	assert.False(t, allErrorSeverity([]string{"", ""}))
	assert.False(t, allErrorSeverity(nil))
	// Unclassified refs don't save an otherwise all-error set.
	assert.True(t, allErrorSeverity([]string{"", "alert"}))
}

func TestSelfReferential(t *testing.T) {
	finding := "Repeated authentication failures from host bastion targeting admin accounts"
	// Restating the problem is not proof of resolution.
	assert.True(t, selfReferential("authentication failures from bastion targeting admin accounts continue", finding))
	// A genuine recovery event shares almost no words.
	assert.False(t, selfReferential("sshd configuration reloaded, fail2ban ban list cleared", finding))
}

func TestRejectResolution(t *testing.T) {
	f := models.Finding{Text: "Disk /dev/sda1 nearly full on web-01"}

	// No mapped refs.
	assert.True(t, rejectResolution(f, "cleaned up", nil, nil, nil))

	// Contradicting evidence.
	assert.True(t, rejectResolution(f, "the failure persists",
		[]string{"e1"}, []string{"disk cleanup finished, usage back at 40 percent"}, []string{"info"}))

	// All referenced events are error-class.
	assert.True(t, rejectResolution(f, "resolved by operator",
		[]string{"e1"}, []string{"disk cleanup job succeeded, capacity restored"}, []string{"error"}))

	// Every referenced event restates the finding.
	assert.True(t, rejectResolution(f, "see event",
		[]string{"e1"}, []string{"disk /dev/sda1 nearly full on web-01"}, []string{"warning"}))

	// Clean acceptance: notice-level recovery event with distinct wording.
	assert.False(t, rejectResolution(f, "cleanup job freed space, usage at 40 percent",
		[]string{"e1"}, []string{"logrotate completed, 120G reclaimed, usage at 40 percent"}, []string{"notice"}))
}

func TestSignificantWordsKeepsThreeLetterWords(t *testing.T) {
	words := significantWords("ssh key on web tier is rotated")
	// Three-letter words carry signal in log text (ssh, dns, oom, ...).
	assert.True(t, words["ssh"])
	assert.True(t, words["key"])
	assert.True(t, words["web"])
	assert.False(t, words["on"])
	assert.False(t, words["is"])
}

func TestOverlapFraction(t *testing.T) {
	a := significantWords("disk nearly full on volume root")
	b := significantWords("disk volume expanded")
	// a = {disk, nearly, full, volume, root}; shared {disk, volume} = 2/5.
	assert.InDelta(t, 0.4, overlapFraction(a, b), 1e-9)
	assert.Zero(t, overlapFraction(map[string]bool{}, b))
}

func TestWordOverlapAtLeast(t *testing.T) {
	text := significantWords("session closed for user deploy after timeout")
	assert.True(t, wordOverlapAtLeast([]string{"session", "closed", "user"}, text, 0.5))
	assert.False(t, wordOverlapAtLeast([]string{"kernel", "panic", "reboot"}, text, 0.5))
	assert.False(t, wordOverlapAtLeast(nil, text, 0.5))
}
