package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeReplacesIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "uuid and ip collapse",
			text: "Session 550e8400-e29b-41d4-a716-446655440000 from 10.0.0.5 failed",
			want: []string{"session", "<ID>", "<IP>", "failed"},
		},
		{
			name: "numbers collapse",
			text: "Retried 17 times over 300 seconds",
			want: []string{"retried", "<NUM>", "times", "over", "<NUM>", "seconds"},
		},
		{
			name: "event references removed",
			text: "High error rate (events [1], [2], [3]) on api gateway",
			want: []string{"high", "error", "rate", "api", "gateway"},
		},
		{
			name: "domain stop words dropped",
			text: "Anomaly detected requiring immediate attention indicating overall risk",
			want: []string{"anomaly", "requiring", "risk"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := Fingerprint("disk full on web-01 volume root")
	b := Fingerprint("volume root disk full on web-01")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprintIgnoresVolatileNumbers(t *testing.T) {
	a := Fingerprint("Disk /dev/sda1 at 95% (host web-01)")
	b := Fingerprint("Disk /dev/sda1 at 96% (host web-01)")
	assert.Equal(t, a, b)
}

func TestFingerprintDistinctTexts(t *testing.T) {
	a := Fingerprint("disk full on web-01")
	b := Fingerprint("out of memory on db-02")
	assert.NotEqual(t, a, b)
}
