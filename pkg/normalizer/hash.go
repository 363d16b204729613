package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// ComputeHash fills the event's normalized hash: SHA-256 over the
// null-byte-joined normalized fields. Called after redaction so the hash
// reflects stored content; together with the timestamp it forms the
// store-level dedup key.
func ComputeHash(ev *models.Event) {
	fields := []string{
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Message,
		ev.Host,
		ev.SourceIP,
		ev.Service,
		ev.Program,
		ev.Facility,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	ev.NormalizedHash = hex.EncodeToString(sum[:])
}
