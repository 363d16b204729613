package normalizer

import (
	"strings"
	"sync"
	"time"
)

// Cross-batch fragment buffer bounds: ~5 MB worst case.
const (
	fragmentTTL        = 10 * time.Second
	maxBufferKeys      = 500
	maxFragmentsPerKey = 30
	headMatchTolerance = 5 * time.Second
)

type bufferedFragment struct {
	entry   map[string]any
	message string
	ts      time.Time
	addedAt time.Time
}

type fragmentGroup struct {
	fragments []bufferedFragment
	firstSeen time.Time
}

// Reassembler holds the cross-batch multiline state. Ingest handlers may run
// concurrently, so buffer access is mutex-guarded; expired fragments are
// purged lazily on every call.
type Reassembler struct {
	mu     sync.Mutex
	buffer map[string]*fragmentGroup
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{buffer: make(map[string]*fragmentGroup)}
}

// mergeFragments is methods 3 and 4: same-second fragment merging within the
// batch, then reconciliation with the cross-batch buffer. Returns buffered
// entries released by TTL expiry.
func (r *Reassembler) mergeFragments(batch []*batchEntry, now time.Time) []map[string]any {
	type group struct {
		key     string
		entries []*batchEntry
	}
	groups := make(map[string]*group)
	var order []*group

	for _, be := range batch {
		if be.consumed {
			continue
		}
		key := be.host + "\x00" + be.program + "\x00" + be.ts.UTC().Format("2006-01-02T15:04:05")
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, g)
		}
		g.entries = append(g.entries, be)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	released := r.purgeExpired(now)

	for _, g := range order {
		var head *batchEntry
		var leading []string // fragments before the first head
		absorbed := 0

		for _, be := range g.entries {
			switch {
			case isHead(be.message):
				if head == nil && len(leading) > 0 {
					be.message = joinFragments(leading, be.message)
					leading = nil
				}
				head = be
				absorbed = 0
			case isFragment(be.message):
				if head == nil {
					leading = append(leading, be.message)
					be.consumed = true
					continue
				}
				if absorbed >= maxFragmentsPerHead {
					continue
				}
				head.message += "\n" + be.message
				be.consumed = true
				absorbed++
			}
		}

		bufferKey := keyPrefix(g.key)
		if head != nil {
			// A head arrived: pull matching buffered fragments from earlier
			// batches when their timestamps are close enough.
			if fg, ok := r.buffer[bufferKey]; ok {
				var kept []bufferedFragment
				var pulled []string
				for _, f := range fg.fragments {
					if within(f.ts, head.ts, headMatchTolerance) {
						pulled = append(pulled, f.message)
					} else {
						kept = append(kept, f)
					}
				}
				if len(pulled) > 0 {
					head.message = joinFragments(pulled, head.message)
				}
				if len(kept) == 0 {
					delete(r.buffer, bufferKey)
				} else {
					fg.fragments = kept
				}
			}
			// Leading fragments with no head were folded above; anything left
			// in `leading` belongs to a headless group handled below.
		}
		if head == nil && len(leading) > 0 {
			r.park(bufferKey, g.entries, leading, now)
		}
	}

	return released
}

// park stores orphan fragments for a later batch's head. Silently drops
// fragments beyond capacity.
func (r *Reassembler) park(key string, entries []*batchEntry, messages []string, now time.Time) {
	fg, ok := r.buffer[key]
	if !ok {
		if len(r.buffer) >= maxBufferKeys {
			r.evictOldestKey()
		}
		fg = &fragmentGroup{firstSeen: now}
		r.buffer[key] = fg
	}
	i := 0
	for _, be := range entries {
		if !be.consumed || i >= len(messages) {
			continue
		}
		if len(fg.fragments) >= maxFragmentsPerKey {
			return
		}
		fg.fragments = append(fg.fragments, bufferedFragment{
			entry:   be.entry,
			message: messages[i],
			ts:      be.ts,
			addedAt: now,
		})
		i++
	}
}

// purgeExpired releases fragments past their TTL as standalone entries.
func (r *Reassembler) purgeExpired(now time.Time) []map[string]any {
	var released []map[string]any
	for key, fg := range r.buffer {
		var kept []bufferedFragment
		for _, f := range fg.fragments {
			if now.Sub(f.addedAt) > fragmentTTL {
				f.entry["message"] = f.message
				released = append(released, f.entry)
			} else {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			delete(r.buffer, key)
		} else {
			fg.fragments = kept
		}
	}
	return released
}

// evictOldestKey drops the FIFO-oldest key when the key cap is hit.
func (r *Reassembler) evictOldestKey() {
	var oldestKey string
	var oldest time.Time
	for key, fg := range r.buffer {
		if oldestKey == "" || fg.firstSeen.Before(oldest) {
			oldestKey = key
			oldest = fg.firstSeen
		}
	}
	if oldestKey != "" {
		delete(r.buffer, oldestKey)
	}
}

// BufferedFragments reports the current buffer size (for tests and metrics).
func (r *Reassembler) BufferedFragments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, fg := range r.buffer {
		n += len(fg.fragments)
	}
	return n
}

// joinFragments prepends fragments to the head in arrival order.
func joinFragments(fragments []string, head string) string {
	return strings.Join(append(append([]string{}, fragments...), head), "\n")
}

// keyPrefix strips the second component from a same-second group key, leaving
// the (host, program) buffer key.
func keyPrefix(groupKey string) string {
	// host \x00 program \x00 second
	last := len(groupKey) - 1
	for i := last; i >= 0; i-- {
		if groupKey[i] == '\x00' {
			return groupKey[:i]
		}
	}
	return groupKey
}

func within(a, b time.Time, d time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d
}
