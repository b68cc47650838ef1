package index

import "time"

// Match is the result of a similarity search.
type Match struct {
	Key   string
	Value any
	Score float32
}

// BestMatch scans every live embedding and returns the entry most similar to
// query, provided its cosine similarity is at least threshold (inclusive).
// Entries whose TTL has lapsed at now are skipped but not removed; the sweep
// reclaims them. On a floating-point score tie the more recently created
// entry wins.
//
// The scan runs under the shared lock, so concurrent scans proceed in
// parallel; the winner's recency bump re-resolves the key under the
// exclusive lock because a concurrent swap-remove may have moved it.
func (ix *Index) BestMatch(query []float32, threshold float32, now time.Time) (Match, bool) {
	if len(query) != ix.dim {
		return Match{}, false
	}

	ix.mu.RLock()
	var (
		found     bool
		bestSlot  int
		bestScore float32
	)
	for slot := range ix.keys {
		m := &ix.metas[slot]
		if now.After(m.expires) {
			continue
		}
		score := Dot(query, ix.vec(slot))
		if score < threshold {
			continue
		}
		switch {
		case !found, score > bestScore:
			found, bestSlot, bestScore = true, slot, score
		case score == bestScore && m.created.After(ix.metas[bestSlot].created):
			bestSlot = slot
		}
	}
	if !found {
		ix.mu.RUnlock()
		return Match{}, false
	}
	match := Match{
		Key:   ix.keys[bestSlot],
		Value: ix.metas[bestSlot].value,
		Score: bestScore,
	}
	ix.mu.RUnlock()

	ix.Touch(match.Key, now)
	return match, true
}
