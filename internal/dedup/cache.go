package dedup

import "github.com/roadside-data/capture.report/internal/monitoring"

// Cache is a bounded, insertion-ordered store of recent fingerprints. It is
// owned by a single pipeline instance and is not safe for concurrent use.
//
// Eviction is FIFO, not LRU: a frequently re-seen vehicle is never refreshed
// to the back of the queue, so the cache approximates "forget captures older
// than capacity x capture-interval seconds".
type Cache struct {
	capacity  int
	threshold float64
	entries   []Fingerprint
}

// NewCache returns a Cache holding at most capacity fingerprints, classifying
// a candidate as duplicate when its similarity to any cached entry exceeds
// threshold.
func NewCache(capacity int, threshold float64) *Cache {
	return &Cache{
		capacity: capacity,
		// similarity in (threshold, 1] means duplicate
		threshold: threshold,
		entries:   make([]Fingerprint, 0, capacity),
	}
}

// IsDuplicate reports whether fp is a near-duplicate of any cached
// fingerprint. When it is not, fp is appended to the cache as a side effect,
// evicting the oldest entry if the cache is over capacity. Duplicates are
// never inserted.
func (c *Cache) IsDuplicate(fp Fingerprint) bool {
	for _, cached := range c.entries {
		if sim := cached.Similarity(fp); sim > c.threshold {
			monitoring.Debugf("[Dedup] duplicate: %.1f%% similar to cached capture", sim*100)
			return true
		}
	}

	c.entries = append(c.entries, fp)
	if len(c.entries) > c.capacity {
		c.entries = c.entries[1:]
	}
	return false
}

// Len returns the number of cached fingerprints.
func (c *Cache) Len() int {
	return len(c.entries)
}
