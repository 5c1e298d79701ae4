package alerts

import (
	"sync"
	"time"
)

// dedupStore remembers recently sent alerts so a flapping tenant cannot spam
// the operator channel.
type dedupStore struct {
	mu      sync.Mutex
	records map[string]dedupRecord
	window  time.Duration
}

type dedupRecord struct {
	sentAt time.Time
	count  int
}

func newDedupStore(window time.Duration) *dedupStore {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &dedupStore{
		records: make(map[string]dedupRecord),
		window:  window,
	}
}

// IsDuplicate reports whether the key was sent within the window.
func (d *dedupStore) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.records[key]
	return ok && time.Since(record.sentAt) < d.window
}

// Record marks the key as sent and prunes expired entries while it holds the
// lock anyway.
func (d *dedupStore) Record(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, r := range d.records {
		if now.Sub(r.sentAt) > d.window {
			delete(d.records, k)
		}
	}

	record := d.records[key]
	record.sentAt = now
	record.count++
	d.records[key] = record
}

// Size returns the number of tracked keys.
func (d *dedupStore) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}
