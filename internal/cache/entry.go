package cache

import "time"

// Entry is a stored payload along with the moment it was stored and its lifetime.
// TTL is fixed at insertion.
type Entry struct {
	Payload  any
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// ExpiresAt is the last instant at which the entry is still served.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}
