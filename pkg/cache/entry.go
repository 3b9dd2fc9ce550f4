package cache

import (
	"time"
)

// Entry is a cached complete export page.
type Entry struct {
	// Body is the raw JSON response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// RowCount is the number of rows on the page, kept for metrics.
	RowCount int `json:"row_count"`

	// StoredAt is when the page was cached.
	StoredAt time.Time `json:"stored_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry creates an entry expiring ttl from now.
func NewEntry(body []byte, statusCode, rowCount int, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Body:       body,
		StatusCode: statusCode,
		RowCount:   rowCount,
		StoredAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
