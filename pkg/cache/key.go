package cache

import (
	"fmt"
	"strings"
)

// Key identifies one export page: the date range plus the pagination
// position. Two requests for the same range and position are
// interchangeable because exports are read-only.
type Key struct {
	// From and To are the range boundaries in yyyy-MM-dd form.
	From string
	To   string

	// PageSize is the requested rows per page.
	PageSize int

	// Offset is the row offset for offset-based pagination.
	Offset int

	// Token is the continuation token for cursor-based pagination.
	// When set it takes the place of Offset in the key.
	Token string
}

// String generates a deterministic cache key string.
// Format: export:from:to:size=N:offset=N (or token=T for cursor pages)
//
// Example:
//
//	export:2024-01-01:2024-01-31:size=1000:offset=0
func (k Key) String() string {
	parts := []string{"export", k.From, k.To, fmt.Sprintf("size=%d", k.PageSize)}

	if k.Token != "" {
		parts = append(parts, fmt.Sprintf("token=%s", k.Token))
	} else {
		parts = append(parts, fmt.Sprintf("offset=%d", k.Offset))
	}

	return strings.Join(parts, ":")
}
