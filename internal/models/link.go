package models

import "time"

// ClickHistoryLimit is the number of most recent clicks retained per link.
// ClickCount keeps counting past this limit; only the history is truncated.
const ClickHistoryLimit = 100

// Click is one recorded visit to a short code.
type Click struct {
	// Timestamp is the moment the click was recorded.
	Timestamp time.Time `json:"timestamp"`
	// UserAgent is the optional client user-agent string.
	UserAgent string `json:"userAgent,omitempty"`
	// Referrer is the optional referrer of the visit.
	Referrer string `json:"referrer,omitempty"`
}

// LinkRecord represents a shortened URL and its click-accounting state.
//
// The JSON field names follow the snapshot layout persisted under the
// "shortened-urls" key.
type LinkRecord struct {
	// ID is the opaque unique identifier assigned at creation.
	ID string `json:"id"`
	// OriginalURL is the full URL that the short code resolves to.
	OriginalURL string `json:"originalUrl"`
	// ShortCode is the unique 3-20 character alphanumeric token.
	ShortCode string `json:"shortCode"`
	// IsCustomCode records whether the code was caller-supplied.
	IsCustomCode bool `json:"isCustomCode"`
	// CreatedAt is the timestamp when the link was created.
	CreatedAt time.Time `json:"createdAt"`
	// ClickCount is the total number of clicks ever recorded.
	ClickCount int64 `json:"clickCount"`
	// LastAccessedAt is set on the first click and updated on each one after.
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	// ClickHistory holds the most recent clicks, oldest first.
	ClickHistory []Click `json:"clickHistory"`
}

// Clone returns a deep copy of the record. The registry hands out clones so
// callers cannot mutate its state in place.
func (r *LinkRecord) Clone() *LinkRecord {
	clone := *r

	if r.LastAccessedAt != nil {
		t := *r.LastAccessedAt
		clone.LastAccessedAt = &t
	}

	clone.ClickHistory = make([]Click, len(r.ClickHistory))
	copy(clone.ClickHistory, r.ClickHistory)

	return &clone
}

// Stats contains aggregate statistics over all registered links.
type Stats struct {
	// TotalURLs is the number of registered links.
	TotalURLs int
	// TotalClicks is the sum of ClickCount over all links.
	TotalClicks int64
	// TopURLs holds up to ten links with at least one click,
	// sorted by ClickCount descending, ties broken by CreatedAt descending.
	TopURLs []*LinkRecord
	// RecentActivity holds up to ten links with a recorded access,
	// sorted by LastAccessedAt descending.
	RecentActivity []*LinkRecord
}
