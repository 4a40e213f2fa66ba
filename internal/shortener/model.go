package shortener

import "time"

// Link is the durable mapping from a short code to its original URL.
// OriginalURL and ShortCode never change after insert.
type Link struct {
	ID          int64
	OriginalURL string
	ShortCode   string
	Visits      int64
	CreatedAt   time.Time
}

// CreateResult is the outcome of Service.Create. Created is false when an
// existing mapping for the URL was returned.
type CreateResult struct {
	ShortCode string
	ShortURL  string
	Created   bool
}
