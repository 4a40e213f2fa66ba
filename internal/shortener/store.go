package shortener

import "context"

// LinkStore is the durable source of truth for links.
//
// Absence is reported as errx.NotFound, a duplicate short code as
// errx.Conflict, and any other failure as errx.Unavailable.
type LinkStore interface {
	FindByCode(ctx context.Context, code string) (Link, error)
	// FindByURL returns the first link created for url. Several links may
	// share one URL; any of them is a valid answer.
	FindByURL(ctx context.Context, url string) (Link, error)
	Insert(ctx context.Context, url, code string) (Link, error)
	// IncrementVisits adds one to the visit counter with a single atomic
	// update at the store.
	IncrementVisits(ctx context.Context, code string) error
}
