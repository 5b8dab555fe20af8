package db

import (
	"context"

	"github.com/sidereusnuntius/feather/internal/domain"
)

type URIs interface {
	// SelectAllocatedURI returns the allocation record for uri, or nil with a
	// nil error when the string was never allocated here.
	SelectAllocatedURI(ctx context.Context, uri string) (*domain.URI, error)
	// SelectURIByID returns the allocation record by internal id, or nil with
	// a nil error when absent.
	SelectURIByID(ctx context.Context, id int64) (*domain.URI, error)
}
