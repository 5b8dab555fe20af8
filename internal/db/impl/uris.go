package impl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sidereusnuntius/feather/internal/domain"
)

func (d *dbImpl) SelectAllocatedURI(ctx context.Context, uri string) (*domain.URI, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, allocated FROM uris WHERE uri = ? AND allocated", uri)

	record := domain.URI{URI: uri}
	err := row.Scan(&record.ID, &record.Allocated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.HandleError(err)
	}
	return &record, nil
}

func (d *dbImpl) SelectURIByID(ctx context.Context, id int64) (*domain.URI, error) {
	row := d.db.QueryRowContext(ctx, "SELECT uri, allocated FROM uris WHERE id = ?", id)

	record := domain.URI{ID: id}
	err := row.Scan(&record.URI, &record.Allocated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.HandleError(err)
	}
	return &record, nil
}
