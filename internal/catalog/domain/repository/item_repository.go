package repository

import (
	"context"

	"catalog-service/internal/catalog/domain/model"
)

// ItemRepository persists catalog items. Ids are raw client strings and
// malformed ones fail with an InvalidID error.
type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	List(ctx context.Context, query model.ListQuery) ([]model.Item, error)
	// Count ignores the query's sort and limit.
	Count(ctx context.Context, query model.ListQuery) (int64, error)
	Get(ctx context.Context, id string) (*model.Item, error)
	// Update and Delete return the number of records touched, 0 or 1.
	Update(ctx context.Context, id string, fields map[string]interface{}) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
}
