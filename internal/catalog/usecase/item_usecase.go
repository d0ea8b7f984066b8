package usecase

import (
	"context"
	"strings"

	"catalog-service/internal/catalog/domain/model"
	"catalog-service/internal/catalog/domain/repository"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/pipeline"
)

// ViewsKey is the session payload counter bumped by every list request.
const ViewsKey = "catalog_views"

// VisitCounter atomically bumps a counter in the caller's session.
type VisitCounter interface {
	Increment(ctx context.Context, token, key string, delta int64) (int64, error)
}

// ItemUsecaseInterface defines the catalog operations.
type ItemUsecaseInterface interface {
	Create(ctx context.Context, input model.ItemInput) (*CreateResult, error)
	List(ctx context.Context, query model.ListQuery, sessionToken string) (*ListPage, error)
	Get(ctx context.Context, id string) (*model.Item, error)
	Update(ctx context.Context, id string, patch model.ItemPatch) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// CreateResult is the new item and the listing read after it was stored.
type CreateResult struct {
	Item  *model.Item  `json:"item"`
	Items []model.Item `json:"items"`
}

// ListPage is a listing plus the caller's view count, 0 when anonymous.
// Total counts every match, including those cut by the limit.
type ListPage struct {
	Items []model.Item `json:"items"`
	Total int64        `json:"total"`
	Views int64        `json:"views"`
}

// ItemUsecase implements the catalog CRUD flows.
type ItemUsecase struct {
	repo      repository.ItemRepository
	visits    VisitCounter
	events    eventbus.Publisher
	logger    logger.Logger
	listLimit int64
}

// NewItemUsecase creates the catalog usecase. visits and events may be nil.
func NewItemUsecase(repo repository.ItemRepository, visits VisitCounter, events eventbus.Publisher, listLimit int64, log logger.Logger) *ItemUsecase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ItemUsecase{
		repo:      repo,
		visits:    visits,
		events:    events,
		logger:    log.WithComponent("item_usecase"),
		listLimit: listLimit,
	}
}

// Create stores a new item and then lists the catalog. The listing step only
// starts after the insert finished, so it always contains the new item.
func (uc *ItemUsecase) Create(ctx context.Context, input model.ItemInput) (*CreateResult, error) {
	item := &model.Item{
		Title:  strings.TrimSpace(input.Title),
		Artist: strings.TrimSpace(input.Artist),
	}
	if item.Title == "" {
		return nil, apperrors.NewValidationError("title is required").WithComponent("item_usecase")
	}

	return pipeline.Await(ctx, func(ctx context.Context) (*CreateResult, error) {
		result := &CreateResult{Item: item}
		err := pipeline.Sequence(ctx,
			pipeline.Step{Name: "insert item", Run: func(ctx context.Context) error {
				return uc.repo.Create(ctx, item)
			}},
			pipeline.Step{Name: "list items", Run: func(ctx context.Context) error {
				items, err := uc.repo.List(ctx, model.ListQuery{Limit: uc.listLimit})
				result.Items = items
				return err
			}},
		)
		if err != nil {
			return nil, err
		}
		uc.publish(ctx, eventbus.EventTypeItemCreated, item.ID.Hex())
		return result, nil
	})
}

// List reads items, counts matches and bumps the caller's view counter concurrently.
func (uc *ItemUsecase) List(ctx context.Context, query model.ListQuery, sessionToken string) (*ListPage, error) {
	if query.Limit <= 0 || query.Limit > uc.listLimit {
		query.Limit = uc.listLimit
	}

	return pipeline.Await(ctx, func(ctx context.Context) (*ListPage, error) {
		items, total, views, err := pipeline.Join3(ctx,
			func(ctx context.Context) ([]model.Item, error) {
				return uc.repo.List(ctx, query)
			},
			func(ctx context.Context) (int64, error) {
				return uc.repo.Count(ctx, query)
			},
			func(ctx context.Context) (int64, error) {
				return uc.countView(ctx, sessionToken)
			},
		)
		if err != nil {
			return nil, err
		}
		return &ListPage{Items: items, Total: total, Views: views}, nil
	})
}

func (uc *ItemUsecase) countView(ctx context.Context, token string) (int64, error) {
	if token == "" || uc.visits == nil {
		return 0, nil
	}
	n, err := uc.visits.Increment(ctx, token, ViewsKey, 1)
	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.ErrorTypeBackendUnavailable, apperrors.ErrorTypeTimeout:
			return 0, err
		}
		// Session gone since the gate ran.
		uc.logger.WithContext(ctx).Debugf("view not counted: %v", err)
		return 0, nil
	}
	return n, nil
}

// Get returns one item. A well-formed id with no record is a NotFound error.
func (uc *ItemUsecase) Get(ctx context.Context, id string) (*model.Item, error) {
	return pipeline.Await(ctx, func(ctx context.Context) (*model.Item, error) {
		item, err := uc.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apperrors.NewNotFoundError("item").WithCause(model.ErrItemNotFound)
		}
		return item, nil
	})
}

// Update applies patch to the item with id and returns the matched count.
func (uc *ItemUsecase) Update(ctx context.Context, id string, patch model.ItemPatch) (int64, error) {
	n, err := pipeline.Await(ctx, func(ctx context.Context) (int64, error) {
		return uc.repo.Update(ctx, id, patch.Fields())
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.publish(ctx, eventbus.EventTypeItemUpdated, id)
	}
	return n, nil
}

// Delete removes the item with id and returns the deleted count.
func (uc *ItemUsecase) Delete(ctx context.Context, id string) (int64, error) {
	n, err := pipeline.Await(ctx, func(ctx context.Context) (int64, error) {
		return uc.repo.Delete(ctx, id)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.publish(ctx, eventbus.EventTypeItemDeleted, id)
	}
	return n, nil
}

func (uc *ItemUsecase) publish(ctx context.Context, eventType, itemID string) {
	if uc.events == nil {
		return
	}
	uc.events.PublishAndForget(ctx, eventbus.NewBasicEvent(eventType, "item_usecase", map[string]interface{}{
		"item_id": itemID,
	}))
}
