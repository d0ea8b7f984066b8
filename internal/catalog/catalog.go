package catalog

import (
	"context"
	"fmt"

	authhttp "catalog-service/internal/auth/adapter/http"
	cataloghttp "catalog-service/internal/catalog/adapter/http"
	"catalog-service/internal/catalog/adapter/persistence/mongodb"
	"catalog-service/internal/catalog/config"
	"catalog-service/internal/catalog/policy"
	"catalog-service/internal/catalog/usecase"
	"catalog-service/internal/shared/docstore"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the shared resources the catalog module is built on.
type Dependencies struct {
	Items  docstore.CollectionInterface
	Visits usecase.VisitCounter
	Events eventbus.Publisher
	Logger logger.Logger
}

// CatalogModule wires the item CRUD context.
type CatalogModule struct {
	usecase *usecase.ItemUsecase
	handler *cataloghttp.ItemHTTPHandler
}

// NewCatalogModule compiles the access policy and builds the module. An
// invalid policy is a start-up error.
func NewCatalogModule(ctx context.Context, cfg *config.Config, deps Dependencies) (*CatalogModule, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	access, err := policy.New(cfg.ItemsPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid items policy: %w", err)
	}

	repo, err := mongodb.NewMongoItemRepository(ctx, deps.Items, cfg.ItemsCollection, log)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewItemUsecase(repo, deps.Visits, deps.Events, cfg.ListLimit, log)
	log.WithFields(map[string]interface{}{
		"collection": cfg.ItemsCollection,
		"policy":     access.String(),
	}).Info("catalog module initialized")

	return &CatalogModule{
		usecase: uc,
		handler: cataloghttp.NewItemHTTPHandler(uc, access, log),
	}, nil
}

// RegisterRoutes mounts /items behind mw.
func (m *CatalogModule) RegisterRoutes(router fiber.Router, mw *authhttp.AuthMiddleware) {
	m.handler.RegisterRoutes(router, mw)
}

// GetUsecase returns the item usecase.
func (m *CatalogModule) GetUsecase() usecase.ItemUsecaseInterface {
	return m.usecase
}
