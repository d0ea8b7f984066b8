package http

import (
	"strconv"
	"strings"

	authhttp "catalog-service/internal/auth/adapter/http"
	"catalog-service/internal/catalog/domain/model"
	"catalog-service/internal/catalog/policy"
	"catalog-service/internal/catalog/usecase"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/web"

	"github.com/gofiber/fiber/v2"
)

// ItemHTTPHandler serves the catalog CRUD routes.
type ItemHTTPHandler struct {
	usecase usecase.ItemUsecaseInterface
	policy  *policy.Policy
	logger  logger.Logger
}

// NewItemHTTPHandler creates the catalog handler guarded by p.
func NewItemHTTPHandler(uc usecase.ItemUsecaseInterface, p *policy.Policy, log logger.Logger) *ItemHTTPHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ItemHTTPHandler{usecase: uc, policy: p, logger: log.WithComponent("item_http")}
}

// RegisterRoutes mounts /items. Sessions are resolved when present and the
// access policy decides whether one is required.
func (h *ItemHTTPHandler) RegisterRoutes(router fiber.Router, mw *authhttp.AuthMiddleware) {
	items := router.Group("/items", mw.OptionalAuth(), h.enforcePolicy)
	items.Get("/", h.List)
	items.Post("/", h.Create)
	items.Get("/:id/edit", h.Edit)
	items.Post("/:id", h.Update)
	items.Get("/:id/delete", h.Delete)
}

func (h *ItemHTTPHandler) enforcePolicy(c *fiber.Ctx) error {
	userID, authenticated := authhttp.GetUserID(c)
	allowed, err := h.policy.Allow(policy.Request{
		Method:        c.Method(),
		Path:          c.Path(),
		Authenticated: authenticated,
		UserID:        userID,
	})
	if err != nil {
		h.logger.WithContext(c.UserContext()).Warnf("policy %q failed: %v", h.policy.String(), err)
	}
	if allowed {
		return c.Next()
	}
	if !authenticated {
		return web.Fail(c, fiber.StatusUnauthorized, "not authenticated")
	}
	return web.Fail(c, fiber.StatusForbidden, "forbidden")
}

// List handles GET /items?title=&artist=&sort=[-]field&limit=n.
func (h *ItemHTTPHandler) List(c *fiber.Ctx) error {
	query := model.ListQuery{
		Title:  c.Query("title"),
		Artist: c.Query("artist"),
	}
	if sort := c.Query("sort"); sort != "" {
		query.SortDesc = strings.HasPrefix(sort, "-")
		query.SortBy = strings.TrimPrefix(sort, "-")
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			return web.Fail(c, fiber.StatusBadRequest, "invalid limit")
		}
		query.Limit = limit
	}

	token, _ := authhttp.GetSessionToken(c)
	page, err := h.usecase.List(c.UserContext(), query, token)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Create handles POST /items.
func (h *ItemHTTPHandler) Create(c *fiber.Ctx) error {
	var input model.ItemInput
	if err := c.BodyParser(&input); err != nil {
		return web.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	result, err := h.usecase.Create(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Edit handles GET /items/:id/edit.
func (h *ItemHTTPHandler) Edit(c *fiber.Ctx) error {
	item, err := h.usecase.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"item": item})
}

// Update handles POST /items/:id.
func (h *ItemHTTPHandler) Update(c *fiber.Ctx) error {
	var patch model.ItemPatch
	if err := c.BodyParser(&patch); err != nil {
		return web.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	n, err := h.usecase.Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"matched": n})
}

// Delete handles GET /items/:id/delete.
func (h *ItemHTTPHandler) Delete(c *fiber.Ctx) error {
	n, err := h.usecase.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}
