package handlers

import (
	"log"
	"mime/multipart"
	"strconv"

	"lapak/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CategoryHandler handles HTTP requests for categories. Create and update
// accept multipart forms so an image can ride along with the fields.
type CategoryHandler struct {
	service *services.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(service *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{
		service: service,
	}
}

// RegisterRoutes registers the category routes with the Fiber app.
func (h *CategoryHandler) RegisterRoutes(router fiber.Router) {
	categoryRoutes := router.Group("/categories")
	categoryRoutes.Get("/", h.HandleList)
	categoryRoutes.Get("/:id", h.HandleGet)
	categoryRoutes.Post("/", h.HandleCreate)
	categoryRoutes.Put("/:id", h.HandleUpdate)
	categoryRoutes.Delete("/:id", h.HandleDelete)
}

// HandleList retrieves all categories, most recently created first.
func (h *CategoryHandler) HandleList(c *fiber.Ctx) error {
	categories, err := h.service.List()
	if err != nil {
		log.Printf("Error listing categories: %v", err)
		return respondError(c, err)
	}
	return c.JSON(categories)
}

// HandleGet retrieves a single category by its ID.
func (h *CategoryHandler) HandleGet(c *fiber.Ctx) error {
	category, err := h.service.Get(c.Params("id"))
	if err != nil {
		log.Printf("Error getting category %s: %v", c.Params("id"), err)
		return respondError(c, err)
	}
	return c.JSON(category)
}

// HandleCreate creates a new category from a multipart form with fields
// "name", "item_count" and an optional "image" file.
func (h *CategoryHandler) HandleCreate(c *fiber.Ctx) error {
	name := c.FormValue("name")

	itemCount := 0
	if raw := c.FormValue("item_count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "item_count must be an integer",
			})
		}
		itemCount = parsed
	}

	category, err := h.service.Create(name, itemCount, formFile(c, "image"))
	if err != nil {
		log.Printf("Error creating category: %v", err)
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(category)
}

// HandleUpdate applies a partial update; form fields left out of the request
// keep their previous values.
func (h *CategoryHandler) HandleUpdate(c *fiber.Ctx) error {
	var name *string
	var itemCount *int

	if form, err := c.MultipartForm(); err == nil && form != nil {
		if values, ok := form.Value["name"]; ok && len(values) > 0 {
			name = &values[0]
		}
		if values, ok := form.Value["item_count"]; ok && len(values) > 0 {
			parsed, err := strconv.Atoi(values[0])
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"message": "item_count must be an integer",
				})
			}
			itemCount = &parsed
		}
	}

	category, err := h.service.Update(c.Params("id"), name, itemCount, formFile(c, "image"))
	if err != nil {
		log.Printf("Error updating category %s: %v", c.Params("id"), err)
		return respondError(c, err)
	}

	return c.JSON(category)
}

// HandleDelete deletes a category and its backing image file.
func (h *CategoryHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Params("id")); err != nil {
		log.Printf("Error deleting category %s: %v", c.Params("id"), err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Category deleted successfully",
	})
}

// formFile returns the named upload, or nil when the request has none.
func formFile(c *fiber.Ctx, field string) *multipart.FileHeader {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return fh
}
