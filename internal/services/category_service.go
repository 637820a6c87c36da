package services

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"lapak/internal/apperrors"
	"lapak/internal/models"
	"lapak/internal/repositories"
	"lapak/pkg/assets"
	"lapak/pkg/rabbitmq"
)

// CategoryView is the API projection of a category; Image is the public asset
// path, or nil when no image is stored.
type CategoryView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ItemCount int       `json:"item_count"`
	Image     *string   `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryService handles business logic for categories, coordinating the
// repository with the asset store for uploaded images.
type CategoryService struct {
	repo     repositories.CategoryRepository
	assets   *assets.Store
	mqClient *rabbitmq.Client
}

// NewCategoryService creates a new CategoryService. mqClient may be nil when
// no broker is configured; events are then skipped.
func NewCategoryService(repo repositories.CategoryRepository, store *assets.Store, mqClient *rabbitmq.Client) *CategoryService {
	return &CategoryService{
		repo:     repo,
		assets:   store,
		mqClient: mqClient,
	}
}

// List retrieves all categories, most recently created first.
func (s *CategoryService) List() ([]CategoryView, error) {
	categories, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	views := make([]CategoryView, 0, len(categories))
	for i := range categories {
		views = append(views, s.view(&categories[i]))
	}
	return views, nil
}

// Get retrieves a single category by its ID.
func (s *CategoryService) Get(id string) (*CategoryView, error) {
	category, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	view := s.view(category)
	return &view, nil
}

// Create validates and inserts a new category. When an upload is present it
// is vetted and written by the asset store before the row is inserted, so a
// rejected file never leaves a row behind and vice versa.
func (s *CategoryService) Create(name string, itemCount int, upload *multipart.FileHeader) (*CategoryView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", apperrors.ErrValidation)
	}
	if itemCount < 0 {
		return nil, fmt.Errorf("item count must not be negative: %w", apperrors.ErrValidation)
	}

	if _, err := s.repo.GetByName(name); err == nil {
		return nil, apperrors.NewConflict("name", name)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check category name: %w", err)
	}

	var filename string
	if upload != nil {
		var err error
		filename, err = s.assets.Save(upload, "image")
		if err != nil {
			return nil, err
		}
	}

	category := &models.Category{
		Name:      name,
		ItemCount: itemCount,
		Image:     filename,
	}
	if err := s.repo.Create(category); err != nil {
		// Don't orphan the file when the insert loses a race or fails.
		if filename != "" {
			if cleanupErr := s.assets.Delete(filename); cleanupErr != nil {
				log.Printf("Warning: failed to clean up asset %s: %v", filename, cleanupErr)
			}
		}
		return nil, err
	}

	s.publish("category.created", map[string]interface{}{
		"categoryID": category.ID,
		"name":       category.Name,
	})

	view := s.view(category)
	return &view, nil
}

// Update applies a partial update: nil fields keep their previous values. An
// uploaded image replaces the stored reference, but the old file stays on
// disk; only category deletion cleans up files.
func (s *CategoryService) Update(id string, name *string, itemCount *int, upload *multipart.FileHeader) (*CategoryView, error) {
	category, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, fmt.Errorf("category name must not be empty: %w", apperrors.ErrValidation)
		}
		category.Name = trimmed
	}
	if itemCount != nil {
		if *itemCount < 0 {
			return nil, fmt.Errorf("item count must not be negative: %w", apperrors.ErrValidation)
		}
		category.ItemCount = *itemCount
	}
	if upload != nil {
		filename, err := s.assets.Save(upload, "image")
		if err != nil {
			return nil, err
		}
		category.Image = filename
	}

	// Save refreshes updated_at even when no field changed.
	if err := s.repo.Update(category); err != nil {
		return nil, err
	}

	view := s.view(category)
	return &view, nil
}

// Delete removes a category and its backing image file. A file already gone
// from disk is tolerated; only the row deletion decides success.
func (s *CategoryService) Delete(id string) error {
	category, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	if category.Image != "" {
		if err := s.assets.Delete(category.Image); err != nil {
			log.Printf("Warning: failed to delete asset %s for category %s: %v", category.Image, id, err)
		}
	}

	s.publish("category.deleted", map[string]interface{}{
		"categoryID": category.ID,
		"name":       category.Name,
	})

	return nil
}

// publish sends a catalog event best-effort; a broker failure is logged and
// never fails the request.
func (s *CategoryService) publish(event string, payload map[string]interface{}) {
	if s.mqClient == nil {
		return
	}
	if err := s.mqClient.PublishCatalogEvent(event, payload); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event, err)
	}
}

func (s *CategoryService) view(c *models.Category) CategoryView {
	v := CategoryView{
		ID:        c.ID,
		Name:      c.Name,
		ItemCount: c.ItemCount,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Image != "" {
		resolved := s.assets.Resolve(c.Image)
		v.Image = &resolved
	}
	return v
}
