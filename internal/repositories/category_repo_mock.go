package repositories

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"lapak/internal/apperrors"
	"lapak/internal/models"

	"github.com/google/uuid"
)

// MockCategoryRepository is an in-memory implementation of CategoryRepository.
// It honors the same uniqueness and not-found semantics as the GORM
// implementation so services behave identically against either.
type MockCategoryRepository struct {
	categories map[string]models.Category
	mu         sync.RWMutex
}

// NewMockCategoryRepository creates a new instance of MockCategoryRepository.
func NewMockCategoryRepository() *MockCategoryRepository {
	return &MockCategoryRepository{
		categories: make(map[string]models.Category),
	}
}

// GetAll returns all categories, most recently created first.
func (r *MockCategoryRepository) GetAll() ([]models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// GetByID returns a category by its ID.
func (r *MockCategoryRepository) GetByID(id string) (*models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category, ok := r.categories[id]
	if !ok {
		return nil, fmt.Errorf("category with ID %s: %w", id, apperrors.ErrNotFound)
	}
	return &category, nil
}

// GetByName returns a category by its name.
func (r *MockCategoryRepository) GetByName(name string) (*models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.categories {
		if c.Name == name {
			category := c
			return &category, nil
		}
	}
	return nil, fmt.Errorf("category with name %s: %w", name, apperrors.ErrNotFound)
}

// Create adds a new category, rejecting duplicate names.
func (r *MockCategoryRepository) Create(category *models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.categories {
		if c.Name == category.Name {
			return apperrors.NewConflict("name", category.Name)
		}
	}
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now()
	}
	category.UpdatedAt = time.Now()
	r.categories[category.ID] = *category
	return nil
}

// Update modifies an existing category.
func (r *MockCategoryRepository) Update(category *models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.categories[category.ID]
	if !ok {
		return fmt.Errorf("category with ID %s: %w", category.ID, apperrors.ErrNotFound)
	}
	category.UpdatedAt = time.Now()
	r.categories[category.ID] = *category
	return nil
}

// Delete removes a category by its ID.
func (r *MockCategoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.categories[id]
	if !ok {
		return fmt.Errorf("category with ID %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.categories, id)
	return nil
}
