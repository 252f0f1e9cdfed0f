// Package category implements the Category/Preference Service: thin CRUD
// over the Metadata Store for categories and per-user notification
// preferences, grounded in the same prepared-statement style as the store
// package's session CRUD.
package category

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/store"
)

// Service is the Category/Preference Service.
type Service struct {
	st *store.Store
}

// NewService constructs a Category/Preference Service over st.
func NewService(st *store.Store) *Service {
	return &Service{st: st}
}

// Create assigns sort_order = max+1 and inserts the category.
func (s *Service) Create(name, ownerID string) (store.Category, error) {
	trimmed, err := validateCategoryName(name)
	if err != nil {
		return store.Category{}, err
	}
	maxOrder, err := s.st.MaxCategorySortOrder()
	if err != nil {
		return store.Category{}, apierr.Wrap(apierr.TransientStore, "compute category sort order", err)
	}
	c := store.Category{
		ID: uuid.New().String(), Name: trimmed, SortOrder: maxOrder + 1,
		OwnerID: ownerID, CreatedAt: time.Now(),
	}
	if err := s.st.InsertCategory(c); err != nil {
		return store.Category{}, apierr.Wrap(apierr.TransientStore, "insert category", err)
	}
	return c, nil
}

// Rename durably updates a category's name.
func (s *Service) Rename(id, name string) (store.Category, error) {
	trimmed, err := validateCategoryName(name)
	if err != nil {
		return store.Category{}, err
	}
	c, err := s.st.GetCategory(id)
	if err != nil {
		return store.Category{}, apierr.New(apierr.NotFound, "category not found")
	}
	c.Name = trimmed
	if err := s.st.UpdateCategory(c); err != nil {
		return store.Category{}, apierr.Wrap(apierr.TransientStore, "rename category", err)
	}
	return c, nil
}

// SetCollapsed durably updates a category's collapsed flag.
func (s *Service) SetCollapsed(id string, collapsed bool) (store.Category, error) {
	c, err := s.st.GetCategory(id)
	if err != nil {
		return store.Category{}, apierr.New(apierr.NotFound, "category not found")
	}
	c.Collapsed = collapsed
	if err := s.st.UpdateCategory(c); err != nil {
		return store.Category{}, apierr.Wrap(apierr.TransientStore, "update category", err)
	}
	return c, nil
}

// Get returns a single category by id.
func (s *Service) Get(id string) (store.Category, error) {
	c, err := s.st.GetCategory(id)
	if err != nil {
		return store.Category{}, apierr.New(apierr.NotFound, "category not found")
	}
	return c, nil
}

// List returns every category in display order.
func (s *Service) List() ([]store.Category, error) {
	cats, err := s.st.ListCategories()
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientStore, "list categories", err)
	}
	return cats, nil
}

// Delete removes a category; sessions that referenced it are uncategorized
// rather than deleted (DeleteCategory does both in a single transaction).
func (s *Service) Delete(id string) error {
	if _, err := s.st.GetCategory(id); err != nil {
		return apierr.New(apierr.NotFound, "category not found")
	}
	if err := s.st.DeleteCategory(id); err != nil {
		return apierr.Wrap(apierr.TransientStore, "delete category", err)
	}
	return nil
}

// Reorder applies a full set of (id, sortOrder) updates atomically.
func (s *Service) Reorder(order map[string]int) error {
	if err := s.st.ReorderCategories(order); err != nil {
		return apierr.Wrap(apierr.TransientStore, "reorder categories", err)
	}
	return nil
}

// GetPreferences returns userID's notification preferences, defaulting
// every field to true if none have been set yet.
func (s *Service) GetPreferences(userID string) (store.Preferences, error) {
	p, err := s.st.GetPreferences(userID)
	if err != nil {
		return store.Preferences{}, apierr.Wrap(apierr.TransientStore, "get preferences", err)
	}
	return p, nil
}

// SetPreferences upserts and echoes back the stored record.
func (s *Service) SetPreferences(p store.Preferences) (store.Preferences, error) {
	if err := s.st.UpsertPreferences(p); err != nil {
		return store.Preferences{}, apierr.Wrap(apierr.TransientStore, "set preferences", err)
	}
	return s.st.GetPreferences(p.UserID)
}

func validateCategoryName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apierr.New(apierr.InvalidInput, "category name must not be empty")
	}
	if len(trimmed) > 100 {
		return "", apierr.New(apierr.InvalidInput, "category name must be at most 100 characters")
	}
	return trimmed, nil
}
