package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/bulkgen/internal/domain"
	"gorm.io/gorm"
)

// StoreRepository reads tenant stores and their offline credentials.
type StoreRepository struct {
	db *gorm.DB
}

// NewStoreRepository creates a new StoreRepository.
func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// GetByID retrieves a store by its ID.
// Returns domain.ErrStoreNotFound if the id is unknown.
func (r *StoreRepository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	var store domain.Store
	if err := r.db.WithContext(ctx).First(&store, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStoreNotFound
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &store, nil
}

// Save creates or updates a store.
func (r *StoreRepository) Save(ctx context.Context, store *domain.Store) error {
	return r.db.WithContext(ctx).Save(store).Error
}
