package domain

import "time"

// StoreStatus represents whether a store may run jobs.
type StoreStatus string

const (
	StoreStatusActive   StoreStatus = "active"
	StoreStatusInactive StoreStatus = "inactive"
)

// Store is a tenant: one installed Shopify shop and its offline access token.
type Store struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Shop        string      `gorm:"type:text;not null;uniqueIndex:idx_stores_shop" json:"shop"`
	AccessToken string      `gorm:"type:text;not null" json:"-"`
	Status      StoreStatus `gorm:"type:text;not null;default:active" json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// TableName returns the database table name for Store.
func (Store) TableName() string {
	return "stores"
}

// IsActive reports whether the store may start new jobs.
func (s *Store) IsActive() bool {
	return s.Status == StoreStatusActive
}
