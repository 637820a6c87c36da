package models

import "gorm.io/gorm"

// Category represents a product category. Image holds the stored asset
// filename, not a public URL; resolution happens at the API boundary.
type Category struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name       string `json:"name" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=1,max=100"`
	ItemCount  int    `json:"item_count" validate:"gte=0"`
	Image      string `json:"image" gorm:"type:varchar(255)"`
	gorm.Model        // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}
