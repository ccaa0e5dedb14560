package database

import (
	"gorm.io/gorm"

	"github.com/hector-minka/collections-bridge/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Collection{},
		&domain.ProcessedEvent{},
	)
}
