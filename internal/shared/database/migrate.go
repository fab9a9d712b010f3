package database

import (
	"shelfmate/internal/users"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&users.User{}); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
