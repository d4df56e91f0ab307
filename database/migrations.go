package database

import (
	"log/slog"

	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

// RunMigrations brings the schema up to date and reseeds the canonical roles.
func RunMigrations(db *gorm.DB) error {
	common.Logger.Info("running database migrations")

	err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Follow{},
		&models.Post{},
		&models.Comment{},
	)
	if err != nil {
		common.Logger.Error("migrations failed", slog.Any("error", err))
		return err
	}

	if err := models.InsertRoles(db); err != nil {
		common.Logger.Error("role seeding failed", slog.Any("error", err))
		return err
	}

	common.Logger.Info("migrations completed")
	return nil
}
