package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/caseforge/engine/internal/models"
)

// registerModels returns all models that need migration.
func registerModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Project{},
		&models.Generation{},
		&models.GenerationVersion{},
	}
}

// runMigrations executes all database migrations.
func runMigrations(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}

	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}

	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle.
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addUUIDDefaults,
		addGenerationIndexes,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// enableUUIDExtension ensures UUID generation is available.
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addUUIDDefaults gives id columns a server-side default. The application
// assigns ids itself in BeforeCreate hooks; the default only covers rows
// inserted outside the application (ad-hoc SQL, backfills).
func addUUIDDefaults(db *gorm.DB) error {
	for _, table := range []string{"users", "projects", "generations", "generation_versions"} {
		if err := db.Exec(fmt.Sprintf(
			`ALTER TABLE %s ALTER COLUMN id SET DEFAULT gen_random_uuid()`, table,
		)).Error; err != nil {
			return err
		}
	}
	return nil
}

// addGenerationIndexes adds composite indexes for the listing queries.
func addGenerationIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generations_owner_started
		ON generations(created_by, started_at DESC)
	`).Error
}
