package database

import (
	"auxparty/internal/logger"
	"auxparty/internal/models"
)

// MigrateModels runs GORM AutoMigrate for all models
func (db *DB) MigrateModels() error {
	log := logger.New("database").Function("MigrateModels")
	log.Info("Starting database migration")

	modelsToMigrate := []interface{}{
		&models.User{},
		&models.Session{},
		&models.Guest{},
		&models.QueueItem{},
		&models.Vote{},
		&models.ScheduledPlayback{},
		&models.ScheduledTrack{},
	}

	for _, model := range modelsToMigrate {
		if err := db.SQL.AutoMigrate(model); err != nil {
			log.Error("Failed to migrate model", "model", model, "error", err)
			return err
		}
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes creates additional indexes that GORM doesn't create automatically
func (db *DB) CreateIndexes() error {
	log := logger.New("database").Function("CreateIndexes")
	log.Info("Creating additional database indexes")

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_queue_items_session_unplayed ON queue_items(session_id, played, vote_score DESC, created_at ASC)",
		"CREATE INDEX IF NOT EXISTS idx_scheduled_playbacks_due ON scheduled_playbacks(status, scheduled_for)",
		"CREATE INDEX IF NOT EXISTS idx_guests_session_linked ON guests(session_id, linked_user_id)",
	}

	for _, indexSQL := range indexes {
		if err := db.SQL.Exec(indexSQL).Error; err != nil {
			log.Warn("Failed to create index", "sql", indexSQL, "error", err)
			// Continue with other indexes even if one fails
		}
	}

	log.Info("Additional database indexes created")
	return nil
}
