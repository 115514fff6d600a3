package initialize

import (
	"auxparty/config"
	logger "auxparty/internal/logger"
	. "auxparty/internal/models"

	"gorm.io/gorm"
)

func InitializeTables(db *gorm.DB, config config.Config, log logger.Logger) error {
	log = log.Function("InitializeTables")
	log.Info("Initializing essential production data")

	if err := backfillCreditDefaults(db, config, log); err != nil {
		return log.Err("failed to backfill credit defaults", err)
	}

	log.Info("Table initialization complete")
	return nil
}

// backfillCreditDefaults gives pre-existing identities a credit allowance.
// Rows created before the credit columns existed have zero totals, which the
// ledger would otherwise treat as "no credits ever".
func backfillCreditDefaults(db *gorm.DB, config config.Config, log logger.Logger) error {
	log.Info("Backfilling credit defaults", "defaultTotal", config.GuestDailyCredits)

	result := db.Model(&User{}).
		Where("total_credits <= 0").
		Update("total_credits", config.GuestDailyCredits)
	if result.Error != nil {
		return log.Err("failed to backfill total credits", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Info("Backfilled credit totals", "rows", result.RowsAffected)
	}

	return nil
}
