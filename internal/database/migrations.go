package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillRiverMaxDropID = "2026-05-12_backfill_river_max_drop_id"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillRiverMaxDropID, apply: backfillRiverMaxDropID},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRiverMaxDropID seeds the denormalized max association id for rivers
// created before the counter column existed.
func backfillRiverMaxDropID(db *gorm.DB) error {
	return db.Exec(
		"UPDATE rivers SET max_drop_id = " +
			"(SELECT IFNULL(MAX(id), 0) FROM rivers_droplets WHERE rivers_droplets.river_id = rivers.id) " +
			"WHERE max_drop_id = 0",
	).Error
}
