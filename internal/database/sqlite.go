package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/philthes/SwiftRiver/internal/accounts"
	"github.com/philthes/SwiftRiver/internal/drops"
	"github.com/philthes/SwiftRiver/internal/rivers"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&accounts.User{},
		&accounts.Account{},
		&accounts.ChannelQuota{},
		&drops.Identity{},
		&drops.Droplet{},
		&drops.Link{},
		&drops.Score{},
		&drops.Tag{},
		&drops.Place{},
		&drops.DropletTag{},
		&drops.DropletPlace{},
		&drops.DropletLink{},
		&rivers.River{},
		&rivers.RiverDroplet{},
		&rivers.ChannelFilter{},
		&rivers.ChannelFilterOption{},
		&rivers.Collaborator{},
		&rivers.Subscription{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
