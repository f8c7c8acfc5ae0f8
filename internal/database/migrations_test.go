package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/philthes/SwiftRiver/internal/rivers"
	"gorm.io/gorm"
)

func TestOpenSQLiteInitializesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{
		"users", "accounts", "account_channel_quotas",
		"rivers", "rivers_droplets", "channel_filters", "channel_filter_options",
		"river_collaborators", "river_subscriptions",
		"droplets", "identities", "links", "droplet_scores",
		"tags", "places", "droplet_tags", "droplet_places", "droplet_links",
		"db_migrations",
	} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s after migration", table)
		}
	}
}

func TestMigrationsAreRecordedOnce(t *testing.T) {
	db := openTestDB(t)

	var count int64
	if err := db.Model(&migrationRecord{}).Where("name = ?", migrationBackfillRiverMaxDropID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 migration record, got %d", count)
	}

	// Re-applying must be a no-op.
	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected error on reapply: %v", err)
	}
	if err := db.Model(&migrationRecord{}).Where("name = ?", migrationBackfillRiverMaxDropID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected migration to stay recorded once, got %d rows", count)
	}
}

func TestBackfillRiverMaxDropID(t *testing.T) {
	db := openTestDB(t)

	river := rivers.River{Name: "floods", Slug: "floods", AccountID: 1,
		DateAdded: time.Now(), DateExpiry: time.Now().AddDate(0, 0, 14)}
	if err := db.Create(&river).Error; err != nil {
		t.Fatalf("failed to seed river: %v", err)
	}
	for i := 0; i < 3; i++ {
		association := rivers.RiverDroplet{RiverID: river.ID, DropletID: int64(i + 1), DatePub: time.Now()}
		if err := db.Create(&association).Error; err != nil {
			t.Fatalf("failed to seed association: %v", err)
		}
	}

	if err := backfillRiverMaxDropID(db); err != nil {
		t.Fatalf("unexpected backfill error: %v", err)
	}

	var reloaded rivers.River
	if err := db.Take(&reloaded, river.ID).Error; err != nil {
		t.Fatalf("failed to reload river: %v", err)
	}

	var wantMax int64
	if err := db.Model(&rivers.RiverDroplet{}).Select("IFNULL(MAX(id), 0)").Scan(&wantMax).Error; err != nil {
		t.Fatalf("failed to read max association id: %v", err)
	}
	if reloaded.MaxDropID != wantMax {
		t.Fatalf("expected max_drop_id %d, got %d", wantMax, reloaded.MaxDropID)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	opened, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return opened
}
