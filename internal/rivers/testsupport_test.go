package rivers

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/philthes/SwiftRiver/internal/accounts"
	"github.com/philthes/SwiftRiver/internal/drops"
	"github.com/philthes/SwiftRiver/internal/event"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingCache struct {
	store   map[string]any
	ttls    map[string]time.Duration
	deleted []string
	sets    int
	hits    int
	misses  int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{
		store: make(map[string]any),
		ttls:  make(map[string]time.Duration),
	}
}

func (c *recordingCache) Get(key string) (any, bool) {
	value, ok := c.store[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return value, ok
}

func (c *recordingCache) Set(key string, value any, ttl time.Duration) {
	c.sets++
	c.store[key] = value
	c.ttls[key] = ttl
}

func (c *recordingCache) Delete(key string) {
	c.deleted = append(c.deleted, key)
	delete(c.store, key)
	delete(c.ttls, key)
}

type recordingEvents struct {
	events []event.Event
}

func (e *recordingEvents) Publish(_ context.Context, evt event.Event) {
	e.events = append(e.events, evt)
}

func (e *recordingEvents) named(name string) []event.Event {
	var matched []event.Event
	for _, evt := range e.events {
		if evt.Name == name {
			matched = append(matched, evt)
		}
	}
	return matched
}

type serviceFixture struct {
	service *Service
	db      *gorm.DB
	cache   *recordingCache
	events  *recordingEvents
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:rivers_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&accounts.User{}, &accounts.Account{}, &accounts.ChannelQuota{},
		&drops.Identity{}, &drops.Droplet{}, &drops.Link{}, &drops.Score{},
		&drops.Tag{}, &drops.Place{},
		&drops.DropletTag{}, &drops.DropletPlace{}, &drops.DropletLink{},
		&River{}, &RiverDroplet{}, &ChannelFilter{}, &ChannelFilterOption{},
		&Collaborator{}, &Subscription{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	recorderCache := newRecordingCache()
	recorderEvents := &recordingEvents{}

	service, err := NewService(ServiceConfig{
		Database:     db,
		Cache:        recorderCache,
		Events:       recorderEvents,
		Clock:        func() time.Time { return testNow },
		LifetimeDays: 14,
		DropQuota:    10000,
	})
	if err != nil {
		t.Fatalf("failed to construct rivers service: %v", err)
	}

	return serviceFixture{service: service, db: db, cache: recorderCache, events: recorderEvents}
}

// seedAccount creates a user and its account, wired to each other.
func seedAccount(t *testing.T, db *gorm.DB, path string, riverQuota int, public bool) (accounts.Account, accounts.User) {
	t.Helper()

	user := accounts.User{Name: path + " user", Email: path + "@example.org"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	account := accounts.Account{
		UserID:              user.ID,
		Path:                path,
		Public:              public,
		RiverQuotaRemaining: riverQuota,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	user.AccountID = account.ID
	if err := db.Model(&accounts.User{}).Where("id = ?", user.ID).Update("account_id", account.ID).Error; err != nil {
		t.Fatalf("failed to link user to account: %v", err)
	}
	return account, user
}

// seedUser creates a user belonging to an existing account.
func seedUser(t *testing.T, db *gorm.DB, accountID int64, name string) accounts.User {
	t.Helper()

	user := accounts.User{Name: name, Email: name + "@example.org", AccountID: accountID}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func mustCreateRiver(t *testing.T, fixture serviceFixture, params CreateRiverParams) River {
	t.Helper()

	river, err := fixture.service.CreateRiver(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return river
}

func seedIdentity(t *testing.T, db *gorm.DB, name string) drops.Identity {
	t.Helper()

	identity := drops.Identity{Name: name, Avatar: "https://avatars.example.org/" + name}
	if err := db.Create(&identity).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	return identity
}

type dropSeed struct {
	title       string
	channel     string
	datePub     time.Time
	imageID     int64
	originalURL string
}

// seedDrop creates a droplet plus its river association, returning the
// association row (whose id is the feed cursor).
func seedDrop(t *testing.T, db *gorm.DB, riverID, identityID int64, seed dropSeed) (drops.Droplet, RiverDroplet) {
	t.Helper()

	droplet := drops.Droplet{
		Title:      seed.title,
		Content:    seed.title + " content",
		Channel:    seed.channel,
		IdentityID: identityID,
		DatePub:    seed.datePub,
		ImageID:    seed.imageID,
	}
	if seed.originalURL != "" {
		link := drops.Link{URL: seed.originalURL}
		if err := db.Create(&link).Error; err != nil {
			t.Fatalf("failed to seed link: %v", err)
		}
		droplet.OriginalURLID = &link.ID
	}
	if err := db.Create(&droplet).Error; err != nil {
		t.Fatalf("failed to seed droplet: %v", err)
	}

	association := RiverDroplet{RiverID: riverID, DropletID: droplet.ID, DatePub: seed.datePub}
	if err := db.Create(&association).Error; err != nil {
		t.Fatalf("failed to seed association: %v", err)
	}
	return droplet, association
}
