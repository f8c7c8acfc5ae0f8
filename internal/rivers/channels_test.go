package rivers

import (
	"context"
	"errors"
	"testing"

	"github.com/philthes/SwiftRiver/internal/accounts"
)

func TestFindChannelIsAPureRead(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})

	if _, err := fixture.service.FindChannel(ctx, river.ID, "rss"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before the filter exists, got %v", err)
	}
	var count int64
	if err := fixture.db.Model(&ChannelFilter{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count filters: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected the failed lookup to create nothing, got %d filters", count)
	}

	created, err := fixture.service.CreateChannel(ctx, river.ID, "rss")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if !created.Enabled {
		t.Fatalf("expected a new filter to start enabled")
	}
	if !created.DateAdded.Equal(testNow) {
		t.Fatalf("expected the clock to stamp the filter, got %v", created.DateAdded)
	}

	found, err := fixture.service.FindChannel(ctx, river.ID, "rss")
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected to find the created filter, got %+v", found)
	}
}

func TestGetChannelsSkipsUnregisteredChannels(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})

	if _, err := fixture.service.CreateChannel(ctx, river.ID, "twitter"); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	// A filter left behind by a retired plugin.
	retired := ChannelFilter{RiverID: river.ID, Channel: "myspace", Enabled: true, DateAdded: testNow}
	if err := fixture.db.Create(&retired).Error; err != nil {
		t.Fatalf("failed to seed retired filter: %v", err)
	}

	infos, err := fixture.service.GetChannels(ctx, river.ID, false)
	if err != nil {
		t.Fatalf("unexpected channels error: %v", err)
	}
	if len(infos) != 1 || infos[0].Channel != "twitter" {
		t.Fatalf("expected only the registered channel, got %+v", infos)
	}
	if infos[0].Name != "Twitter" {
		t.Fatalf("expected the registry display name, got %q", infos[0].Name)
	}
}

func TestGetChannelsActiveOnly(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})

	enabled, err := fixture.service.CreateChannel(ctx, river.ID, "rss")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	disabled, err := fixture.service.CreateChannel(ctx, river.ID, "twitter")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := fixture.service.SetChannelEnabled(ctx, disabled.ID, false); err != nil {
		t.Fatalf("unexpected disable error: %v", err)
	}

	infos, err := fixture.service.GetChannels(ctx, river.ID, true)
	if err != nil {
		t.Fatalf("unexpected channels error: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != enabled.ID {
		t.Fatalf("expected only the enabled filter, got %+v", infos)
	}

	all, err := fixture.service.GetChannels(ctx, river.ID, false)
	if err != nil {
		t.Fatalf("unexpected channels error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both filters without the active restriction, got %+v", all)
	}
}

func TestChannelOptionsTrackAccountUsage(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})
	filter, err := fixture.service.CreateChannel(ctx, river.ID, "twitter")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	option, err := fixture.service.AddChannelOption(ctx, filter.ID, "keyword", map[string]any{"keyword": "mafuriko"})
	if err != nil {
		t.Fatalf("unexpected option error: %v", err)
	}
	if _, err := fixture.service.AddChannelOption(ctx, filter.ID, "user", map[string]any{"user": "@kenyaredcross"}); err != nil {
		t.Fatalf("unexpected option error: %v", err)
	}

	usage, err := accounts.ChannelUsage(fixture.db, account.ID, "twitter")
	if err != nil {
		t.Fatalf("failed to read usage: %v", err)
	}
	if usage["keyword"] != 1 || usage["user"] != 1 {
		t.Fatalf("expected one unit per option key, got %v", usage)
	}

	if err := fixture.service.RemoveChannelOption(ctx, option.ID); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	usage, err = accounts.ChannelUsage(fixture.db, account.ID, "twitter")
	if err != nil {
		t.Fatalf("failed to read usage: %v", err)
	}
	if usage["keyword"] != 0 || usage["user"] != 1 {
		t.Fatalf("expected the removed option credited back, got %v", usage)
	}
}

func TestGetChannelsParsesOptionsAndSkipsUnknownKeys(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})
	filter, err := fixture.service.CreateChannel(ctx, river.ID, "rss")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if _, err := fixture.service.AddChannelOption(ctx, filter.ID, "url", map[string]any{"url": "https://example.org/feed"}); err != nil {
		t.Fatalf("unexpected option error: %v", err)
	}
	// The rss schema has no "keyword" key; listings must ignore this row.
	if _, err := fixture.service.AddChannelOption(ctx, filter.ID, "keyword", map[string]any{"keyword": "floods"}); err != nil {
		t.Fatalf("unexpected option error: %v", err)
	}

	infos, err := fixture.service.GetChannels(ctx, river.ID, false)
	if err != nil {
		t.Fatalf("unexpected channels error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one channel, got %+v", infos)
	}
	options := infos[0].Options
	if len(options) != 1 || options[0].Key != "url" {
		t.Fatalf("expected only the schema-known option, got %+v", options)
	}
	if options[0].Value["url"] != "https://example.org/feed" {
		t.Fatalf("expected the parsed option value, got %v", options[0].Value)
	}
}

func TestChannelLookupsScopeByRiver(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)
	first := mustCreateRiver(t, fixture, CreateRiverParams{Name: "first", AccountID: account.ID})
	second := mustCreateRiver(t, fixture, CreateRiverParams{Name: "second", AccountID: account.ID})

	filter, err := fixture.service.CreateChannel(ctx, first.ID, "rss")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if _, err := fixture.service.GetChannelByID(ctx, second.ID, filter.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected another river's filter to be invisible, got %v", err)
	}
	loaded, err := fixture.service.GetChannelByID(ctx, first.ID, filter.ID)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if loaded.ID != filter.ID {
		t.Fatalf("expected the owning river's lookup to succeed, got %+v", loaded)
	}
}
