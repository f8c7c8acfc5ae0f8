package rivers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/philthes/SwiftRiver/internal/event"
)

func TestDaysToExpiry(t *testing.T) {
	now := testNow

	cases := []struct {
		name  string
		river River
		want  int
	}{
		{"two weeks out", River{DateExpiry: now.AddDate(0, 0, 14)}, 14},
		{"partial day rounds down", River{DateExpiry: now.Add(36 * time.Hour)}, 1},
		{"expiry flag wins", River{Expired: true, DateExpiry: now.AddDate(0, 0, 14)}, 0},
		{"past expiry never negative", River{DateExpiry: now.AddDate(0, 0, -3)}, 0},
		{"exactly at expiry", River{DateExpiry: now}, 0},
	}
	for _, testCase := range cases {
		if got := testCase.river.DaysToExpiry(now); got != testCase.want {
			t.Fatalf("%s: DaysToExpiry = %d, want %d", testCase.name, got, testCase.want)
		}
	}
}

func TestExtendLifetimeAnchorsOnRemainingExpiry(t *testing.T) {
	fixture := newServiceFixture(t)
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)

	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})

	extended, err := fixture.service.ExtendLifetime(context.Background(), river.ID)
	if err != nil {
		t.Fatalf("unexpected extend error: %v", err)
	}

	// Days remain, so the extension stacks on the stored expiry.
	if want := testNow.AddDate(0, 0, 28); !extended.DateExpiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, extended.DateExpiry)
	}
	if extended.ExtensionCount != 1 {
		t.Fatalf("expected extension count 1, got %d", extended.ExtensionCount)
	}

	var reloaded River
	if err := fixture.db.Take(&reloaded, river.ID).Error; err != nil {
		t.Fatalf("failed to reload river: %v", err)
	}
	if !reloaded.DateExpiry.Equal(extended.DateExpiry) || reloaded.ExtensionCount != 1 {
		t.Fatalf("expected extension persisted, got %+v", reloaded)
	}

	enables := fixture.events.named(event.RiverEnable)
	if len(enables) != 1 || enables[0].RiverID != river.ID {
		t.Fatalf("expected one river.enable event, got %v", enables)
	}
}

func TestExtendLifetimeRevivesExpiredRiver(t *testing.T) {
	fixture := newServiceFixture(t)
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)

	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})
	if err := fixture.db.Model(&River{}).Where("id = ?", river.ID).Updates(map[string]any{
		"river_date_expiry":        testNow.AddDate(0, 0, -5),
		"river_expired":            true,
		"river_active":             false,
		"expiry_notification_sent": true,
	}).Error; err != nil {
		t.Fatalf("failed to expire river: %v", err)
	}

	extended, err := fixture.service.ExtendLifetime(context.Background(), river.ID)
	if err != nil {
		t.Fatalf("unexpected extend error: %v", err)
	}

	// No days remain, so the extension anchors on now, not the stale expiry.
	if want := testNow.AddDate(0, 0, 14); !extended.DateExpiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, extended.DateExpiry)
	}

	var reloaded River
	if err := fixture.db.Take(&reloaded, river.ID).Error; err != nil {
		t.Fatalf("failed to reload river: %v", err)
	}
	if reloaded.Expired || !reloaded.Active || reloaded.NotificationSent {
		t.Fatalf("expected lifecycle flags reset, got %+v", reloaded)
	}
}

func TestExtendLifetimeRejectsFullRiver(t *testing.T) {
	fixture := newServiceFixture(t)
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)

	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})
	if err := fixture.db.Model(&River{}).Where("id = ?", river.ID).Update("river_full", true).Error; err != nil {
		t.Fatalf("failed to mark river full: %v", err)
	}

	if _, err := fixture.service.ExtendLifetime(context.Background(), river.ID); !errors.Is(err, ErrRiverFull) {
		t.Fatalf("expected ErrRiverFull, got %v", err)
	}

	var reloaded River
	if err := fixture.db.Take(&reloaded, river.ID).Error; err != nil {
		t.Fatalf("failed to reload river: %v", err)
	}
	if reloaded.ExtensionCount != 0 || !reloaded.DateExpiry.Equal(river.DateExpiry) {
		t.Fatalf("expected a full river left untouched, got %+v", reloaded)
	}
	if len(fixture.events.named(event.RiverEnable)) != 0 {
		t.Fatalf("expected no river.enable event for a full river")
	}
}

func TestTokenLifecycle(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	account, _ := seedAccount(t, fixture.db, "nairobi", 2, false)

	river := mustCreateRiver(t, fixture, CreateRiverParams{Name: "floods", AccountID: account.ID})
	if river.PublicToken != nil {
		t.Fatalf("expected no token until requested, got %q", *river.PublicToken)
	}

	// Without a token every candidate is rejected.
	if err := fixture.service.ValidateToken(ctx, river.ID, "anything"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken before token assignment, got %v", err)
	}

	token, err := fixture.service.SetToken(ctx, river.ID)
	if err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected a 64 character token, got %q", token)
	}

	if err := fixture.service.ValidateToken(ctx, river.ID, token); err != nil {
		t.Fatalf("expected the issued token to validate, got %v", err)
	}
	if err := fixture.service.ValidateToken(ctx, river.ID, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a wrong candidate, got %v", err)
	}

	// Re-issuing replaces the previous token.
	replacement, err := fixture.service.SetToken(ctx, river.ID)
	if err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	if replacement == token {
		t.Fatalf("expected a fresh token on re-issue")
	}
	if err := fixture.service.ValidateToken(ctx, river.ID, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected the old token to stop validating, got %v", err)
	}
}
