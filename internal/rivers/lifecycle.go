package rivers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/philthes/SwiftRiver/internal/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IsExpired reports the persisted expired flag. Expiry is never recomputed
// from the clock on read; an external scheduled process flips the flag.
func (r *River) IsExpired() bool {
	return r.Expired
}

// IsFull reports whether the river reached its drop quota.
func (r *River) IsFull() bool {
	return r.Full
}

// IsNotified reports whether an expiry notification has been sent.
func (r *River) IsNotified() bool {
	return r.NotificationSent
}

// DaysToExpiry returns the number of whole days until the river expires:
// zero when the expired flag is set, and never negative even when now is
// already past the stored expiry.
func (r *River) DaysToExpiry(now time.Time) int {
	if r.Expired {
		return 0
	}
	if !now.Before(r.DateExpiry) {
		return 0
	}
	return int(r.DateExpiry.Sub(now) / (24 * time.Hour))
}

// ValidToken reports whether candidate exactly matches the river's public
// token. A river without a token rejects every candidate.
func (r *River) ValidToken(candidate string) bool {
	return r.PublicToken != nil && candidate == *r.PublicToken
}

// ExtendLifetime pushes the river's expiry forward by the configured
// lifetime. The new expiry anchors on the current one while days remain,
// otherwise on now. Expired and notification flags are cleared, the river
// reactivated and the extension counter incremented, all persisted together.
// A full river is left untouched and reported via ErrRiverFull.
func (s *Service) ExtendLifetime(ctx context.Context, riverID int64) (River, error) {
	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return River{}, err
	}
	if river.Full {
		return River{}, newServiceError(opExtendLifetime, "river_full", ErrRiverFull)
	}

	now := s.clock().UTC()
	anchor := river.DateExpiry
	if river.DaysToExpiry(now) == 0 {
		anchor = now
	}

	river.DateExpiry = anchor.AddDate(0, 0, s.lifetimeDays)
	river.Expired = false
	river.Active = true
	river.NotificationSent = false
	river.ExtensionCount++

	updates := map[string]any{
		"river_date_expiry":        river.DateExpiry,
		"river_expired":            false,
		"river_active":             true,
		"expiry_notification_sent": false,
		"extension_count":          river.ExtensionCount,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&River{}).Where("id = ?", river.ID).Updates(updates).Error
	})
	if txErr != nil {
		s.logError(opExtendLifetime, "update_failed", txErr, zap.Int64("river_id", riverID))
		return River{}, newServiceError(opExtendLifetime, "update_failed", txErr)
	}

	s.events.Publish(ctx, event.Event{Name: event.RiverEnable, RiverID: river.ID})

	return river, nil
}

// SetToken assigns a freshly generated public token, replacing any previous
// one, and returns it.
func (s *Service) SetToken(ctx context.Context, riverID int64) (string, error) {
	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return "", err
	}
	account, err := s.loadAccount(ctx, river.AccountID)
	if err != nil {
		s.logError(opSetToken, "account_load_failed", err, zap.Int64("river_id", riverID))
		return "", newServiceError(opSetToken, "account_load_failed", err)
	}

	token := newPublicToken(account.Path, river.Name)
	if err := s.db.WithContext(ctx).Model(&River{}).
		Where("id = ?", river.ID).
		Update("public_token", token).Error; err != nil {
		s.logError(opSetToken, "update_failed", err, zap.Int64("river_id", riverID))
		return "", newServiceError(opSetToken, "update_failed", err)
	}

	return token, nil
}

// ValidateToken checks candidate against the river's stored public token.
func (s *Service) ValidateToken(ctx context.Context, riverID int64, candidate string) error {
	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return err
	}
	if river.PublicToken == nil {
		return newServiceError(opValidateToken, "no_token_set", ErrInvalidToken)
	}
	if !river.ValidToken(candidate) {
		return newServiceError(opValidateToken, "token_mismatch", ErrInvalidToken)
	}
	return nil
}

// newPublicToken derives an opaque token from a random seed mixed with the
// account path and river name.
func newPublicToken(accountPath, riverName string) string {
	digest := sha256.Sum256([]byte(uuid.NewString() + accountPath + riverName))
	return hex.EncodeToString(digest[:])
}
