package rivers

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IsOwner reports whether the viewer may act as an owner of the river:
// the account creator, any viewer when the owning account is the public
// system account, or an active non-read-only collaborator. A viewer that
// does not exist owns nothing.
func (s *Service) IsOwner(ctx context.Context, river *River, userID int64) (bool, error) {
	exists, err := s.userExists(ctx, userID)
	if err != nil || !exists {
		return false, err
	}

	account, err := s.loadAccount(ctx, river.AccountID)
	if err != nil {
		s.logError(opPermissions, "account_load_failed", err, zap.Int64("river_id", river.ID))
		return false, newServiceError(opPermissions, "account_load_failed", err)
	}

	// Every river of the public system account is owned by everyone.
	if account.Public {
		return true, nil
	}
	if account.UserID == userID {
		return true, nil
	}

	var count int64
	err = s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("river_id = ? AND user_id = ? AND read_only = ? AND collaborator_active = ?",
			river.ID, userID, false, true).
		Count(&count).Error
	if err != nil {
		s.logError(opPermissions, "collaborator_query_failed", err, zap.Int64("river_id", river.ID))
		return false, newServiceError(opPermissions, "collaborator_query_failed", err)
	}
	return count > 0, nil
}

// IsCollaborator reports whether the viewer has any collaborator row on the
// river, active or not, read-only or not. Broader than IsOwner.
func (s *Service) IsCollaborator(ctx context.Context, riverID, userID int64) (bool, error) {
	exists, err := s.userExists(ctx, userID)
	if err != nil || !exists {
		return false, err
	}

	var count int64
	err = s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Count(&count).Error
	if err != nil {
		s.logError(opPermissions, "collaborator_query_failed", err, zap.Int64("river_id", riverID))
		return false, newServiceError(opPermissions, "collaborator_query_failed", err)
	}
	return count > 0, nil
}

// IsSubscriber reports whether the viewer has subscribed to the river.
func (s *Service) IsSubscriber(ctx context.Context, riverID, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Subscription{}).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Count(&count).Error
	if err != nil {
		s.logError(opPermissions, "subscription_query_failed", err, zap.Int64("river_id", riverID))
		return false, newServiceError(opPermissions, "subscription_query_failed", err)
	}
	return count > 0, nil
}

// IsCreator reports whether the viewer is the creator of the owning account.
// Narrower than IsOwner: collaborators and the public-account rule are
// ignored.
func (s *Service) IsCreator(ctx context.Context, river *River, userID int64) (bool, error) {
	account, err := s.loadAccount(ctx, river.AccountID)
	if err != nil {
		s.logError(opPermissions, "account_load_failed", err, zap.Int64("river_id", river.ID))
		return false, newServiceError(opPermissions, "account_load_failed", err)
	}
	return account.UserID == userID, nil
}

func (s *Service) userExists(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	_, err := s.loadUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		s.logError(opPermissions, "user_load_failed", err, zap.Int64("user_id", userID))
		return false, newServiceError(opPermissions, "user_load_failed", err)
	}
	return true, nil
}
