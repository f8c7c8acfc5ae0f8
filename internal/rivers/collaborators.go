package rivers

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CollaboratorInfo is a collaborator row joined with the user it grants
// access to.
type CollaboratorInfo struct {
	UserID      int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccountPath string `json:"account_path"`
	Active      bool   `json:"collaborator_active"`
	ReadOnly    bool   `json:"read_only"`
}

// AddCollaborator invites a user to collaborate on a river. The row starts
// inactive until activated. One row per (river, user) pair; inviting an
// existing collaborator fails validation.
func (s *Service) AddCollaborator(ctx context.Context, riverID, userID int64, readOnly bool) (Collaborator, error) {
	if _, err := s.GetRiver(ctx, riverID); err != nil {
		return Collaborator{}, err
	}
	if _, err := s.loadUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Collaborator{}, newServiceError(opCollaborators, "user_not_found", ErrNotFound)
		}
		return Collaborator{}, newServiceError(opCollaborators, "user_load_failed", err)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Count(&existing).Error; err != nil {
		s.logError(opCollaborators, "lookup_failed", err, zap.Int64("river_id", riverID))
		return Collaborator{}, newServiceError(opCollaborators, "lookup_failed", err)
	}
	if existing > 0 {
		return Collaborator{}, newServiceError(opCollaborators, "already_collaborating", ErrValidation)
	}

	collaborator := Collaborator{RiverID: riverID, UserID: userID, ReadOnly: readOnly, Active: false}
	if err := s.db.WithContext(ctx).Create(&collaborator).Error; err != nil {
		s.logError(opCollaborators, "insert_failed", err, zap.Int64("river_id", riverID))
		return Collaborator{}, newServiceError(opCollaborators, "insert_failed", err)
	}
	return collaborator, nil
}

// SetCollaboratorActive activates or suspends an existing collaborator.
func (s *Service) SetCollaboratorActive(ctx context.Context, riverID, userID int64, active bool) error {
	result := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Update("collaborator_active", active)
	if result.Error != nil {
		s.logError(opCollaborators, "update_failed", result.Error, zap.Int64("river_id", riverID))
		return newServiceError(opCollaborators, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opCollaborators, "collaborator_not_found", ErrNotFound)
	}
	return nil
}

// RemoveCollaborator revokes a user's collaboration on a river.
func (s *Service) RemoveCollaborator(ctx context.Context, riverID, userID int64) error {
	result := s.db.WithContext(ctx).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Delete(&Collaborator{})
	if result.Error != nil {
		s.logError(opCollaborators, "delete_failed", result.Error, zap.Int64("river_id", riverID))
		return newServiceError(opCollaborators, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opCollaborators, "collaborator_not_found", ErrNotFound)
	}
	return nil
}

// ListCollaborators returns a river's collaborators joined with their user
// records, optionally restricted to active ones.
func (s *Service) ListCollaborators(ctx context.Context, riverID int64, activeOnly bool) ([]CollaboratorInfo, error) {
	if _, err := s.GetRiver(ctx, riverID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Table("river_collaborators").
		Select("users.id AS user_id, users.name AS name, users.email AS email, " +
			"accounts.account_path AS account_path, " +
			"river_collaborators.collaborator_active AS active, river_collaborators.read_only AS read_only").
		Joins("INNER JOIN users ON users.id = river_collaborators.user_id").
		Joins("INNER JOIN accounts ON accounts.id = users.account_id").
		Where("river_collaborators.river_id = ?", riverID)
	if activeOnly {
		query = query.Where("river_collaborators.collaborator_active = ?", true)
	}

	var collaborators []CollaboratorInfo
	if err := query.Scan(&collaborators).Error; err != nil {
		s.logError(opCollaborators, "query_failed", err, zap.Int64("river_id", riverID))
		return nil, newServiceError(opCollaborators, "query_failed", err)
	}
	return collaborators, nil
}

// Subscribe marks a user as following the river. Subscribing twice is a
// no-op.
func (s *Service) Subscribe(ctx context.Context, riverID, userID int64) error {
	if _, err := s.GetRiver(ctx, riverID); err != nil {
		return err
	}
	if _, err := s.loadUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSubscriptions, "user_not_found", ErrNotFound)
		}
		return newServiceError(opSubscriptions, "user_load_failed", err)
	}

	subscription := Subscription{RiverID: riverID, UserID: userID}
	err := s.db.WithContext(ctx).
		Where(subscription).
		FirstOrCreate(&subscription).Error
	if err != nil {
		s.logError(opSubscriptions, "insert_failed", err, zap.Int64("river_id", riverID))
		return newServiceError(opSubscriptions, "insert_failed", err)
	}
	return nil
}

// Unsubscribe removes a user's subscription, if any.
func (s *Service) Unsubscribe(ctx context.Context, riverID, userID int64) error {
	err := s.db.WithContext(ctx).
		Where("river_id = ? AND user_id = ?", riverID, userID).
		Delete(&Subscription{}).Error
	if err != nil {
		s.logError(opSubscriptions, "delete_failed", err, zap.Int64("river_id", riverID))
		return newServiceError(opSubscriptions, "delete_failed", err)
	}
	return nil
}

// SubscriberCount returns the number of users subscribed to the river.
func (s *Service) SubscriberCount(ctx context.Context, riverID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Subscription{}).
		Where("river_id = ?", riverID).
		Count(&count).Error
	if err != nil {
		s.logError(opSubscriptions, "count_failed", err, zap.Int64("river_id", riverID))
		return 0, newServiceError(opSubscriptions, "count_failed", err)
	}
	return count, nil
}
