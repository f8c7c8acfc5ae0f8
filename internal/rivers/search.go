package rivers

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SearchResult is a river matched by name or slug.
type SearchResult struct {
	ID          int64  `json:"id"`
	Name        string `json:"river_name"`
	Slug        string `json:"river_name_url"`
	AccountPath string `json:"account_path"`
}

// SearchRivers finds rivers whose name or slug contains term,
// case-insensitively. The visible set is the searching user's own and
// actively-collaborated rivers regardless of visibility, plus all other
// public rivers; a river the user collaborates on appears once even when it
// is also public. No pagination: result sets are bounded in practice.
func (s *Service) SearchRivers(ctx context.Context, term string, userID int64) ([]SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	user, err := s.loadUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opSearch, "user_load_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opSearch, "user_load_failed", err)
	}

	pattern := "%" + strings.ToLower(term) + "%"

	var collaboratingIDs []int64
	err = s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("user_id = ? AND collaborator_active = ?", userID, true).
		Pluck("river_id", &collaboratingIDs).Error
	if err != nil {
		s.logError(opSearch, "collaborations_load_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opSearch, "collaborations_load_failed", err)
	}

	// Rivers owned by the user's account, plus the ones being collaborated
	// on, matched regardless of visibility.
	ownScope := s.db.WithContext(ctx).Table("rivers").
		Select("rivers.id AS id, rivers.river_name AS name, rivers.river_name_url AS slug, accounts.account_path AS account_path").
		Joins("INNER JOIN accounts ON accounts.id = rivers.account_id").
		Where("lower(rivers.river_name) LIKE ? OR lower(rivers.river_name_url) LIKE ?", pattern, pattern)
	if len(collaboratingIDs) > 0 {
		ownScope = ownScope.Where("rivers.account_id = ? OR rivers.id IN ?", user.AccountID, collaboratingIDs)
	} else {
		ownScope = ownScope.Where("rivers.account_id = ?", user.AccountID)
	}

	var owned []SearchResult
	if err := ownScope.Scan(&owned).Error; err != nil {
		s.logError(opSearch, "own_query_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opSearch, "own_query_failed", err)
	}

	// Public rivers of other accounts, minus the collaboration set already
	// covered above.
	publicScope := s.db.WithContext(ctx).Table("rivers").
		Select("rivers.id AS id, rivers.river_name AS name, rivers.river_name_url AS slug, accounts.account_path AS account_path").
		Joins("INNER JOIN accounts ON accounts.id = rivers.account_id").
		Where("rivers.account_id <> ?", user.AccountID).
		Where("rivers.river_public = ?", true).
		Where("lower(rivers.river_name) LIKE ? OR lower(rivers.river_name_url) LIKE ?", pattern, pattern)
	if len(collaboratingIDs) > 0 {
		publicScope = publicScope.Where("rivers.id NOT IN ?", collaboratingIDs)
	}

	var public []SearchResult
	if err := publicScope.Scan(&public).Error; err != nil {
		s.logError(opSearch, "public_query_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opSearch, "public_query_failed", err)
	}

	return lo.UniqBy(append(owned, public...), func(result SearchResult) int64 {
		return result.ID
	}), nil
}
