package rivers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/philthes/SwiftRiver/internal/accounts"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChannelOption is a parsed channel filter option.
type ChannelOption struct {
	ID    int64          `json:"id"`
	Key   string         `json:"key"`
	Value map[string]any `json:"value"`
}

// ChannelInfo is a channel filter joined with its registry metadata and
// parsed options.
type ChannelInfo struct {
	ID      int64           `json:"id"`
	Channel string          `json:"channel"`
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Options []ChannelOption `json:"options"`
}

// GetChannels lists a river's channel filters joined with the registry.
// Filters whose channel key has no registered descriptor are skipped, as are
// options whose key is absent from the descriptor's schema.
func (s *Service) GetChannels(ctx context.Context, riverID int64, activeOnly bool) ([]ChannelInfo, error) {
	if _, err := s.GetRiver(ctx, riverID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("river_id = ?", riverID)
	if activeOnly {
		query = query.Where("filter_enabled = ?", true)
	}
	var filters []ChannelFilter
	if err := query.Find(&filters).Error; err != nil {
		s.logError(opChannels, "filters_load_failed", err, zap.Int64("river_id", riverID))
		return nil, newServiceError(opChannels, "filters_load_failed", err)
	}

	infos := make([]ChannelInfo, 0, len(filters))
	for _, filter := range filters {
		descriptor, ok := s.registry.Lookup(filter.Channel)
		if !ok {
			continue
		}
		options, err := s.channelOptions(ctx, filter)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ChannelInfo{
			ID:      filter.ID,
			Channel: filter.Channel,
			Name:    descriptor.Name,
			Enabled: filter.Enabled,
			Options: options,
		})
	}
	return infos, nil
}

// FindChannel returns the river's filter for the given channel key, or
// ErrNotFound. Unlike the historical accessor this is a pure read; use
// CreateChannel to materialize a missing filter.
func (s *Service) FindChannel(ctx context.Context, riverID int64, channelKey string) (ChannelFilter, error) {
	var filter ChannelFilter
	err := s.db.WithContext(ctx).
		Where("river_id = ? AND channel = ?", riverID, channelKey).
		Take(&filter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChannelFilter{}, newServiceError(opChannels, "channel_not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opChannels, "channel_load_failed", err, zap.Int64("river_id", riverID))
		return ChannelFilter{}, newServiceError(opChannels, "channel_load_failed", err)
	}
	return filter, nil
}

// CreateChannel materializes an enabled channel filter for the river.
func (s *Service) CreateChannel(ctx context.Context, riverID int64, channelKey string) (ChannelFilter, error) {
	if _, err := s.GetRiver(ctx, riverID); err != nil {
		return ChannelFilter{}, err
	}

	filter := ChannelFilter{
		RiverID:   riverID,
		Channel:   channelKey,
		Enabled:   true,
		DateAdded: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&filter).Error; err != nil {
		s.logError(opChannels, "channel_insert_failed", err, zap.Int64("river_id", riverID))
		return ChannelFilter{}, newServiceError(opChannels, "channel_insert_failed", err)
	}
	return filter, nil
}

// GetChannelByID loads one of the river's filters by id.
func (s *Service) GetChannelByID(ctx context.Context, riverID, filterID int64) (ChannelFilter, error) {
	var filter ChannelFilter
	err := s.db.WithContext(ctx).
		Where("id = ? AND river_id = ?", filterID, riverID).
		Take(&filter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChannelFilter{}, newServiceError(opChannels, "channel_not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opChannels, "channel_load_failed", err, zap.Int64("channel_filter_id", filterID))
		return ChannelFilter{}, newServiceError(opChannels, "channel_load_failed", err)
	}
	return filter, nil
}

// SetChannelEnabled flips a filter's enabled flag.
func (s *Service) SetChannelEnabled(ctx context.Context, filterID int64, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&ChannelFilter{}).
		Where("id = ?", filterID).
		Update("filter_enabled", enabled)
	if result.Error != nil {
		s.logError(opChannels, "channel_update_failed", result.Error, zap.Int64("channel_filter_id", filterID))
		return newServiceError(opChannels, "channel_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opChannels, "channel_not_found", ErrNotFound)
	}
	return nil
}

// AddChannelOption appends a key/value option to a channel filter and
// records one unit of per-key channel quota usage against the owning
// account, in the same transaction.
func (s *Service) AddChannelOption(ctx context.Context, filterID int64, key string, value map[string]any) (ChannelFilterOption, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return ChannelFilterOption{}, newServiceError(opChannels, "invalid_option_value", ErrValidation)
	}

	var option ChannelFilterOption
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var filter ChannelFilter
		if err := tx.Take(&filter, filterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opChannels, "channel_not_found", ErrNotFound)
			}
			return newServiceError(opChannels, "channel_load_failed", err)
		}
		var river River
		if err := tx.Take(&river, filter.RiverID).Error; err != nil {
			return newServiceError(opChannels, "river_load_failed", err)
		}

		option = ChannelFilterOption{ChannelFilterID: filter.ID, Key: key, Value: string(encoded)}
		if err := tx.Create(&option).Error; err != nil {
			return newServiceError(opChannels, "option_insert_failed", err)
		}
		if err := accounts.IncreaseChannelUsage(tx, river.AccountID, filter.Channel, key, 1); err != nil {
			return newServiceError(opChannels, "usage_debit_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opChannels, "add_option_failed", txErr, zap.Int64("channel_filter_id", filterID))
		return ChannelFilterOption{}, txErr
	}
	return option, nil
}

// RemoveChannelOption deletes an option and credits its quota unit back to
// the owning account, in the same transaction.
func (s *Service) RemoveChannelOption(ctx context.Context, optionID int64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var option ChannelFilterOption
		if err := tx.Take(&option, optionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opChannels, "option_not_found", ErrNotFound)
			}
			return newServiceError(opChannels, "option_load_failed", err)
		}
		var filter ChannelFilter
		if err := tx.Take(&filter, option.ChannelFilterID).Error; err != nil {
			return newServiceError(opChannels, "channel_load_failed", err)
		}
		var river River
		if err := tx.Take(&river, filter.RiverID).Error; err != nil {
			return newServiceError(opChannels, "river_load_failed", err)
		}

		if err := tx.Delete(&ChannelFilterOption{}, option.ID).Error; err != nil {
			return newServiceError(opChannels, "option_delete_failed", err)
		}
		if err := accounts.DecreaseChannelUsage(tx, river.AccountID, filter.Channel, option.Key, 1); err != nil {
			return newServiceError(opChannels, "usage_credit_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opChannels, "remove_option_failed", txErr, zap.Int64("option_id", optionID))
		return txErr
	}
	return nil
}

// channelOptions parses a filter's options, skipping keys the channel's
// registered schema does not know.
func (s *Service) channelOptions(ctx context.Context, filter ChannelFilter) ([]ChannelOption, error) {
	descriptor, _ := s.registry.Lookup(filter.Channel)

	var stored []ChannelFilterOption
	if err := s.db.WithContext(ctx).
		Where("channel_filter_id = ?", filter.ID).
		Find(&stored).Error; err != nil {
		s.logError(opChannels, "options_load_failed", err, zap.Int64("channel_filter_id", filter.ID))
		return nil, newServiceError(opChannels, "options_load_failed", err)
	}

	known := lo.Filter(stored, func(option ChannelFilterOption, _ int) bool {
		_, ok := descriptor.Options[option.Key]
		return ok
	})

	options := make([]ChannelOption, 0, len(known))
	for _, option := range known {
		value := map[string]any{}
		if err := json.Unmarshal([]byte(option.Value), &value); err != nil {
			// Opaque payloads that fail to parse are surfaced raw.
			value = map[string]any{"raw": option.Value}
		}
		options = append(options, ChannelOption{ID: option.ID, Key: option.Key, Value: value})
	}
	return options, nil
}

// channelQuotaUsage sums a filter's options per key: each option holds one
// unit of the account's per-key channel quota.
func channelQuotaUsage(tx *gorm.DB, filterID int64) (map[string]int, error) {
	type usageRow struct {
		Key   string
		Count int
	}
	var rows []usageRow
	err := tx.Model(&ChannelFilterOption{}).
		Select("option_key AS key, COUNT(*) AS count").
		Where("channel_filter_id = ?", filterID).
		Group("option_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int, len(rows))
	for _, row := range rows {
		usage[row.Key] = row.Count
	}
	return usage, nil
}
