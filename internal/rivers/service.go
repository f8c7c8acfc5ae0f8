package rivers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/philthes/SwiftRiver/internal/accounts"
	"github.com/philthes/SwiftRiver/internal/cache"
	"github.com/philthes/SwiftRiver/internal/channels"
	"github.com/philthes/SwiftRiver/internal/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	defaultLifetimeDays = 14
	defaultDropQuota    = 10000
	defaultFeedTTL      = 5 * time.Minute
	defaultMaxIDTTL     = 90 * time.Second
	defaultFeedLimit    = 50
	defaultSinceLimit   = 100
)

// ServiceConfig describes the dependencies and tunables of the rivers service.
// Cache, Events, Channels, Clock and Logger fall back to no-op or default
// implementations when absent; Database is required.
type ServiceConfig struct {
	Database      *gorm.DB
	Cache         cache.Cache
	Events        event.Publisher
	Channels      *channels.Registry
	Clock         func() time.Time
	Logger        *zap.Logger
	LifetimeDays  int
	DropQuota     int
	FeedCacheTTL  time.Duration
	MaxIDCacheTTL time.Duration
}

// Service is the feed retrieval, caching, quota and lifecycle engine backing
// rivers. All operations take the viewer identity explicitly; authorization
// policy belongs to the boundary layer consuming the permission reads.
type Service struct {
	db           *gorm.DB
	cache        cache.Cache
	events       event.Publisher
	registry     *channels.Registry
	clock        func() time.Time
	logger       *zap.Logger
	lifetimeDays int
	dropQuota    int
	feedTTL      time.Duration
	maxIDTTL     time.Duration
}

// NewService constructs the rivers service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	service := &Service{
		db:           cfg.Database,
		cache:        cfg.Cache,
		events:       cfg.Events,
		registry:     cfg.Channels,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		lifetimeDays: cfg.LifetimeDays,
		dropQuota:    cfg.DropQuota,
		feedTTL:      cfg.FeedCacheTTL,
		maxIDTTL:     cfg.MaxIDCacheTTL,
	}
	if service.cache == nil {
		service.cache = cache.Nop{}
	}
	if service.events == nil {
		service.events = event.NopPublisher{}
	}
	if service.registry == nil {
		service.registry = channels.Default()
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	if service.logger == nil {
		service.logger = noOpLogger
	}
	if service.lifetimeDays <= 0 {
		service.lifetimeDays = defaultLifetimeDays
	}
	if service.dropQuota <= 0 {
		service.dropQuota = defaultDropQuota
	}
	if service.feedTTL <= 0 {
		service.feedTTL = defaultFeedTTL
	}
	if service.maxIDTTL <= 0 {
		service.maxIDTTL = defaultMaxIDTTL
	}

	return service, nil
}

// CreateRiverParams describes a river creation request. Slug overrides the
// name-derived slug when set.
type CreateRiverParams struct {
	Name      string
	Slug      string
	Public    bool
	Layout    string
	AccountID int64
}

// CreateRiver inserts a new river, gated on the owning account's remaining
// river quota. The quota check, the insert and the quota debit share one
// transaction; a failed check commits nothing. On success the creator's
// cached river listing is purged and a river.save event is published.
func (s *Service) CreateRiver(ctx context.Context, params CreateRiverParams) (River, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return River{}, newServiceError(opCreateRiver, "empty_name", ErrValidation)
	}
	if len(name) > maxRiverNameLength {
		return River{}, newServiceError(opCreateRiver, "name_too_long", ErrValidation)
	}
	layout, err := normalizeLayout(params.Layout)
	if err != nil {
		return River{}, newServiceError(opCreateRiver, "invalid_layout", err)
	}

	now := s.clock().UTC()
	river := River{
		Name:          name,
		Slug:          params.Slug,
		AccountID:     params.AccountID,
		Public:        params.Public,
		DefaultLayout: layout,
		DateAdded:     now,
		DateExpiry:    now.AddDate(0, 0, s.lifetimeDays),
		Active:        true,
		DropQuota:     s.dropQuota,
	}
	if river.Slug == "" {
		river.Slug = Slugify(name)
	}

	var account accounts.Account
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&account, params.AccountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opCreateRiver, "account_not_found", ErrNotFound)
			}
			return newServiceError(opCreateRiver, "account_load_failed", err)
		}

		remaining, err := accounts.RemainingRiverQuota(tx, params.AccountID)
		if err != nil {
			return newServiceError(opCreateRiver, "quota_read_failed", err)
		}
		if remaining <= 0 {
			return newServiceError(opCreateRiver, "quota_exceeded", ErrQuotaExceeded)
		}

		if err := tx.Create(&river).Error; err != nil {
			return newServiceError(opCreateRiver, "river_insert_failed", err)
		}
		if err := accounts.DebitRiverQuota(tx, params.AccountID); err != nil {
			return newServiceError(opCreateRiver, "quota_debit_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateRiver, "transaction_failed", txErr, zap.Int64("account_id", params.AccountID))
		return River{}, txErr
	}

	// Only the creator's cached listing is purged; feed pages age out by TTL.
	s.cache.Delete(userRiversKey(account.UserID))
	s.events.Publish(ctx, event.Event{Name: event.RiverSave, RiverID: river.ID})

	return river, nil
}

// DeleteRiver removes a river and everything it owns: channel filter options,
// channel filters, droplet associations, subscriptions and collaborators, in
// that order. The account is credited one river quota unit plus the summed
// per-key channel usage of every filter. The whole cascade is one
// transaction; a storage failure at any step leaves the river untouched.
// Droplets themselves are never deleted, only the association rows.
func (s *Service) DeleteRiver(ctx context.Context, riverID int64) error {
	var river River
	if err := s.db.WithContext(ctx).Take(&river, riverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteRiver, "river_not_found", ErrNotFound)
		}
		return newServiceError(opDeleteRiver, "river_load_failed", err)
	}

	s.events.Publish(ctx, event.Event{Name: event.RiverDisable, RiverID: river.ID})

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var filters []ChannelFilter
		if err := tx.Where("river_id = ?", river.ID).Find(&filters).Error; err != nil {
			return newServiceError(opDeleteRiver, "filters_load_failed", err)
		}
		for _, filter := range filters {
			usage, err := channelQuotaUsage(tx, filter.ID)
			if err != nil {
				return newServiceError(opDeleteRiver, "usage_read_failed", err)
			}
			for key, units := range usage {
				if err := accounts.DecreaseChannelUsage(tx, river.AccountID, filter.Channel, key, units); err != nil {
					return newServiceError(opDeleteRiver, "usage_credit_failed", err)
				}
			}
		}

		optionScope := tx.Model(&ChannelFilter{}).Select("id").Where("river_id = ?", river.ID)
		if err := tx.Where("channel_filter_id IN (?)", optionScope).Delete(&ChannelFilterOption{}).Error; err != nil {
			return newServiceError(opDeleteRiver, "options_delete_failed", err)
		}
		if err := tx.Where("river_id = ?", river.ID).Delete(&ChannelFilter{}).Error; err != nil {
			return newServiceError(opDeleteRiver, "filters_delete_failed", err)
		}
		if err := tx.Where("river_id = ?", river.ID).Delete(&RiverDroplet{}).Error; err != nil {
			return newServiceError(opDeleteRiver, "associations_delete_failed", err)
		}
		if err := tx.Where("river_id = ?", river.ID).Delete(&Subscription{}).Error; err != nil {
			return newServiceError(opDeleteRiver, "subscriptions_delete_failed", err)
		}
		if err := tx.Where("river_id = ?", river.ID).Delete(&Collaborator{}).Error; err != nil {
			return newServiceError(opDeleteRiver, "collaborators_delete_failed", err)
		}
		if err := tx.Delete(&River{}, river.ID).Error; err != nil {
			return newServiceError(opDeleteRiver, "river_delete_failed", err)
		}
		if err := accounts.CreditRiverQuota(tx, river.AccountID, 1); err != nil {
			return newServiceError(opDeleteRiver, "quota_credit_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteRiver, "transaction_failed", txErr, zap.Int64("river_id", riverID))
		return txErr
	}

	return nil
}

// UpdateRiverParams describes a settings update. The slug derived at
// creation is deliberately left untouched.
type UpdateRiverParams struct {
	Name   string
	Public bool
	Layout string
}

// UpdateRiver applies a settings update and publishes river.save.
func (s *Service) UpdateRiver(ctx context.Context, riverID int64, params UpdateRiverParams) (River, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return River{}, newServiceError(opUpdateRiver, "empty_name", ErrValidation)
	}
	if len(name) > maxRiverNameLength {
		return River{}, newServiceError(opUpdateRiver, "name_too_long", ErrValidation)
	}
	layout, err := normalizeLayout(params.Layout)
	if err != nil {
		return River{}, newServiceError(opUpdateRiver, "invalid_layout", err)
	}

	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return River{}, err
	}

	updates := map[string]any{
		"river_name":     name,
		"river_public":   params.Public,
		"default_layout": layout,
	}
	if err := s.db.WithContext(ctx).Model(&River{}).Where("id = ?", river.ID).Updates(updates).Error; err != nil {
		s.logError(opUpdateRiver, "update_failed", err, zap.Int64("river_id", riverID))
		return River{}, newServiceError(opUpdateRiver, "update_failed", err)
	}

	river.Name = name
	river.Public = params.Public
	river.DefaultLayout = layout

	s.events.Publish(ctx, event.Event{Name: event.RiverSave, RiverID: river.ID})

	return river, nil
}

// GetRiver loads a river by id.
func (s *Service) GetRiver(ctx context.Context, riverID int64) (River, error) {
	var river River
	err := s.db.WithContext(ctx).Take(&river, riverID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return River{}, newServiceError(opGetRiver, "river_not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGetRiver, "river_load_failed", err, zap.Int64("river_id", riverID))
		return River{}, newServiceError(opGetRiver, "river_load_failed", err)
	}
	return river, nil
}

// GetRiversByIDs loads the rivers with the given ids, skipping unknown ones.
func (s *Service) GetRiversByIDs(ctx context.Context, ids []int64) ([]River, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var loaded []River
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&loaded).Error; err != nil {
		s.logError(opGetRiver, "rivers_load_failed", err)
		return nil, newServiceError(opGetRiver, "rivers_load_failed", err)
	}
	return loaded, nil
}

// ListRivers returns the rivers owned by the user's account, cached per user
// and purged on creation.
func (s *Service) ListRivers(ctx context.Context, userID int64) ([]River, error) {
	key := userRiversKey(userID)
	if cached, ok := s.cache.Get(key); ok {
		if listing, ok := cached.([]River); ok {
			return listing, nil
		}
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, newServiceError(opListRivers, "user_not_found", ErrNotFound)
	}

	var listing []River
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", user.AccountID).
		Order("river_date_add DESC").
		Find(&listing).Error; err != nil {
		s.logError(opListRivers, "query_failed", err, zap.Int64("user_id", userID))
		return nil, newServiceError(opListRivers, "query_failed", err)
	}

	if len(listing) > 0 {
		s.cache.Set(key, listing, s.feedTTL)
	}
	return listing, nil
}

// RiverSummary is the river as presented in listings, with the viewer's
// relationship resolved.
type RiverSummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	AccountID       int64  `json:"account_id"`
	UserID          int64  `json:"user_id"`
	AccountPath     string `json:"account_path"`
	SubscriberCount int64  `json:"subscriber_count"`
	IsOwner         bool   `json:"is_owner"`
	Collaborator    bool   `json:"collaborator"`
	Subscribed      bool   `json:"subscribed"`
	Public          bool   `json:"public"`
}

// GetRiverSummary resolves the river's summary for the given viewer. A
// collaborator counts as subscribed even without a subscription row.
func (s *Service) GetRiverSummary(ctx context.Context, riverID, viewerID int64) (RiverSummary, error) {
	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return RiverSummary{}, err
	}
	account, err := s.loadAccount(ctx, river.AccountID)
	if err != nil {
		return RiverSummary{}, newServiceError(opRiverSummary, "account_load_failed", err)
	}

	owner, err := s.IsOwner(ctx, &river, viewerID)
	if err != nil {
		return RiverSummary{}, err
	}
	collaborator, err := s.IsCollaborator(ctx, river.ID, viewerID)
	if err != nil {
		return RiverSummary{}, err
	}
	subscriber, err := s.IsSubscriber(ctx, river.ID, viewerID)
	if err != nil {
		return RiverSummary{}, err
	}
	count, err := s.SubscriberCount(ctx, river.ID)
	if err != nil {
		return RiverSummary{}, err
	}

	return RiverSummary{
		ID:              river.ID,
		Name:            river.Name,
		Type:            "river",
		URL:             fmt.Sprintf("/%s/river/%s", account.Path, river.Slug),
		AccountID:       account.ID,
		UserID:          account.UserID,
		AccountPath:     account.Path,
		SubscriberCount: count,
		IsOwner:         owner,
		Collaborator:    collaborator,
		Subscribed:      subscriber || collaborator,
		Public:          river.Public,
	}, nil
}

func normalizeLayout(layout string) (string, error) {
	switch strings.TrimSpace(layout) {
	case "":
		return LayoutDrops, nil
	case LayoutDrops, LayoutList, LayoutPhotos:
		return strings.TrimSpace(layout), nil
	default:
		return "", fmt.Errorf("%w: unknown layout %q", ErrValidation, layout)
	}
}

func (s *Service) loadUser(ctx context.Context, userID int64) (accounts.User, error) {
	var user accounts.User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	return user, err
}

func (s *Service) loadAccount(ctx context.Context, accountID int64) (accounts.Account, error) {
	var account accounts.Account
	err := s.db.WithContext(ctx).Take(&account, accountID).Error
	return account, err
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("rivers service error", attrs...)
}
