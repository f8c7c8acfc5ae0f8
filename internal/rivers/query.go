package rivers

import (
	"context"
	"math"
	"time"

	"github.com/philthes/SwiftRiver/internal/drops"
	"go.uber.org/zap"
)

// Feed rows are formatted the way the original web client expects them.
const datePubLayout = "Jan 2, 2006 15:04:05 UTC"

// Association rows carrying the zero publish timestamp are unmigrated or
// corrupt and are excluded from offset-mode feeds.
var zeroDatePub = time.Time{}

const feedSelect = "droplets.id AS id, rivers_droplets.id AS sort_id, " +
	"droplets.droplet_title AS title, droplets.droplet_content AS content, " +
	"droplets.channel AS channel, identities.identity_name AS identity_name, " +
	"identities.identity_avatar AS identity_avatar, rivers_droplets.droplet_date_pub AS date_pub, " +
	"user_scores.score AS user_score, links.url AS original_url, droplets.comment_count AS comment_count"

type feedRow struct {
	ID             int64
	SortID         int64
	Title          string
	Content        string
	Channel        string
	IdentityName   string
	IdentityAvatar string
	DatePub        time.Time
	UserScore      *int64
	OriginalURL    *string
	CommentCount   int
}

// FeedPageParams describes an offset-mode feed request. A non-zero DropID
// turns the request into a detail fetch for exactly that drop, ignoring
// pagination. MaxID caps the association row id so pages stay stable while
// ingestion appends; zero means no ceiling.
type FeedPageParams struct {
	ViewerID   int64
	RiverID    int64
	DropID     int64
	Page       int
	MaxID      int64
	PhotosOnly bool
	Filters    DropFilters
	Limit      int
}

// FeedSinceParams describes a cursor-mode feed request: drops whose
// association row id is strictly greater than SinceID, ascending.
type FeedSinceParams struct {
	ViewerID   int64
	RiverID    int64
	SinceID    int64
	PhotosOnly bool
	Filters    DropFilters
	Limit      int
}

// GetDroplets retrieves one page of a river's feed, newest publish timestamp
// first. Results are served from the fingerprint cache when an identical
// request was answered within the TTL; only non-empty pages are cached, so a
// transiently empty feed is recomputed on the next call.
func (s *Service) GetDroplets(ctx context.Context, params FeedPageParams) ([]drops.Summary, error) {
	if params.Limit <= 0 {
		params.Limit = defaultFeedLimit
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.MaxID <= 0 {
		params.MaxID = math.MaxInt64
	}

	key := feedKeyPrefix + feedFingerprint(params.ViewerID, params.RiverID, params.DropID,
		params.Page, params.MaxID, params.Filters, params.PhotosOnly)
	if cached, ok := s.cache.Get(key); ok {
		if summaries, ok := cached.([]drops.Summary); ok {
			return summaries, nil
		}
	}

	river, err := s.GetRiver(ctx, params.RiverID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Table("rivers_droplets").
		Select(feedSelect).
		Joins("INNER JOIN droplets ON rivers_droplets.droplet_id = droplets.id").
		Joins("INNER JOIN identities ON droplets.identity_id = identities.id").
		Joins("LEFT JOIN droplet_scores user_scores ON user_scores.droplet_id = droplets.id AND user_scores.user_id = ?", params.ViewerID).
		Joins("LEFT JOIN links ON links.id = droplets.original_url_id").
		Where("rivers_droplets.droplet_date_pub > ?", zeroDatePub).
		Where("rivers_droplets.river_id = ?", river.ID)

	if params.DropID > 0 {
		query = query.Where("droplets.id = ?", params.DropID)
	} else {
		query = query.Where("rivers_droplets.id <= ?", params.MaxID)
	}
	if params.PhotosOnly {
		query = query.Where("droplets.droplet_image > 0")
	}

	query, ok := applyDropFilters(query, params.Filters)
	if !ok {
		return []drops.Summary{}, nil
	}

	query = query.Order("rivers_droplets.droplet_date_pub DESC").Limit(params.Limit)
	if params.DropID == 0 {
		query = query.Offset(params.Limit * (params.Page - 1))
	}

	var rows []feedRow
	if err := query.Scan(&rows).Error; err != nil {
		s.logError(opGetDroplets, "query_failed", err, zap.Int64("river_id", river.ID))
		return nil, newServiceError(opGetDroplets, "query_failed", err)
	}

	summaries, err := s.buildSummaries(ctx, rows, river.AccountID)
	if err != nil {
		return nil, newServiceError(opGetDroplets, "metadata_failed", err)
	}

	if len(summaries) > 0 {
		s.cache.Set(key, summaries, s.feedTTL)
	}
	return summaries, nil
}

// GetDropletsSince retrieves drops past the caller's cursor, ordered by
// ascending association row id, always from offset zero. Intended for
// incremental polling; the client remembers the highest sort id seen.
func (s *Service) GetDropletsSince(ctx context.Context, params FeedSinceParams) ([]drops.Summary, error) {
	if params.Limit <= 0 {
		params.Limit = defaultSinceLimit
	}

	key := feedSinceKeyPrefix + sinceFingerprint(params.ViewerID, params.RiverID,
		params.SinceID, params.Filters, params.PhotosOnly)
	if cached, ok := s.cache.Get(key); ok {
		if summaries, ok := cached.([]drops.Summary); ok {
			return summaries, nil
		}
	}

	river, err := s.GetRiver(ctx, params.RiverID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Table("rivers_droplets").
		Select(feedSelect).
		Joins("INNER JOIN droplets ON rivers_droplets.droplet_id = droplets.id").
		Joins("INNER JOIN identities ON droplets.identity_id = identities.id").
		Joins("LEFT JOIN droplet_scores user_scores ON user_scores.droplet_id = droplets.id AND user_scores.user_id = ?", params.ViewerID).
		Joins("LEFT JOIN links ON links.id = droplets.original_url_id").
		Where("rivers_droplets.river_id = ?", river.ID).
		Where("rivers_droplets.id > ?", params.SinceID)

	if params.PhotosOnly {
		query = query.Where("droplets.droplet_image > 0")
	}

	query, ok := applyDropFilters(query, params.Filters)
	if !ok {
		return []drops.Summary{}, nil
	}

	var rows []feedRow
	if err := query.Order("rivers_droplets.id ASC").Limit(params.Limit).Offset(0).Scan(&rows).Error; err != nil {
		s.logError(opDropletsSince, "query_failed", err, zap.Int64("river_id", river.ID))
		return nil, newServiceError(opDropletsSince, "query_failed", err)
	}

	summaries, err := s.buildSummaries(ctx, rows, river.AccountID)
	if err != nil {
		return nil, newServiceError(opDropletsSince, "metadata_failed", err)
	}

	if len(summaries) > 0 {
		s.cache.Set(key, summaries, s.feedTTL)
	}
	return summaries, nil
}

// GetMaxDropletID returns the river's highest association row id from its
// denormalized counter. The value changes on every ingested item and is
// polled on every feed refresh, so it is cached briefly in its own key
// namespace.
func (s *Service) GetMaxDropletID(ctx context.Context, riverID int64) (int64, error) {
	key := maxDropletKey(riverID)
	if cached, ok := s.cache.Get(key); ok {
		if maxID, ok := cached.(int64); ok {
			return maxID, nil
		}
	}

	river, err := s.GetRiver(ctx, riverID)
	if err != nil {
		return 0, err
	}

	s.cache.Set(key, river.MaxDropID, s.maxIDTTL)
	return river.MaxDropID, nil
}

// buildSummaries formats raw feed rows and attaches the tags, places and
// links assigned under the river's owning account. Metadata is keyed by
// droplet id and account id, not by river.
func (s *Service) buildSummaries(ctx context.Context, rows []feedRow, accountID int64) ([]drops.Summary, error) {
	summaries := make([]drops.Summary, 0, len(rows))
	if len(rows) == 0 {
		return summaries, nil
	}

	byDroplet := make(map[int64]*drops.Summary, len(rows))
	dropletIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, drops.Summary{
			ID:             row.ID,
			SortID:         row.SortID,
			Title:          row.Title,
			Content:        row.Content,
			Channel:        row.Channel,
			IdentityName:   row.IdentityName,
			IdentityAvatar: row.IdentityAvatar,
			DatePub:        row.DatePub.UTC().Format(datePubLayout),
			UserScore:      row.UserScore,
			OriginalURL:    row.OriginalURL,
			CommentCount:   row.CommentCount,
			Tags:           []drops.TagSummary{},
			Places:         []drops.PlaceSummary{},
			Links:          []drops.LinkSummary{},
		})
		byDroplet[row.ID] = &summaries[len(summaries)-1]
		dropletIDs = append(dropletIDs, row.ID)
	}

	type tagRow struct {
		DropletID int64
		ID        int64
		Tag       string
	}
	var tagRows []tagRow
	err := s.db.WithContext(ctx).Table("droplet_tags").
		Select("droplet_tags.droplet_id AS droplet_id, tags.id AS id, tags.tag AS tag").
		Joins("INNER JOIN tags ON tags.id = droplet_tags.tag_id").
		Where("droplet_tags.droplet_id IN ?", dropletIDs).
		Where("droplet_tags.account_id = ?", accountID).
		Where("droplet_tags.deleted = ?", false).
		Scan(&tagRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range tagRows {
		if summary, ok := byDroplet[row.DropletID]; ok {
			summary.Tags = append(summary.Tags, drops.TagSummary{ID: row.ID, Tag: row.Tag})
		}
	}

	type placeRow struct {
		DropletID int64
		ID        int64
		Name      string
	}
	var placeRows []placeRow
	err = s.db.WithContext(ctx).Table("droplet_places").
		Select("droplet_places.droplet_id AS droplet_id, places.id AS id, places.place_name AS name").
		Joins("INNER JOIN places ON places.id = droplet_places.place_id").
		Where("droplet_places.droplet_id IN ?", dropletIDs).
		Where("droplet_places.account_id = ?", accountID).
		Where("droplet_places.deleted = ?", false).
		Scan(&placeRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range placeRows {
		if summary, ok := byDroplet[row.DropletID]; ok {
			summary.Places = append(summary.Places, drops.PlaceSummary{ID: row.ID, Name: row.Name})
		}
	}

	type linkRow struct {
		DropletID int64
		ID        int64
		URL       string
	}
	var linkRows []linkRow
	err = s.db.WithContext(ctx).Table("droplet_links").
		Select("droplet_links.droplet_id AS droplet_id, links.id AS id, links.url AS url").
		Joins("INNER JOIN links ON links.id = droplet_links.link_id").
		Where("droplet_links.droplet_id IN ?", dropletIDs).
		Where("droplet_links.account_id = ?", accountID).
		Where("droplet_links.deleted = ?", false).
		Scan(&linkRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range linkRows {
		if summary, ok := byDroplet[row.DropletID]; ok {
			summary.Links = append(summary.Links, drops.LinkSummary{ID: row.ID, URL: row.URL})
		}
	}

	return summaries, nil
}
