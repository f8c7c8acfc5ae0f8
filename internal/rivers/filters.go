package rivers

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const filterDateLayout = "2006-01-02"

// applyDropFilters narrows a feed query to the active filter set. A filter
// value that fails to parse makes the whole request match nothing; the
// second return value reports that short-circuit so callers can skip the
// query instead of erroring.
func applyDropFilters(query *gorm.DB, filters DropFilters) (*gorm.DB, bool) {
	if channelKeys := normalizeFilterList(filters.Channels); len(channelKeys) > 0 {
		query = query.Where("lower(droplets.channel) IN ?", channelKeys)
	}

	if tags := normalizeFilterList(filters.Tags); len(tags) > 0 {
		query = query.Where(
			"EXISTS (SELECT 1 FROM droplet_tags INNER JOIN tags ON tags.id = droplet_tags.tag_id"+
				" WHERE droplet_tags.droplet_id = droplets.id AND droplet_tags.deleted = ? AND lower(tags.tag) IN ?)",
			false, tags)
	}

	if from := strings.TrimSpace(filters.DateFrom); from != "" {
		parsed, err := time.Parse(filterDateLayout, from)
		if err != nil {
			return query, false
		}
		query = query.Where("rivers_droplets.droplet_date_pub >= ?", parsed)
	}

	if to := strings.TrimSpace(filters.DateTo); to != "" {
		parsed, err := time.Parse(filterDateLayout, to)
		if err != nil {
			return query, false
		}
		// Inclusive day bound.
		query = query.Where("rivers_droplets.droplet_date_pub < ?", parsed.AddDate(0, 0, 1))
	}

	return query, true
}
