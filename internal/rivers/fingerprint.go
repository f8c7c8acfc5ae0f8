package rivers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Cache key namespaces. Feed pages, cursor reads, max-id lookups and river
// listings live in separate namespaces so they can be invalidated (or aged)
// independently.
const (
	feedKeyPrefix       = "river_drops_"
	feedSinceKeyPrefix  = "river_drops_since_"
	maxDropletKeyPrefix = "river_max_id_"
	userRiversKeyPrefix = "user_rivers_"
)

// DropFilters is the active filter set of a feed request. Channel and tag
// matching is case-insensitive; the date bounds are inclusive calendar days
// in "2006-01-02" form.
type DropFilters struct {
	Channels []string `json:"channels,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
}

// IsZero reports whether no filter is active.
func (f DropFilters) IsZero() bool {
	return len(f.Channels) == 0 && len(f.Tags) == 0 && f.DateFrom == "" && f.DateTo == ""
}

// canonical returns a serialization that is identical for logically equal
// filter sets: list order is normalized and the JSON field order is fixed.
// Losing this property would degrade the fingerprint cache to miss-only.
func (f DropFilters) canonical() string {
	normalized := DropFilters{
		Channels: normalizeFilterList(f.Channels),
		Tags:     normalizeFilterList(f.Tags),
		DateFrom: strings.TrimSpace(f.DateFrom),
		DateTo:   strings.TrimSpace(f.DateTo),
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		// A plain struct of strings and string slices cannot fail to encode.
		return fmt.Sprintf("%#v", normalized)
	}
	return string(encoded)
}

func normalizeFilterList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	if len(normalized) == 0 {
		return nil
	}
	sort.Strings(normalized)
	return normalized
}

// feedFingerprint derives the deterministic cache key digest for an
// offset-mode feed request. Equal parameter tuples hash identically; any
// differing field changes the digest.
func feedFingerprint(viewerID, riverID, dropID int64, page int, maxID int64, filters DropFilters, photosOnly bool) string {
	return requestDigest(
		strconv.FormatInt(viewerID, 10),
		strconv.FormatInt(riverID, 10),
		strconv.FormatInt(dropID, 10),
		strconv.Itoa(page),
		strconv.FormatInt(maxID, 10),
		filters.canonical(),
		boolField(photosOnly),
	)
}

// sinceFingerprint derives the cache key digest for a cursor-mode request.
func sinceFingerprint(viewerID, riverID, sinceID int64, filters DropFilters, photosOnly bool) string {
	return requestDigest(
		strconv.FormatInt(viewerID, 10),
		strconv.FormatInt(riverID, 10),
		strconv.FormatInt(sinceID, 10),
		filters.canonical(),
		boolField(photosOnly),
	)
}

func requestDigest(fields ...string) string {
	digest := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(digest[:])
}

func boolField(value bool) string {
	if value {
		return "1"
	}
	return "0"
}

func maxDropletKey(riverID int64) string {
	return maxDropletKeyPrefix + strconv.FormatInt(riverID, 10)
}

func userRiversKey(userID int64) string {
	return userRiversKeyPrefix + strconv.FormatInt(userID, 10)
}
