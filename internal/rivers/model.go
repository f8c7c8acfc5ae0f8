package rivers

import "time"

// Display layouts a river can default to.
const (
	LayoutDrops  = "drops"
	LayoutList   = "list"
	LayoutPhotos = "photos"
)

const maxRiverNameLength = 255

// River is a named, owned, filterable feed of droplets.
//
// The slug is derived from the name once at creation and is not guaranteed
// unique; callers must detect collisions externally. MaxDropID is a
// denormalized copy of the highest association row id, maintained by the
// ingestion pipeline. The expired flag is flipped by an external scheduled
// process when the wall-clock expiry passes; it is never recomputed on read.
type River struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"column:river_name;size:255;not null" json:"name"`
	Slug             string    `gorm:"column:river_name_url;size:255;not null;index" json:"slug"`
	AccountID        int64     `gorm:"column:account_id;not null;index" json:"account_id"`
	Public           bool      `gorm:"column:river_public;not null;default:false" json:"public"`
	DefaultLayout    string    `gorm:"column:default_layout;size:16;not null;default:drops" json:"layout"`
	DateAdded        time.Time `gorm:"column:river_date_add;not null" json:"date_added"`
	DateExpiry       time.Time `gorm:"column:river_date_expiry;not null" json:"date_expiry"`
	Active           bool      `gorm:"column:river_active;not null;default:true" json:"active"`
	Expired          bool      `gorm:"column:river_expired;not null;default:false" json:"expired"`
	Full             bool      `gorm:"column:river_full;not null;default:false" json:"full"`
	NotificationSent bool      `gorm:"column:expiry_notification_sent;not null;default:false" json:"notification_sent"`
	ExtensionCount   int       `gorm:"column:extension_count;not null;default:0" json:"extension_count"`
	DropQuota        int       `gorm:"column:drop_quota;not null;default:0" json:"drop_quota"`
	MaxDropID        int64     `gorm:"column:max_drop_id;not null;default:0" json:"max_drop_id"`
	PublicToken      *string   `gorm:"column:public_token;size:64" json:"public_token,omitempty"`
}

// TableName exposes the table backing rivers.
func (River) TableName() string {
	return "rivers"
}

// RiverDroplet links a river to a droplet. Its autoincrementing id is the
// feed cursor; the droplet's publish timestamp is denormalized here for
// ordering without touching the droplets table.
type RiverDroplet struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RiverID   int64     `gorm:"column:river_id;not null;index:idx_rivers_droplets_river"`
	DropletID int64     `gorm:"column:droplet_id;not null;index"`
	DatePub   time.Time `gorm:"column:droplet_date_pub;not null"`
}

// TableName exposes the table backing river-droplet associations.
func (RiverDroplet) TableName() string {
	return "rivers_droplets"
}

// ChannelFilter enables one content channel for a river.
type ChannelFilter struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RiverID   int64     `gorm:"column:river_id;not null;index" json:"river_id"`
	Channel   string    `gorm:"column:channel;size:64;not null" json:"channel"`
	Enabled   bool      `gorm:"column:filter_enabled;not null;default:true" json:"enabled"`
	DateAdded time.Time `gorm:"column:filter_date_add;not null" json:"date_added"`
}

// TableName exposes the table backing channel filters.
func (ChannelFilter) TableName() string {
	return "channel_filters"
}

// ChannelFilterOption is one key/value configuration entry of a channel
// filter. The value is an opaque JSON payload interpreted per the channel's
// registered option schema.
type ChannelFilterOption struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChannelFilterID int64  `gorm:"column:channel_filter_id;not null;index" json:"channel_filter_id"`
	Key             string `gorm:"column:option_key;size:64;not null" json:"key"`
	Value           string `gorm:"column:option_value;type:text;not null" json:"value"`
}

// TableName exposes the table backing channel filter options.
func (ChannelFilterOption) TableName() string {
	return "channel_filter_options"
}

// Collaborator grants a user access to a river they do not own. Inactive
// rows represent pending invitations. At most one row exists per
// (river, user) pair.
type Collaborator struct {
	ID       int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RiverID  int64 `gorm:"column:river_id;not null;uniqueIndex:idx_river_collaborator_pair,priority:1" json:"river_id"`
	UserID   int64 `gorm:"column:user_id;not null;uniqueIndex:idx_river_collaborator_pair,priority:2" json:"user_id"`
	ReadOnly bool  `gorm:"column:read_only;not null;default:false" json:"read_only"`
	Active   bool  `gorm:"column:collaborator_active;not null;default:false" json:"active"`
}

// TableName exposes the table backing river collaborators.
func (Collaborator) TableName() string {
	return "river_collaborators"
}

// Subscription marks a user as following a river. Existence implies
// subscribed; there are no further attributes.
type Subscription struct {
	RiverID int64 `gorm:"column:river_id;primaryKey"`
	UserID  int64 `gorm:"column:user_id;primaryKey"`
}

// TableName exposes the table backing river subscriptions.
func (Subscription) TableName() string {
	return "river_subscriptions"
}
