package drops

import "time"

// Droplet is a single ingested content item. Droplets are shared across
// rivers; a river only references them through its association rows.
type Droplet struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title         string    `gorm:"column:droplet_title;size:255;not null"`
	Content       string    `gorm:"column:droplet_content;type:text;not null"`
	Channel       string    `gorm:"column:channel;size:64;not null;index"`
	IdentityID    int64     `gorm:"column:identity_id;not null;index"`
	DatePub       time.Time `gorm:"column:droplet_date_pub;not null"`
	ImageID       int64     `gorm:"column:droplet_image;not null;default:0"`
	OriginalURLID *int64    `gorm:"column:original_url_id"`
	CommentCount  int       `gorm:"column:comment_count;not null;default:0"`
}

// TableName exposes the table backing droplets.
func (Droplet) TableName() string {
	return "droplets"
}

// Identity is the author a droplet was attributed to at ingestion time.
type Identity struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name   string `gorm:"column:identity_name;size:255;not null"`
	Avatar string `gorm:"column:identity_avatar;size:512"`
}

// TableName exposes the table backing identities.
func (Identity) TableName() string {
	return "identities"
}

// Link is a URL record; droplets point at their canonical original URL here.
type Link struct {
	ID  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	URL string `gorm:"column:url;size:2048;not null"`
}

// TableName exposes the table backing links.
func (Link) TableName() string {
	return "links"
}

// Score is a viewer's personalized rating of a droplet.
type Score struct {
	DropletID int64 `gorm:"column:droplet_id;primaryKey"`
	UserID    int64 `gorm:"column:user_id;primaryKey"`
	Score     int64 `gorm:"column:score;not null;default:0"`
}

// TableName exposes the table backing droplet scores.
func (Score) TableName() string {
	return "droplet_scores"
}

// Tag is a label attachable to droplets.
type Tag struct {
	ID  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Tag string `gorm:"column:tag;size:255;not null"`
}

// TableName exposes the table backing tags.
func (Tag) TableName() string {
	return "tags"
}

// Place is a geographic label attachable to droplets.
type Place struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:place_name;size:255;not null"`
}

// TableName exposes the table backing places.
func (Place) TableName() string {
	return "places"
}

// DropletTag attaches a tag to a droplet within the scope of one account.
type DropletTag struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DropletID int64 `gorm:"column:droplet_id;not null;index"`
	TagID     int64 `gorm:"column:tag_id;not null"`
	AccountID int64 `gorm:"column:account_id;not null"`
	Deleted   bool  `gorm:"column:deleted;not null;default:false"`
}

// TableName exposes the table backing droplet tag assignments.
func (DropletTag) TableName() string {
	return "droplet_tags"
}

// DropletPlace attaches a place to a droplet within the scope of one account.
type DropletPlace struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DropletID int64 `gorm:"column:droplet_id;not null;index"`
	PlaceID   int64 `gorm:"column:place_id;not null"`
	AccountID int64 `gorm:"column:account_id;not null"`
	Deleted   bool  `gorm:"column:deleted;not null;default:false"`
}

// TableName exposes the table backing droplet place assignments.
func (DropletPlace) TableName() string {
	return "droplet_places"
}

// DropletLink attaches a link to a droplet within the scope of one account.
type DropletLink struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DropletID int64 `gorm:"column:droplet_id;not null;index"`
	LinkID    int64 `gorm:"column:link_id;not null"`
	AccountID int64 `gorm:"column:account_id;not null"`
	Deleted   bool  `gorm:"column:deleted;not null;default:false"`
}

// TableName exposes the table backing droplet link assignments.
func (DropletLink) TableName() string {
	return "droplet_links"
}

// TagSummary is a tag attached to a drop summary.
type TagSummary struct {
	ID  int64  `json:"id"`
	Tag string `json:"tag"`
}

// PlaceSummary is a place attached to a drop summary.
type PlaceSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LinkSummary is a link attached to a drop summary.
type LinkSummary struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Summary is one row of a river feed: the droplet joined with its author,
// the viewer's score, the canonical original URL and account-scoped metadata.
type Summary struct {
	ID             int64          `json:"id"`
	SortID         int64          `json:"sort_id"`
	Title          string         `json:"droplet_title"`
	Content        string         `json:"droplet_content"`
	Channel        string         `json:"channel"`
	IdentityName   string         `json:"identity_name"`
	IdentityAvatar string         `json:"identity_avatar"`
	DatePub        string         `json:"droplet_date_pub"`
	UserScore      *int64         `json:"user_score"`
	OriginalURL    *string        `json:"original_url"`
	CommentCount   int            `json:"comment_count"`
	Tags           []TagSummary   `json:"tags"`
	Places         []PlaceSummary `json:"places"`
	Links          []LinkSummary  `json:"links"`
}
