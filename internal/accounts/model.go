package accounts

import "time"

// User is a login identity. Rivers are owned by accounts, not users; the
// user referenced by Account.UserID is the account creator.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Email     string    `gorm:"column:email;size:320;not null;index"`
	AccountID int64     `gorm:"column:account_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// Account owns rivers and carries the quota counters the ledger mutates.
// Public marks the distinguished system account whose rivers are owned by
// everyone.
type Account struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID              int64     `gorm:"column:user_id;not null;index"`
	Path                string    `gorm:"column:account_path;size:255;not null;uniqueIndex"`
	Public              bool      `gorm:"column:account_public;not null;default:false"`
	RiverQuotaRemaining int       `gorm:"column:river_quota_remaining;not null;default:0"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

// ChannelQuota tracks how many units of a channel's per-key quota an account
// is currently using. One row per (account, channel, key).
type ChannelQuota struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID int64  `gorm:"column:account_id;not null;uniqueIndex:idx_channel_quota_scope,priority:1"`
	Channel   string `gorm:"column:channel;size:64;not null;uniqueIndex:idx_channel_quota_scope,priority:2"`
	Key       string `gorm:"column:quota_key;size:64;not null;uniqueIndex:idx_channel_quota_scope,priority:3"`
	Used      int    `gorm:"column:used;not null;default:0"`
}

// TableName exposes the table backing per-channel quota usage.
func (ChannelQuota) TableName() string {
	return "account_channel_quotas"
}
