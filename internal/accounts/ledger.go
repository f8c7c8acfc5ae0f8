package accounts

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrInsufficientQuota indicates a debit was attempted against an
	// exhausted counter. Creation paths gate on remaining quota first, so
	// reaching this from a credit/debit pair is an invariant violation.
	ErrInsufficientQuota = errors.New("accounts: insufficient quota")
	// ErrAccountNotFound indicates the referenced account row does not exist.
	ErrAccountNotFound = errors.New("accounts: account not found")
)

// Ledger functions take the enclosing transaction handle so quota arithmetic
// commits or rolls back together with the river mutation that triggered it.

// RemainingRiverQuota reads the account's remaining river quota.
func RemainingRiverQuota(tx *gorm.DB, accountID int64) (int, error) {
	var account Account
	err := tx.Take(&account, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return account.RiverQuotaRemaining, nil
}

// DebitRiverQuota consumes one unit of the account's river quota. The guarded
// update keeps the counter non-negative even under concurrent creations.
func DebitRiverQuota(tx *gorm.DB, accountID int64) error {
	result := tx.Model(&Account{}).
		Where("id = ? AND river_quota_remaining > 0", accountID).
		Update("river_quota_remaining", gorm.Expr("river_quota_remaining - 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: river quota of account %d", ErrInsufficientQuota, accountID)
	}
	return nil
}

// CreditRiverQuota returns units units to the account's river quota.
func CreditRiverQuota(tx *gorm.DB, accountID int64, units int) error {
	if units <= 0 {
		return nil
	}
	result := tx.Model(&Account{}).
		Where("id = ?", accountID).
		Update("river_quota_remaining", gorm.Expr("river_quota_remaining + ?", units))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// IncreaseChannelUsage records units additional units of per-key channel
// quota usage, creating the counter row on first use.
func IncreaseChannelUsage(tx *gorm.DB, accountID int64, channel, key string, units int) error {
	if units <= 0 {
		return nil
	}
	var quota ChannelQuota
	err := tx.Where("account_id = ? AND channel = ? AND quota_key = ?", accountID, channel, key).
		Take(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		quota = ChannelQuota{AccountID: accountID, Channel: channel, Key: key, Used: units}
		return tx.Create(&quota).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&ChannelQuota{}).
		Where("id = ?", quota.ID).
		Update("used", gorm.Expr("used + ?", units)).Error
}

// DecreaseChannelUsage credits units units of per-key channel quota back to
// the account. Decrementing below zero is an invariant violation.
func DecreaseChannelUsage(tx *gorm.DB, accountID int64, channel, key string, units int) error {
	if units <= 0 {
		return nil
	}
	result := tx.Model(&ChannelQuota{}).
		Where("account_id = ? AND channel = ? AND quota_key = ? AND used >= ?", accountID, channel, key, units).
		Update("used", gorm.Expr("used - ?", units))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: channel %s key %s of account %d", ErrInsufficientQuota, channel, key, accountID)
	}
	return nil
}

// ChannelUsage reads the account's per-key usage for a channel.
func ChannelUsage(tx *gorm.DB, accountID int64, channel string) (map[string]int, error) {
	var rows []ChannelQuota
	if err := tx.Where("account_id = ? AND channel = ?", accountID, channel).Find(&rows).Error; err != nil {
		return nil, err
	}
	usage := make(map[string]int, len(rows))
	for _, row := range rows {
		usage[row.Key] = row.Used
	}
	return usage, nil
}
