package database

import (
	"time"

	"rankshop-api/internal/models"
	"rankshop-api/pkg/logging"
)

// CreatePendingPurchase records a purchase awaiting reconciliation. Keyed on
// session id; calling it again for the same session is a no-op, which lets
// the orchestrator create the record defensively when checkout didn't.
func CreatePendingPurchase(pending *models.PendingPurchase) error {
	return DB.Where("session_id = ?", pending.SessionID).FirstOrCreate(pending).Error
}

// GetPendingPurchaseBySession returns the pending purchase for a checkout
// session, or nil when none exists.
func GetPendingPurchaseBySession(sessionID string) (*models.PendingPurchase, error) {
	var pending models.PendingPurchase
	err := DB.Where("session_id = ?", sessionID).First(&pending).Error
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// DeletePendingPurchase removes the pending record for a reconciled purchase.
// Matches on session id first; when the gateway delivered a truncated or
// rewritten session id, falls back to the player+rank pair so the row still
// gets cleared. Deleting a missing row is a no-op.
func DeletePendingPurchase(sessionID, rankID, playerName string) error {
	result := DB.Unscoped().Where("session_id = ?", sessionID).Delete(&models.PendingPurchase{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 && rankID != "" && playerName != "" {
		fallback := DB.Unscoped().
			Where("rank_id = ? AND player_name = ?", rankID, playerName).
			Delete(&models.PendingPurchase{})
		if fallback.Error != nil {
			return fallback.Error
		}
		if fallback.RowsAffected > 0 {
			logging.Infof("Pending purchase cleared by player+rank fallback - session: %s, player: %s, rank: %s",
				sessionID, playerName, rankID)
		}
	}

	return nil
}

// ListPendingPurchases returns all pending purchases, newest first
func ListPendingPurchases() ([]models.PendingPurchase, error) {
	var pending []models.PendingPurchase
	err := DB.Order("created_at DESC").Find(&pending).Error
	return pending, err
}

// ListStalePendingPurchases returns unalerted pending purchases created before
// the cutoff. These are the stuck purchases the watcher surfaces to operators.
func ListStalePendingPurchases(olderThan time.Duration) ([]models.PendingPurchase, error) {
	cutoff := time.Now().Add(-olderThan)

	var pending []models.PendingPurchase
	err := DB.Where("created_at < ? AND alerted = ?", cutoff, false).
		Order("created_at ASC").
		Find(&pending).Error
	return pending, err
}

// MarkPendingPurchaseAlerted records that operators were notified about a row
func MarkPendingPurchaseAlerted(id uint) error {
	return DB.Model(&models.PendingPurchase{}).Where("id = ?", id).Update("alerted", true).Error
}

// DeletePlayerPendingPurchases removes every pending purchase of a player.
// Admin reset only.
func DeletePlayerPendingPurchases(playerName string) (int64, error) {
	result := DB.Unscoped().Where("player_name = ?", playerName).Delete(&models.PendingPurchase{})
	return result.RowsAffected, result.Error
}
