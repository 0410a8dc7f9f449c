package database

import (
	"time"

	"rankshop-api/internal/models"

	"gorm.io/gorm/clause"
)

// UpsertEntitlement durably records that a player owns a rank. The insert is
// keyed on the (player_name, rank_id) unique index and does nothing on
// conflict, so replayed webhook deliveries never create a second row.
func UpsertEntitlement(playerName, rankID, sessionID string) error {
	entitlement := models.Entitlement{
		PlayerName: playerName,
		RankID:     rankID,
		SessionID:  sessionID,
		GrantedAt:  time.Now(),
	}

	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_name"}, {Name: "rank_id"}},
		DoNothing: true,
	}).Create(&entitlement).Error
}

// GetPlayerEntitlements returns all ranks owned by a player
func GetPlayerEntitlements(playerName string) ([]models.Entitlement, error) {
	var entitlements []models.Entitlement
	err := DB.Where("player_name = ?", playerName).Order("granted_at ASC").Find(&entitlements).Error
	return entitlements, err
}

// GetPlayerRankIDs returns the rank ids owned by a player
func GetPlayerRankIDs(playerName string) ([]string, error) {
	entitlements, err := GetPlayerEntitlements(playerName)
	if err != nil {
		return nil, err
	}

	rankIDs := make([]string, 0, len(entitlements))
	for _, entitlement := range entitlements {
		rankIDs = append(rankIDs, entitlement.RankID)
	}
	return rankIDs, nil
}

// HasEntitlement checks whether a player already owns a rank
func HasEntitlement(playerName, rankID string) (bool, error) {
	var count int64
	err := DB.Model(&models.Entitlement{}).
		Where("player_name = ? AND rank_id = ?", playerName, rankID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeletePlayerEntitlements removes every entitlement of a player. Admin reset
// only; fulfillment never deletes entitlements.
func DeletePlayerEntitlements(playerName string) (int64, error) {
	result := DB.Unscoped().Where("player_name = ?", playerName).Delete(&models.Entitlement{})
	return result.RowsAffected, result.Error
}
