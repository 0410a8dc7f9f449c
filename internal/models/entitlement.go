package models

import (
	"time"
)

// Entitlement records that a player owns a rank. One row per owned rank per
// player; the composite unique index makes re-granting an upsert no-op, which
// is what keeps duplicate webhook deliveries safe.
type Entitlement struct {
	BaseModel

	PlayerName string    `json:"player_name" gorm:"not null;size:64;uniqueIndex:idx_player_rank"` // normalized lowercase
	RankID     string    `json:"rank_id" gorm:"not null;size:100;uniqueIndex:idx_player_rank"`
	GrantedAt  time.Time `json:"granted_at"`

	// Checkout session that granted this rank, kept for audit only
	SessionID string `json:"session_id" gorm:"size:100"`
}
