package models

// PendingPurchase represents a payment known (or expected) to be captured but
// not yet confirmed fully reconciled. Created when the checkout session is
// created, deleted when fulfillment confirms the entitlement write. A row that
// survives longer than expected is the signal of a stuck purchase.
type PendingPurchase struct {
	BaseModel

	SessionID  string `json:"session_id" gorm:"not null;size:100;uniqueIndex"`
	PlayerName string `json:"player_name" gorm:"not null;size:64;index"` // normalized lowercase
	RankID     string `json:"rank_id" gorm:"not null;size:100"`
	UserID     string `json:"user_id" gorm:"size:100"` // requesting site account, if known
	IsGift     bool   `json:"is_gift"`

	// Set once the watcher has emailed operators about this row, so a stuck
	// purchase is reported once rather than on every sweep
	Alerted bool `json:"alerted"`
}
