package services

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/database"
	"rankshop-api/internal/models"
	"rankshop-api/pkg/logging"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
)

var (
	// ErrPaymentNotCompleted means the session has not been paid; nothing is
	// granted and the gateway will send a new event if payment completes
	ErrPaymentNotCompleted = errors.New("payment not completed")

	// ErrMissingMetadata means the payment was captured but the event carries
	// no player or rank to fulfill against; needs manual reconciliation
	ErrMissingMetadata = errors.New("missing purchase metadata")
)

// PurchaseIntent is the purchase reconstructed from webhook event metadata
type PurchaseIntent struct {
	SessionID  string
	PlayerName string // normalized lowercase
	RankID     string
	IsGift     bool
	UserID     string
}

// Result is the terminal outcome of one fulfillment run. Success stays true
// when the live fleet could not be reached: the durable entitlement is the
// source of truth and live application self-heals later. AppliedLive tells
// the two apart.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AppliedLive bool   `json:"applied_live"`
}

// RankApplier applies a rank on the live game-server fleet
type RankApplier interface {
	ApplyRank(playerName, rankID string) bool
}

// FulfillmentService turns a verified payment event into a durable
// entitlement and a best-effort live grant.
type FulfillmentService struct {
	applier       RankApplier
	eventLog      *WebhookEventLog
	alerts        *AlertMailer
	retryAttempts int
	retryBaseWait time.Duration
	sleep         func(time.Duration)
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(applier RankApplier, eventLog *WebhookEventLog, alerts *AlertMailer) *FulfillmentService {
	return &FulfillmentService{
		applier:       applier,
		eventLog:      eventLog,
		alerts:        alerts,
		retryAttempts: config.AppConfig.ApplyRetryAttempts,
		retryBaseWait: config.AppConfig.ApplyRetryBaseWait,
		sleep:         time.Sleep,
	}
}

// NormalizeUsername normalizes a player handle for storage and lookup
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ProcessEvent handles one verified gateway event. Only
// checkout.session.completed triggers fulfillment; everything else is
// acknowledged as a no-op.
func (s *FulfillmentService) ProcessEvent(event stripe.Event) Result {
	if event.Type != "checkout.session.completed" {
		logging.Infof("Ignoring event type %s (id: %s)", event.Type, event.ID)
		return Result{Success: false, Message: "unsupported event type: " + string(event.Type)}
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		logging.Errorf("Failed to parse checkout session from event %s: %v", event.ID, err)
		return Result{Success: false, Message: "malformed checkout session payload"}
	}

	return s.FulfillSession(&session)
}

// FulfillSession runs the reconciliation state machine for one checkout
// session.
func (s *FulfillmentService) FulfillSession(session *stripe.CheckoutSession) Result {
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logging.Infof("Payment not completed - session: %s, status: %s", session.ID, session.PaymentStatus)
		return Result{Success: false, Message: ErrPaymentNotCompleted.Error()}
	}

	if purchaseType := session.Metadata["type"]; purchaseType != "" && purchaseType != "rank_purchase" {
		logging.Infof("Ignoring non-rank purchase - session: %s, type: %s", session.ID, purchaseType)
		return Result{Success: false, Message: "unsupported purchase type: " + purchaseType}
	}

	intent, err := intentFromSession(session)
	if err != nil {
		// Payment captured but nothing to fulfill against: this purchase is
		// stuck and needs a human, so surface it to operators
		logging.Errorf("Missing metadata in paid session %s: %+v", session.ID, session.Metadata)
		if s.alerts != nil {
			s.alerts.SendMissingMetadataAlert(session.ID, session.Metadata)
		}
		return Result{Success: false, Message: ErrMissingMetadata.Error()}
	}

	return s.Fulfill(intent)
}

// intentFromSession extracts the purchase intent from session metadata
func intentFromSession(session *stripe.CheckoutSession) (PurchaseIntent, error) {
	metadata := session.Metadata
	username := metadata["minecraft_username"]
	rankID := metadata["rank_id"]

	if username == "" || rankID == "" {
		return PurchaseIntent{}, ErrMissingMetadata
	}

	return PurchaseIntent{
		SessionID:  session.ID,
		PlayerName: NormalizeUsername(username),
		RankID:     rankID,
		IsGift:     metadata["is_gift"] == "true",
		UserID:     metadata["user_id"],
	}, nil
}

// Fulfill drives one purchase through entitlement recording, pending-record
// cleanup and live application. Safe to replay: the entitlement upsert, the
// pending delete and the fleet grant are all idempotent.
func (s *FulfillmentService) Fulfill(intent PurchaseIntent) Result {
	runID := uuid.NewString()[:8]
	logging.Infof("[%s] Fulfilling purchase - session: %s, player: %s, rank: %s, gift: %t",
		runID, intent.SessionID, intent.PlayerName, intent.RankID, intent.IsGift)

	// Make sure a pending record exists before anything else. If checkout
	// created one this is a no-op; if not, it becomes the durable recovery
	// anchor should the entitlement write below fail.
	pending := models.PendingPurchase{
		SessionID:  intent.SessionID,
		PlayerName: intent.PlayerName,
		RankID:     intent.RankID,
		UserID:     intent.UserID,
		IsGift:     intent.IsGift,
	}
	if err := database.CreatePendingPurchase(&pending); err != nil {
		logging.Errorf("[%s] Failed to ensure pending record for session %s: %v", runID, intent.SessionID, err)
	}

	// The money is already captured: record the grant before touching the
	// fleet. Losing this row on a transient game-server outage is the failure
	// this pipeline exists to prevent.
	if err := database.UpsertEntitlement(intent.PlayerName, intent.RankID, intent.SessionID); err != nil {
		logging.Errorf("[%s] Entitlement write failed - session: %s, player: %s, rank: %s, error: %v",
			runID, intent.SessionID, intent.PlayerName, intent.RankID, err)
		// Pending record stays in place as evidence of the unreconciled
		// payment; safe to retry the whole delivery
		return Result{Success: false, Message: "failed to record entitlement"}
	}

	// Best-effort cleanup: an orphaned pending row is harmless and
	// operator-visible, so a failure here never fails the purchase
	if err := database.DeletePendingPurchase(intent.SessionID, intent.RankID, intent.PlayerName); err != nil {
		logging.Errorf("[%s] Failed to remove pending record for session %s: %v", runID, intent.SessionID, err)
	}

	if s.applyWithRetry(runID, intent.PlayerName, intent.RankID) {
		s.eventLog.MarkRankApplied(intent.PlayerName, intent.RankID)
		logging.Infof("[%s] Purchase fulfilled - player: %s, rank: %s", runID, intent.PlayerName, intent.RankID)
		return Result{Success: true, AppliedLive: true, Message: "rank granted and applied"}
	}

	// Entitlement is durable; the live grant happens on the player's next
	// login or the next reconciliation sweep
	logging.Warnf("[%s] Rank granted but not applied live - player: %s, rank: %s",
		runID, intent.PlayerName, intent.RankID)
	return Result{Success: true, AppliedLive: false, Message: "rank granted, live application pending"}
}

// applyWithRetry pushes the grant to the fleet with bounded retries and
// exponential backoff (1s, then 2s; no wait after the final attempt).
func (s *FulfillmentService) applyWithRetry(runID, playerName, rankID string) bool {
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		if s.applier.ApplyRank(playerName, rankID) {
			if attempt > 1 {
				logging.Infof("[%s] Rank applied on attempt %d - player: %s, rank: %s", runID, attempt, playerName, rankID)
			}
			return true
		}

		logging.Errorf("[%s] Rank application attempt %d/%d failed - player: %s, rank: %s",
			runID, attempt, s.retryAttempts, playerName, rankID)

		if attempt < s.retryAttempts {
			s.sleep(s.retryBaseWait * time.Duration(1<<(attempt-1)))
		}
	}
	return false
}
