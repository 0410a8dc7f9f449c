package api

import (
	"encoding/json"
	"net/http"

	"rankshop-api/internal/database"
	"rankshop-api/internal/services"
	"rankshop-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v74"
)

// sessionIDFromEvent extracts the checkout session id for the event log
func sessionIDFromEvent(event stripe.Event) string {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return ""
	}
	return payload.ID
}

// StripeWebhookHandler receives payment gateway events. A well-formed,
// signature-valid delivery is always acknowledged with 200 before fulfillment
// runs, so gateway retries are driven by delivery failures only, never by
// fulfillment outcomes.
func StripeWebhookHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		logging.Errorf("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	signatureHeader := c.GetHeader("Stripe-Signature")
	event, err := stripeGateway.VerifyAndParse(body, signatureHeader)
	if err != nil {
		logging.Errorf("Webhook rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	eventLog.RecordEvent(event.ID, string(event.Type), sessionIDFromEvent(event))

	// Only completed checkouts trigger fulfillment; everything else is
	// acknowledged as a no-op
	if event.Type != "checkout.session.completed" {
		logging.Infof("Acknowledging event type %s (id: %s)", event.Type, event.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "message": "Event acknowledged"})
		return
	}

	// Acknowledge first, fulfill in the background. The entitlement upsert
	// makes redelivered events harmless, so a crash mid-fulfillment loses
	// nothing the next delivery can't redo.
	go func() {
		result := fulfillment.ProcessEvent(event)
		if !result.Success {
			logging.Errorf("Fulfillment failed for event %s: %s", event.ID, result.Message)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"received": true, "message": "Webhook received"})
}

// WebhookDiagnostics is the admin diagnostic view over reconciliation state.
// Query parameters select the view: check_webhook returns the recent event
// log, check_pending_ranks lists a player's pending purchases, reset wipes a
// player's records, and the default returns a player's entitlements.
func WebhookDiagnostics(c *gin.Context) {
	if c.Query("check_webhook") == "true" {
		c.JSON(http.StatusOK, gin.H{
			"events": eventLog.RecentEvents(),
		})
		return
	}

	username := services.NormalizeUsername(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	if c.Query("check_pending_ranks") == "true" {
		// The full table, not just the queried player: a stuck purchase for
		// any player is exactly what this view exists to surface
		pending, err := database.ListPendingPurchases()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending purchases"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"username": username,
			"pending":  pending,
		})
		return
	}

	if c.Query("reset") == "true" {
		entitlements, err := database.DeletePlayerEntitlements(username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset entitlements"})
			return
		}
		pending, err := database.DeletePlayerPendingPurchases(username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset pending purchases"})
			return
		}
		eventLog.ClearAppliedMarks(username)

		logging.Infof("Admin reset for player %s - entitlements: %d, pending: %d", username, entitlements, pending)
		c.JSON(http.StatusOK, gin.H{
			"username":             username,
			"deleted_entitlements": entitlements,
			"deleted_pending":      pending,
		})
		return
	}

	entitlements, err := database.GetPlayerEntitlements(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get entitlements"})
		return
	}
	if len(entitlements) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No entitlements for player", "username": username})
		return
	}

	type entitlementView struct {
		RankID    string `json:"rank_id"`
		SessionID string `json:"session_id"`
		GrantedAt string `json:"granted_at"`
		AppliedAt string `json:"applied_at,omitempty"`
	}

	views := make([]entitlementView, 0, len(entitlements))
	for _, e := range entitlements {
		views = append(views, entitlementView{
			RankID:    e.RankID,
			SessionID: e.SessionID,
			GrantedAt: e.GrantedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			AppliedAt: eventLog.RankAppliedAt(username, e.RankID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"username":     username,
		"entitlements": views,
	})
}

// TestWebhook runs a full gateway event through fulfillment without signature
// verification. Admin tooling for staging; the production webhook never
// bypasses verification.
func TestWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"received":  true,
			"processed": false,
			"error":     "Empty request body",
		})
		return
	}

	event, err := services.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"received":  true,
			"processed": false,
			"error":     err.Error(),
		})
		return
	}

	result := fulfillment.ProcessEvent(event)
	c.JSON(http.StatusOK, gin.H{
		"received":     true,
		"processed":    true,
		"success":      result.Success,
		"applied_live": result.AppliedLive,
		"message":      result.Message,
	})
}

// TestWebhookDirectRequest is the payload of the direct test endpoint
type TestWebhookDirectRequest struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username" binding:"required"`
	RankID    string `json:"rank_id" binding:"required"`
	IsGift    bool   `json:"is_gift"`
	UserID    string `json:"user_id"`
}

// TestWebhookDirect runs fulfillment from an explicit intent, skipping event
// parsing entirely
func TestWebhookDirect(c *gin.Context) {
	var req TestWebhookDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"received":  true,
			"processed": false,
			"error":     "Invalid request format: " + err.Error(),
		})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "test_direct_" + services.NormalizeUsername(req.Username) + "_" + req.RankID
	}

	result := fulfillment.Fulfill(services.PurchaseIntent{
		SessionID:  sessionID,
		PlayerName: services.NormalizeUsername(req.Username),
		RankID:     req.RankID,
		IsGift:     req.IsGift,
		UserID:     req.UserID,
	})

	c.JSON(http.StatusOK, gin.H{
		"received":     true,
		"processed":    true,
		"success":      result.Success,
		"applied_live": result.AppliedLive,
		"message":      result.Message,
	})
}
