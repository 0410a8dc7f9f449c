package api

import (
	"net/http"

	"rankshop-api/internal/database"
	"rankshop-api/internal/models"
	"rankshop-api/internal/ranks"
	"rankshop-api/internal/services"
	"rankshop-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v74"
)

// CreateCheckoutRequest represents a checkout session request from the shop
type CreateCheckoutRequest struct {
	Username string `json:"username" binding:"required"`
	RankID   string `json:"rank_id" binding:"required"`
	IsGift   bool   `json:"is_gift"`
	UserID   string `json:"user_id"`
}

// CreateCheckout creates a payment gateway checkout session for a rank
// purchase and records the pending purchase it will reconcile against.
func CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	rank := ranks.GetRankByID(req.RankID)
	if rank == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Unknown rank: " + req.RankID,
		})
		return
	}

	username := services.NormalizeUsername(req.Username)

	// Unknown usernames are rejected up front so a typo doesn't produce an
	// entitlement nobody can claim. Gifts are checked too; the recipient has
	// to exist.
	exists, err := minecraftClient.CheckPlayerExists(username)
	if err != nil {
		logging.Errorf("Player existence check failed for %s: %v", username, err)
	} else if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Player not found on the network: " + username,
		})
		return
	}

	ownedRanks, err := database.GetPlayerRankIDs(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to check owned ranks",
		})
		return
	}

	if !ranks.CanPurchaseRank(rank.ID, ownedRanks, req.IsGift) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "Rank is not purchasable for this player",
		})
		return
	}

	session, err := stripeGateway.CreateCheckoutSession(rank, username, req.UserID, req.IsGift)
	if err != nil {
		logging.Errorf("Failed to create checkout session - player: %s, rank: %s, error: %v",
			username, rank.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to create checkout session",
		})
		return
	}

	// The pending record opens the reconciliation window; the webhook closes
	// it. Failing to write it is not fatal: fulfillment recreates the record
	// defensively.
	pending := models.PendingPurchase{
		SessionID:  session.ID,
		PlayerName: username,
		RankID:     rank.ID,
		UserID:     req.UserID,
		IsGift:     req.IsGift,
	}
	if err := database.CreatePendingPurchase(&pending); err != nil {
		logging.Errorf("Failed to record pending purchase for session %s: %v", session.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// VerifyPurchaseRequest represents a post-payment verification request
type VerifyPurchaseRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// VerifyPurchase lets the shop success page confirm a purchase landed. It
// re-runs fulfillment for the session, which is safe: every step is
// idempotent, so this doubles as a recovery path when the webhook was missed.
func VerifyPurchase(c *gin.Context) {
	var req VerifyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	session, err := stripeGateway.GetCheckoutSession(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Checkout session not found",
		})
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"payment_status": session.PaymentStatus,
			"message":        "Payment not completed",
		})
		return
	}

	// Some gateway configurations strip metadata from retrieved sessions; the
	// pending record written at checkout carries the same intent
	if session.Metadata["minecraft_username"] == "" || session.Metadata["rank_id"] == "" {
		if pending, err := database.GetPendingPurchaseBySession(session.ID); err == nil {
			result := fulfillment.Fulfill(services.PurchaseIntent{
				SessionID:  pending.SessionID,
				PlayerName: pending.PlayerName,
				RankID:     pending.RankID,
				IsGift:     pending.IsGift,
				UserID:     pending.UserID,
			})
			c.JSON(http.StatusOK, gin.H{
				"success":        result.Success,
				"applied_live":   result.AppliedLive,
				"payment_status": session.PaymentStatus,
				"message":        result.Message,
				"rank_id":        pending.RankID,
				"username":       pending.PlayerName,
			})
			return
		}
	}

	result := fulfillment.FulfillSession(session)
	c.JSON(http.StatusOK, gin.H{
		"success":        result.Success,
		"applied_live":   result.AppliedLive,
		"payment_status": session.PaymentStatus,
		"message":        result.Message,
		"rank_id":        session.Metadata["rank_id"],
		"rank_name":      session.Metadata["rank_name"],
		"username":       session.Metadata["minecraft_username"],
	})
}

// GetRankCatalog returns the purchasable rank catalog, grouped by category.
// Ranks without a configured price are flagged rather than hidden so the shop
// can grey them out.
func GetRankCatalog(c *gin.Context) {
	type rankView struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Order       int    `json:"order"`
		Realm       string `json:"realm,omitempty"`
		UpgradeFrom string `json:"upgrade_from,omitempty"`
		UpgradeTo   string `json:"upgrade_to,omitempty"`
		Purchasable bool   `json:"purchasable"`
	}
	type categoryView struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		UpgradeOf string     `json:"upgrade_of,omitempty"`
		Ranks     []rankView `json:"ranks"`
	}

	categories := make([]categoryView, 0, len(ranks.Categories))
	for _, category := range ranks.GetOrderedCategories() {
		view := categoryView{
			ID:        category.ID,
			Name:      category.Name,
			UpgradeOf: category.UpgradeOf,
			Ranks:     make([]rankView, 0),
		}
		for _, rank := range ranks.GetRanksByCategory(category.ID) {
			_, priceErr := services.ResolvePriceID(&rank)
			view.Ranks = append(view.Ranks, rankView{
				ID:          rank.ID,
				Name:        rank.Name,
				Order:       rank.Order,
				Realm:       string(rank.Realm),
				UpgradeFrom: rank.UpgradeFrom,
				UpgradeTo:   rank.UpgradeTo,
				Purchasable: priceErr == nil,
			})
		}
		categories = append(categories, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"categories": categories,
	})
}
