package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/database"
	"rankshop-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testAdminKey      = "admin-test-key"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Entitlement{}, &models.PendingPurchase{}))

	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		database.DB = previous
	})
}

// setupRouter wires the full route tree against an in-memory database and a
// stub game-server backend that accepts every grant.
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	setupTestDB(t)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	t.Cleanup(backend.Close)

	previous := config.AppConfig
	config.AppConfig = &config.Config{
		StripeWebhookSecret: testWebhookSecret,
		AdminAPIKey:         testAdminKey,
		GameServerAPIKey:    "backend-key",
		GameServers: []config.GameServer{
			{Name: "proxy", APIURL: backend.URL},
			{Name: "towny", Realm: "towny", APIURL: backend.URL},
		},
		ApplyRetryAttempts: 3,
		ApplyRetryBaseWait: time.Millisecond,
	}
	t.Cleanup(func() { config.AppConfig = previous })

	r := gin.New()
	SetupRoutes(r)
	return r
}

// signedBody produces a Stripe-Signature header for a payload
func signedBody(payload []byte) string {
	now := time.Now()
	signature := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature))
}

func checkoutCompletedEvent(sessionID, username, rankID string) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_" + sessionID,
		"type":        "checkout.session.completed",
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"payment_status": "paid",
				"metadata": map[string]string{
					"type":               "rank_purchase",
					"minecraft_username": username,
					"rank_id":            rankID,
				},
			},
		},
	})
	return payload
}

func TestStripeWebhookRejectsMissingSignature(t *testing.T) {
	router := setupRouter(t)

	payload := checkoutCompletedEvent("sess_1", "Steve", "citizen")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	router := setupRouter(t)

	payload := checkoutCompletedEvent("sess_1", "Steve", "citizen")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookAcknowledgesAndFulfills(t *testing.T) {
	router := setupRouter(t)

	require.NoError(t, database.CreatePendingPurchase(&models.PendingPurchase{
		SessionID:  "sess_1",
		PlayerName: "steve",
		RankID:     "citizen",
	}))

	payload := checkoutCompletedEvent("sess_1", "Steve", "citizen")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signedBody(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, true, ack["received"])

	// Fulfillment runs after the acknowledgement
	assert.Eventually(t, func() bool {
		has, err := database.HasEntitlement("steve", "citizen")
		return err == nil && has
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		pending, err := database.ListPendingPurchases()
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStripeWebhookReplaySafe(t *testing.T) {
	router := setupRouter(t)

	payload := checkoutCompletedEvent("sess_1", "Steve", "citizen")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", signedBody(payload))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Eventually(t, func() bool {
		entitlements, err := database.GetPlayerEntitlements("steve")
		return err == nil && len(entitlements) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStripeWebhookAcknowledgesOtherEventTypes(t *testing.T) {
	router := setupRouter(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_other",
		"type":        "payment_intent.succeeded",
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": map[string]interface{}{"id": "pi_1"}},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signedBody(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")

	entitlements, err := database.GetPlayerEntitlements("steve")
	require.NoError(t, err)
	assert.Empty(t, entitlements)
}

func TestTestWebhookDirectRequiresAdminKey(t *testing.T) {
	router := setupRouter(t)

	body := []byte(`{"username":"Steve","rank_id":"citizen"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe/test/direct", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTestWebhookDirectFulfillsSynchronously(t *testing.T) {
	router := setupRouter(t)

	body := []byte(`{"username":"Steve","rank_id":"citizen"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe/test/direct", bytes.NewReader(body))
	req.Header.Set("X-Admin-Key", testAdminKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["processed"])
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["applied_live"])

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestTestWebhookProcessesUnsignedEvent(t *testing.T) {
	router := setupRouter(t)

	payload := checkoutCompletedEvent("sess_test", "Steve", "citizen")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe/test", bytes.NewReader(payload))
	req.Header.Set("X-Admin-Key", testAdminKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestWebhookDiagnosticsViews(t *testing.T) {
	router := setupRouter(t)

	require.NoError(t, database.UpsertEntitlement("steve", "citizen", "sess_1"))

	// Unauthorized without the admin key
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe?username=steve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Entitlement view
	req = httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe?username=Steve", nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "citizen")

	// Unknown player
	req = httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe?username=nobody", nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Reset wipes the player's records
	req = httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe?username=steve&reset=true", nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWebhookDiagnosticsPendingViewCoversAllPlayers(t *testing.T) {
	router := setupRouter(t)

	require.NoError(t, database.CreatePendingPurchase(&models.PendingPurchase{
		SessionID:  "cs_steve",
		PlayerName: "steve",
		RankID:     "citizen",
	}))
	require.NoError(t, database.CreatePendingPurchase(&models.PendingPurchase{
		SessionID:  "cs_alex",
		PlayerName: "alex",
		RankID:     "merchant",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe?username=steve&check_pending_ranks=true", nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Another player's stuck purchase must be visible through this view
	assert.Contains(t, w.Body.String(), "cs_steve")
	assert.Contains(t, w.Body.String(), "cs_alex")
}

func TestHealthEndpoint(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
