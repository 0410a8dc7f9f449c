package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"rankshop-api/internal/database"
	"rankshop-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
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

type applyCall struct {
	player string
	rank   string
}

// fakeApplier returns scripted results per call, repeating the last one
type fakeApplier struct {
	calls   []applyCall
	results []bool
}

func (f *fakeApplier) ApplyRank(playerName, rankID string) bool {
	f.calls = append(f.calls, applyCall{player: playerName, rank: rankID})
	if len(f.results) == 0 {
		return true
	}
	idx := len(f.calls) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]
}

func newTestService(applier RankApplier, sleeps *[]time.Duration) *FulfillmentService {
	return &FulfillmentService{
		applier:       applier,
		retryAttempts: 3,
		retryBaseWait: time.Second,
		sleep: func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		},
	}
}

func paidSession(id, username, rankID string) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:            id,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata: map[string]string{
			"type":               "rank_purchase",
			"minecraft_username": username,
			"rank_id":            rankID,
		},
	}
}

func TestFulfillSessionEndToEnd(t *testing.T) {
	setupTestDB(t)

	// Pending record created at checkout time
	require.NoError(t, database.CreatePendingPurchase(&models.PendingPurchase{
		SessionID:  "sess_1",
		PlayerName: "steve",
		RankID:     "citizen",
	}))

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	result := svc.FulfillSession(paidSession("sess_1", "Steve", "citizen"))

	assert.True(t, result.Success)
	assert.True(t, result.AppliedLive)

	// Entitlement recorded under the normalized name
	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.True(t, has)

	// Pending record cleared
	pending, err := database.ListPendingPurchases()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Fleet invoked exactly once
	require.Len(t, applier.calls, 1)
	assert.Equal(t, applyCall{player: "steve", rank: "citizen"}, applier.calls[0])
}

func TestFulfillSessionUnpaidGrantsNothing(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	session := paidSession("sess_unpaid", "steve", "citizen")
	session.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid

	result := svc.FulfillSession(session)

	assert.False(t, result.Success)
	assert.False(t, result.AppliedLive)
	assert.Empty(t, applier.calls)

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFulfillSessionMissingMetadata(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	session := &stripe.CheckoutSession{
		ID:            "sess_bare",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{"type": "rank_purchase"},
	}

	result := svc.FulfillSession(session)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "metadata")
	assert.Empty(t, applier.calls)
}

func TestFulfillSessionIgnoresNonRankPurchases(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	session := paidSession("sess_other", "steve", "citizen")
	session.Metadata["type"] = "cosmetic_purchase"

	result := svc.FulfillSession(session)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unsupported purchase type")
	assert.Empty(t, applier.calls)
}

func TestFulfillRetriesWithBackoffThenSucceeds(t *testing.T) {
	setupTestDB(t)

	var sleeps []time.Duration
	applier := &fakeApplier{results: []bool{false, false, true}}
	svc := newTestService(applier, &sleeps)

	result := svc.Fulfill(PurchaseIntent{
		SessionID:  "sess_retry",
		PlayerName: "steve",
		RankID:     "citizen",
	})

	assert.True(t, result.Success)
	assert.True(t, result.AppliedLive)
	assert.Len(t, applier.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestFulfillRetryExhaustionIsPartialSuccess(t *testing.T) {
	setupTestDB(t)

	var sleeps []time.Duration
	applier := &fakeApplier{results: []bool{false}}
	svc := newTestService(applier, &sleeps)

	result := svc.Fulfill(PurchaseIntent{
		SessionID:  "sess_down",
		PlayerName: "steve",
		RankID:     "citizen",
	})

	// Entitlement is durable even though the fleet never accepted the grant
	assert.True(t, result.Success)
	assert.False(t, result.AppliedLive)
	assert.Len(t, applier.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFulfillEntitlementWriteFailureKeepsPendingRecord(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, database.CreatePendingPurchase(&models.PendingPurchase{
		SessionID:  "sess_store_down",
		PlayerName: "steve",
		RankID:     "citizen",
	}))

	// Make the entitlement write fail while pending rows stay reachable
	require.NoError(t, database.DB.Migrator().DropTable(&models.Entitlement{}))

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	result := svc.Fulfill(PurchaseIntent{
		SessionID:  "sess_store_down",
		PlayerName: "steve",
		RankID:     "citizen",
	})

	assert.False(t, result.Success)
	assert.False(t, result.AppliedLive)
	assert.Contains(t, result.Message, "failed to record entitlement")

	// The fleet is never touched when the durable write failed
	assert.Empty(t, applier.calls)

	// The pending record survives as the recovery anchor
	pending, err := database.ListPendingPurchases()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sess_store_down", pending[0].SessionID)
}

func TestFulfillReplaySafe(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	intent := PurchaseIntent{
		SessionID:  "sess_replay",
		PlayerName: "steve",
		RankID:     "citizen",
	}

	first := svc.Fulfill(intent)
	second := svc.Fulfill(intent)

	assert.True(t, first.Success)
	assert.True(t, second.Success)

	entitlements, err := database.GetPlayerEntitlements("steve")
	require.NoError(t, err)
	assert.Len(t, entitlements, 1)
}

func TestProcessEventIgnoresOtherTypes(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	result := svc.ProcessEvent(stripe.Event{
		ID:   "evt_1",
		Type: "payment_intent.succeeded",
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unsupported event type")
	assert.Empty(t, applier.calls)
}

func TestProcessEventFulfillsCompletedCheckout(t *testing.T) {
	setupTestDB(t)

	applier := &fakeApplier{}
	svc := newTestService(applier, nil)

	raw, err := json.Marshal(paidSession("sess_evt", "Steve", "citizen"))
	require.NoError(t, err)

	result := svc.ProcessEvent(stripe.Event{
		ID:   "evt_2",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	})

	assert.True(t, result.Success)
	assert.True(t, result.AppliedLive)

	has, err := database.HasEntitlement("steve", "citizen")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "steve", NormalizeUsername("Steve"))
	assert.Equal(t, "steve", NormalizeUsername("  STEVE  "))
	assert.Equal(t, "", NormalizeUsername("   "))
}
