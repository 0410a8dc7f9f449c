package services

import (
	"testing"
	"time"

	"rankshop-api/internal/database"
	"rankshop-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepAlertsStaleRowsOnce(t *testing.T) {
	setupTestDB(t)

	stale := models.PendingPurchase{SessionID: "cs_stuck", PlayerName: "steve", RankID: "citizen"}
	require.NoError(t, database.CreatePendingPurchase(&stale))
	require.NoError(t, database.DB.Model(&models.PendingPurchase{}).
		Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	fresh := models.PendingPurchase{SessionID: "cs_fresh", PlayerName: "alex", RankID: "merchant"}
	require.NoError(t, database.CreatePendingPurchase(&fresh))

	watcher := &PendingWatcher{
		staleAfter:    time.Hour,
		sweepInterval: time.Minute,
		stop:          make(chan struct{}),
	}

	watcher.Sweep()

	// The stale row is marked so the next sweep skips it
	rows, err := database.ListStalePendingPurchases(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var alerted models.PendingPurchase
	require.NoError(t, database.DB.Where("session_id = ?", "cs_stuck").First(&alerted).Error)
	assert.True(t, alerted.Alerted)

	var untouched models.PendingPurchase
	require.NoError(t, database.DB.Where("session_id = ?", "cs_fresh").First(&untouched).Error)
	assert.False(t, untouched.Alerted)

	// The sweep never deletes pending rows
	all, err := database.ListPendingPurchases()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
