package services

import (
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/database"
	"rankshop-api/pkg/logging"
)

// PendingWatcher periodically sweeps the pending-purchase table and alerts
// operators about rows stuck past the stale threshold. Each row is alerted at
// most once.
type PendingWatcher struct {
	alerts        *AlertMailer
	staleAfter    time.Duration
	sweepInterval time.Duration
	stop          chan struct{}
}

// NewPendingWatcher creates a new pending-purchase watcher
func NewPendingWatcher(alerts *AlertMailer) *PendingWatcher {
	return &PendingWatcher{
		alerts:        alerts,
		staleAfter:    config.AppConfig.PendingStaleAfter,
		sweepInterval: config.AppConfig.PendingSweepInterval,
		stop:          make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine
func (w *PendingWatcher) Start() {
	logging.Infof("Pending purchase watcher started - interval: %s, stale after: %s",
		w.sweepInterval, w.staleAfter)

	go func() {
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Sweep()
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop
func (w *PendingWatcher) Stop() {
	close(w.stop)
}

// Sweep alerts operators about every unalerted stale pending purchase
func (w *PendingWatcher) Sweep() {
	stale, err := database.ListStalePendingPurchases(w.staleAfter)
	if err != nil {
		logging.Errorf("Failed to list stale pending purchases: %v", err)
		return
	}

	for _, pending := range stale {
		logging.Warnf("Stale pending purchase - session: %s, player: %s, rank: %s, created: %s",
			pending.SessionID, pending.PlayerName, pending.RankID, pending.CreatedAt.Format(time.RFC3339))

		if w.alerts != nil {
			w.alerts.SendStalePendingAlert(pending)
		}

		if err := database.MarkPendingPurchaseAlerted(pending.ID); err != nil {
			logging.Errorf("Failed to mark pending purchase %d alerted: %v", pending.ID, err)
		}
	}
}
