package services

import (
	"context"
	"encoding/json"
	"time"

	"rankshop-api/internal/database"
	"rankshop-api/internal/models"
	"rankshop-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

const (
	webhookEventLogKey  = "webhook:events"
	webhookEventLogSize = 100

	appliedRankTTL = 30 * 24 * time.Hour
)

// WebhookEventLog keeps a short diagnostic trail of gateway deliveries and
// applied-rank marks in redis. Purely observational: every method degrades to
// a no-op when redis is disabled, and no reconciliation decision reads from it.
type WebhookEventLog struct {
	client *redis.Client
}

// NewWebhookEventLog creates a new event log backed by the shared redis client
func NewWebhookEventLog() *WebhookEventLog {
	return &WebhookEventLog{client: database.GetRedis()}
}

// RecordEvent appends a delivery to the event log, keeping only the most
// recent entries
func (l *WebhookEventLog) RecordEvent(eventID, eventType, sessionID string) {
	if l == nil || l.client == nil {
		return
	}

	record := models.WebhookEventRecord{
		EventID:    eventID,
		Type:       eventType,
		SessionID:  sessionID,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(record)
	if err != nil {
		logging.Errorf("Failed to encode webhook event record: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pipe := l.client.Pipeline()
	pipe.LPush(ctx, webhookEventLogKey, data)
	pipe.LTrim(ctx, webhookEventLogKey, 0, webhookEventLogSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Errorf("Failed to record webhook event %s: %v", eventID, err)
	}
}

// RecentEvents returns the logged deliveries, newest first
func (l *WebhookEventLog) RecentEvents() []models.WebhookEventRecord {
	if l == nil || l.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entries, err := l.client.LRange(ctx, webhookEventLogKey, 0, webhookEventLogSize-1).Result()
	if err != nil {
		logging.Errorf("Failed to read webhook event log: %v", err)
		return nil
	}

	records := make([]models.WebhookEventRecord, 0, len(entries))
	for _, entry := range entries {
		var record models.WebhookEventRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records
}

// MarkRankApplied records that a rank was applied on the live fleet
func (l *WebhookEventLog) MarkRankApplied(playerName, rankID string) {
	if l == nil || l.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := "applied:" + playerName + ":" + rankID
	value := time.Now().UTC().Format(time.RFC3339)
	if err := l.client.Set(ctx, key, value, appliedRankTTL).Err(); err != nil {
		logging.Errorf("Failed to mark rank applied - player: %s, rank: %s, error: %v", playerName, rankID, err)
	}
}

// ClearAppliedMarks removes every applied-rank mark of a player. Admin reset
// only.
func (l *WebhookEventLog) ClearAppliedMarks(playerName string) {
	if l == nil || l.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	keys, err := l.client.Keys(ctx, "applied:"+playerName+":*").Result()
	if err != nil {
		logging.Errorf("Failed to list applied marks for %s: %v", playerName, err)
		return
	}
	if len(keys) == 0 {
		return
	}

	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		logging.Errorf("Failed to clear applied marks for %s: %v", playerName, err)
	}
}

// RankAppliedAt returns when a rank was last applied live, or empty when no
// mark exists
func (l *WebhookEventLog) RankAppliedAt(playerName, rankID string) string {
	if l == nil || l.client == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	value, err := l.client.Get(ctx, "applied:"+playerName+":"+rankID).Result()
	if err != nil {
		return ""
	}
	return value
}
