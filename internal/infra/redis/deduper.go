package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const dedupTTL = 26 * time.Hour

// AlertDeduper suppresses repeated deadline alerts for the same batch on the
// same day, across process restarts and replicas. First caller per
// (batch, day, kind) wins; everyone else is told the alert already fired.
type AlertDeduper struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewAlertDeduper(client *goredis.Client) (*AlertDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &AlertDeduper{client: client, ttl: dedupTTL}, nil
}

// FirstToday claims the dedup slot for an alert kind on a batch day. Returns
// true only for the first claim of the day.
func (d *AlertDeduper) FirstToday(ctx context.Context, batchID, kind string, now time.Time) (bool, error) {
	if d == nil || d.client == nil {
		return false, fmt.Errorf("alert deduper is not initialized")
	}
	if strings.TrimSpace(batchID) == "" || strings.TrimSpace(kind) == "" {
		return false, fmt.Errorf("batch id and alert kind are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("alert:%s:%s:%s", batchID, kind, now.UTC().Format("2006-01-02"))
	claimed, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim alert dedup key: %w", err)
	}
	return claimed, nil
}
