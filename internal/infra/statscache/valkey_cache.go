package statscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// ValkeyCache caches statistics aggregates in a Valkey-compatible database so
// replicas share one cache.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache constructs a cache backed by Valkey.
func NewValkeyCache(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "firesight"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (detection.Statistics, bool, error) {
	cmd := c.client.B().Get().Key(c.prefix + ":" + key).Build()
	payload, err := c.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return detection.Statistics{}, false, nil
		}
		return detection.Statistics{}, false, err
	}
	var stats detection.Statistics
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return detection.Statistics{}, false, err
	}
	return stats, true, nil
}

func (c *ValkeyCache) Save(ctx context.Context, key string, stats detection.Statistics, ttl time.Duration) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	builder := c.client.B().Set().Key(c.prefix + ":" + key).Value(string(payload))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

var _ detection.StatsCache = (*ValkeyCache)(nil)
