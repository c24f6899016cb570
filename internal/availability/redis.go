package availability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultProjectionTTL = 24 * time.Hour
	Channel              = "inventory:availability"
)

// projectScript stores a snapshot only if it is newer than the one already
// there, so late notifications cannot roll a variant back.
var projectScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "ts")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "ts", ARGV[1], "data", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
redis.call("PUBLISH", ARGV[4], ARGV[2])
return 1
`)

// RedisProjector keeps a storefront-facing copy of availability per variant
// and announces every change on a pub/sub channel.
type RedisProjector struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProjector(client *redis.Client, ttl time.Duration) *RedisProjector {
	if ttl <= 0 {
		ttl = DefaultProjectionTTL
	}
	return &RedisProjector{client: client, ttl: ttl}
}

func Key(variantID string) string {
	return "availability:" + variantID
}

func (p *RedisProjector) StockChanged(ctx context.Context, changes []model.StockChange) error {
	var errs []error
	for _, c := range changes {
		data, err := json.Marshal(payloadOf(c))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = projectScript.Run(ctx, p.client, []string{Key(c.VariantID)},
			c.OccurredAt.UnixNano(), data, p.ttl.Milliseconds(), Channel).Err()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get reads the projection. ok is false when nothing is cached for the variant.
func (p *RedisProjector) Get(ctx context.Context, variantID string) (payload StockPayload, ok bool, err error) {
	data, err := p.client.HGet(ctx, Key(variantID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return StockPayload{}, false, nil
	}
	if err != nil {
		return StockPayload{}, false, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return StockPayload{}, false, err
	}
	return payload, true, nil
}
