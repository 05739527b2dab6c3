package webhook

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/campuskit/rollcall/pkg/observability"
)

const (
	replayKeyPrefix = "rollcall:webhook:seen:"
	replayTTL       = 24 * time.Hour
	replayCacheSize = 4096
)

// ReplayGuard short-circuits duplicate webhook deliveries by message id.
// Advisory only: a guard miss (Redis down, cache eviction, multi-replica
// skew) just means the event is processed again, which every handler
// tolerates.
type ReplayGuard struct {
	redis  *redis.Client
	local  *lru.Cache[string, struct{}]
	logger *observability.Logger
}

// NewReplayGuard creates a replay guard. The Redis client may be nil, in
// which case only the in-process cache is used.
func NewReplayGuard(redisClient *redis.Client, logger *observability.Logger) (*ReplayGuard, error) {
	local, err := lru.New[string, struct{}](replayCacheSize)
	if err != nil {
		return nil, err
	}
	return &ReplayGuard{
		redis:  redisClient,
		local:  local,
		logger: logger,
	}, nil
}

// Seen reports whether the message id was already processed. It never
// records: a failed delivery must stay unmarked so the provider's
// redelivery is applied, not short-circuited.
func (g *ReplayGuard) Seen(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}

	if g.redis != nil {
		n, err := g.redis.Exists(ctx, replayKeyPrefix+messageID).Result()
		if err == nil {
			return n > 0
		}
		g.logger.WithError(err).Debug("replay guard redis unavailable, using local cache")
	}

	_, seen := g.local.Get(messageID)
	return seen
}

// Mark records the message id once its event has been applied. Failures
// fall back to the in-process cache; the guard stays advisory.
func (g *ReplayGuard) Mark(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}

	if g.redis != nil {
		err := g.redis.Set(ctx, replayKeyPrefix+messageID, 1, replayTTL).Err()
		if err == nil {
			return
		}
		g.logger.WithError(err).Debug("replay guard redis unavailable, using local cache")
	}

	g.local.Add(messageID, struct{}{})
}
