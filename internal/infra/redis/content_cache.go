package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-board/internal/domain"
)

// GameLoader fetches authored board content from a backing store.
type GameLoader interface {
	LoadGame(ctx context.Context, gameID uuid.UUID) (domain.Game, error)
}

// ContentCache keeps whole game documents in Redis and falls back to the
// loader on miss. The full document is cached (not just answer keys)
// because question selection broadcasts prompt text and point values.
// Key layout: board:game:{gameID} -> board JSON.
type ContentCache struct {
	client *redis.Client
	loader GameLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContentCache(client *redis.Client, loader GameLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) GetGame(ctx context.Context, gameID uuid.UUID) (domain.Game, error) {
	key := c.key(gameID)

	if game, ok := c.cached(ctx, key); ok {
		return game, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if game, ok := c.cached(ctx, key); ok {
			return game, nil
		}

		game, err := c.loader.LoadGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}

		data, err := json.Marshal(game)
		if err != nil {
			return domain.Game{}, fmt.Errorf("marshal game: %w", err)
		}
		// best-effort: a failed cache write only costs a reload
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return result.(domain.Game), nil
}

func (c *ContentCache) cached(ctx context.Context, key string) (domain.Game, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Game{}, false
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return domain.Game{}, false
	}
	return game, true
}

func (c *ContentCache) key(gameID uuid.UUID) string {
	return "board:game:" + gameID.String()
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
