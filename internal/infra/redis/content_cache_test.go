package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"trivia-board/internal/domain"
)

type countingLoader struct {
	games map[uuid.UUID]domain.Game
	calls int64
}

func (l *countingLoader) LoadGame(_ context.Context, gameID uuid.UUID) (domain.Game, error) {
	atomic.AddInt64(&l.calls, 1)
	if game, ok := l.games[gameID]; ok {
		return game, nil
	}
	return domain.Game{}, domain.ErrGameNotFound
}

func newTestCache(t *testing.T, loader GameLoader, ttl time.Duration) (*ContentCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewContentCache(client, loader, ttl), mr
}

func TestContentCacheFillsOnMiss(t *testing.T) {
	gameID := uuid.New()
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{
		gameID: {
			ID:    gameID,
			Title: "Geography",
			Categories: []domain.Category{
				{
					ID:    uuid.New(),
					Title: "Capitals",
					Questions: []domain.Question{
						{ID: uuid.New(), Text: "Capital of France?", Answer: "Paris", Points: 200},
					},
				},
			},
		},
	}}
	cache, mr := newTestCache(t, loader, time.Minute)
	ctx := context.Background()

	game, err := cache.GetGame(ctx, gameID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if game.Title != "Geography" {
		t.Fatalf("wrong game: %+v", game)
	}
	if !mr.Exists("board:game:" + gameID.String()) {
		t.Fatalf("expected cache fill under the board key")
	}

	// The second read is served from Redis, prompts and points intact.
	game, err = cache.GetGame(ctx, gameID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if atomic.LoadInt64(&loader.calls) != 1 {
		t.Fatalf("expected a single backing load, got %d", loader.calls)
	}
	q := game.Categories[0].Questions[0]
	if q.Text != "Capital of France?" || q.Answer != "Paris" || q.Points != 200 {
		t.Fatalf("cached document lost fields: %+v", q)
	}
}

func TestContentCacheReloadsAfterTTL(t *testing.T) {
	gameID := uuid.New()
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{
		gameID: {ID: gameID, Title: "Geography"},
	}}
	cache, mr := newTestCache(t, loader, time.Minute)
	ctx := context.Background()

	if _, err := cache.GetGame(ctx, gameID); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Jitter caps the TTL at 10% over the base, so two TTLs is past it.
	mr.FastForward(2 * time.Minute)
	if _, err := cache.GetGame(ctx, gameID); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if atomic.LoadInt64(&loader.calls) != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loader.calls)
	}
}

func TestContentCachePassesThroughMisses(t *testing.T) {
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{}}
	cache, _ := newTestCache(t, loader, time.Minute)

	if _, err := cache.GetGame(context.Background(), uuid.New()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found, got %v", err)
	}
}

func TestContentCacheSurvivesCorruptEntries(t *testing.T) {
	gameID := uuid.New()
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{
		gameID: {ID: gameID, Title: "Geography"},
	}}
	cache, mr := newTestCache(t, loader, time.Minute)

	if err := mr.Set("board:game:"+gameID.String(), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	game, err := cache.GetGame(context.Background(), gameID)
	if err != nil {
		t.Fatalf("get with corrupt entry: %v", err)
	}
	if game.Title != "Geography" {
		t.Fatalf("expected loader fallback, got %+v", game)
	}
}
