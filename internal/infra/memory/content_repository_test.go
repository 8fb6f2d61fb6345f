package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

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

func (l *countingLoader) loaded() int64 {
	return atomic.LoadInt64(&l.calls)
}

func TestContentRepositoryCaches(t *testing.T) {
	gameID := uuid.New()
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{
		gameID: {ID: gameID, Title: "Geography"},
	}}
	repo := NewContentRepository(loader, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		game, err := repo.GetGame(ctx, gameID)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if game.Title != "Geography" {
			t.Fatalf("wrong game: %+v", game)
		}
	}
	if loader.loaded() != 1 {
		t.Fatalf("expected a single backing load, got %d", loader.loaded())
	}
}

func TestContentRepositoryExpiresEntries(t *testing.T) {
	gameID := uuid.New()
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{
		gameID: {ID: gameID, Title: "Geography"},
	}}
	repo := NewContentRepository(loader, time.Minute)

	now := time.Now()
	repo.clock = func() time.Time { return now }

	ctx := context.Background()
	if _, err := repo.GetGame(ctx, gameID); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Jitter extends the TTL by at most 10%, so two full TTLs later the
	// entry must have lapsed.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetGame(ctx, gameID); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.loaded() != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loader.loaded())
	}
}

func TestContentRepositoryMissesAreNotCached(t *testing.T) {
	loader := &countingLoader{games: map[uuid.UUID]domain.Game{}}
	repo := NewContentRepository(loader, time.Minute)
	ctx := context.Background()

	missing := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := repo.GetGame(ctx, missing); !errors.Is(err, domain.ErrGameNotFound) {
			t.Fatalf("expected game not found, got %v", err)
		}
	}
	if loader.loaded() != 2 {
		t.Fatalf("misses must hit the loader every time, got %d", loader.loaded())
	}
}
