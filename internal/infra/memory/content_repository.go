package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"trivia-board/internal/domain"
)

// GameLoader fetches authored board content from a backing store.
type GameLoader interface {
	LoadGame(ctx context.Context, gameID uuid.UUID) (domain.Game, error)
}

// ContentRepository caches game boards with TTL to avoid re-reading the
// content store on every question selection.
type ContentRepository struct {
	loader GameLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedGame
}

type cachedGame struct {
	game      domain.Game
	expiresAt time.Time
}

func NewContentRepository(loader GameLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[uuid.UUID]cachedGame),
	}
}

func (r *ContentRepository) GetGame(ctx context.Context, gameID uuid.UUID) (domain.Game, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[gameID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.game, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(gameID.String(), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[gameID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.game, nil
		}
		r.mu.RUnlock()

		game, err := r.loader.LoadGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}

		r.mu.Lock()
		r.cache[gameID] = cachedGame{
			game:      game,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return result.(domain.Game), nil
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticGameLoader serves boards from an in-memory map (tests/demos).
type StaticGameLoader struct {
	games map[uuid.UUID]domain.Game
}

func NewStaticGameLoader(games map[uuid.UUID]domain.Game) *StaticGameLoader {
	return &StaticGameLoader{games: games}
}

func (l *StaticGameLoader) LoadGame(_ context.Context, gameID uuid.UUID) (domain.Game, error) {
	if game, ok := l.games[gameID]; ok {
		return game, nil
	}
	return domain.Game{}, domain.ErrGameNotFound
}
