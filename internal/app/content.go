package app

import (
	"context"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

// ContentRepository serves authored game boards (from cache/backing store).
// Content is read-only from the session engine's point of view.
type ContentRepository interface {
	GetGame(ctx context.Context, gameID uuid.UUID) (domain.Game, error)
}
