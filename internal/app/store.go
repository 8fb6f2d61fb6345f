package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

// Store is the persisted-state collaborator. It is the single source of
// truth for session, participant, round, and answer records; every mutation
// is an atomic read-modify-write inside the store so that concurrent
// requests for the same session appear linearized to observers.
type Store interface {
	// CreateSession persists a new session. Returns domain.ErrCodeConflict
	// if the join code is already held by a live session.
	CreateSession(ctx context.Context, sess *domain.Session) error
	SessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	SessionByCode(ctx context.Context, code string) (*domain.Session, error)
	// ArchiveSession marks the session archived with the given completion
	// time. Archiving an already-archived session is a no-op.
	ArchiveSession(ctx context.Context, id uuid.UUID, completedAt time.Time) error

	// JoinParticipant creates a participant with score 0, or returns the
	// existing one when the nickname (case-insensitively) already joined.
	// The bool reports whether a new participant was created.
	JoinParticipant(ctx context.Context, sessionID uuid.UUID, nickname string, now time.Time) (*domain.Participant, bool, error)
	Participant(ctx context.Context, id uuid.UUID) (*domain.Participant, error)
	// Participants lists a session's participants in join order.
	Participants(ctx context.Context, sessionID uuid.UUID) ([]domain.Participant, error)

	// CreateRound creates the next round (Seq = previous max + 1) in Active
	// state. If another round is active: with supersede it is ended first
	// and returned as the second value, otherwise domain.ErrRoundActive.
	CreateRound(ctx context.Context, sessionID, questionID uuid.UUID, supersede bool, now time.Time) (created, superseded *domain.Round, err error)
	Round(ctx context.Context, id uuid.UUID) (*domain.Round, error)
	// EndRound transitions Active->Ended. Returns false without error when
	// the round was already Ended or Answered (idempotent no-op).
	EndRound(ctx context.Context, id uuid.UUID, endedAt time.Time) (bool, error)
	// MarkRoundAnswered transitions Ended->Answered exactly once. Returns
	// domain.ErrRoundNotEnded before the round ends and
	// domain.ErrRoundAlreadyAnswered on a repeat call.
	MarkRoundAnswered(ctx context.Context, id uuid.UUID) error
	// ResolvedRounds counts the session's rounds in Ended or Answered state.
	ResolvedRounds(ctx context.Context, sessionID uuid.UUID) (int, error)

	// CreateAnswer persists a submission with correctness unresolved. The
	// (round, participant) uniqueness check happens inside the store, never
	// against cached state, so racing submissions cannot both land. Returns
	// domain.ErrDuplicateSubmission on the second attempt. The round must
	// still be Active at insert time, checked in the same atomic section, so
	// a submission racing EndRound gets domain.ErrRoundNotActive instead of
	// landing on a resolved round.
	CreateAnswer(ctx context.Context, ans *domain.Answer) error
	Answer(ctx context.Context, id uuid.UUID) (*domain.Answer, error)
	// Answers lists a round's submissions in submission order.
	Answers(ctx context.Context, roundID uuid.UUID) ([]domain.Answer, error)
	// AdjudicateAnswer sets correctness and, when correct, credits points to
	// the owning participant, all in one unit. It applies at most once per
	// answer; a repeat call returns domain.ErrAlreadyAdjudicated. The int is
	// the participant's score after the call.
	AdjudicateAnswer(ctx context.Context, answerID uuid.UUID, correct bool, points int) (*domain.Answer, int, error)

	// ExpiredSessions lists up to limit sessions that are still Active but
	// whose expiry is at or before now.
	ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]domain.Session, error)
	// ArchiveAndPurge archives the session and deletes its rounds and
	// answers as one unit. Participant scores are untouched. Running it
	// against an already-archived session only re-runs the purge.
	ArchiveAndPurge(ctx context.Context, sessionID uuid.UUID, completedAt time.Time) error
}
