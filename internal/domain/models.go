package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// RoundStatus is the lifecycle state of one question being played.
type RoundStatus string

const (
	RoundPending  RoundStatus = "pending"
	RoundActive   RoundStatus = "active"
	RoundEnded    RoundStatus = "ended"
	RoundAnswered RoundStatus = "answered"
)

// Session is one timed instance of a game board being played, identified by
// a short join code. Archived sessions keep participants and their scores but
// lose their rounds and answers.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	GameID       uuid.UUID     `json:"gameId"`
	Code         string        `json:"code"`
	Name         string        `json:"name,omitempty"`
	Status       SessionStatus `json:"status"`
	TimerSeconds int           `json:"timerSeconds"`
	StartedAt    time.Time     `json:"startedAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Participant is a player who joined a session under a nickname. Nicknames
// are unique per session case-insensitively; rejoining with the same
// nickname returns the existing participant.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Round is the lifecycle of one question within a session. Seq is 1-based
// and monotonically increasing per session; at most one round is active per
// session at any time.
type Round struct {
	ID         uuid.UUID   `json:"id"`
	SessionID  uuid.UUID   `json:"sessionId"`
	QuestionID uuid.UUID   `json:"questionId"`
	Seq        int         `json:"seq"`
	Status     RoundStatus `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    *time.Time  `json:"endedAt,omitempty"`
}

// Resolved reports whether the round no longer accepts answers.
func (r *Round) Resolved() bool {
	return r.Status == RoundEnded || r.Status == RoundAnswered
}

// Answer is one participant's submission for one round. Correct is nil
// until the admin adjudicates it; Points is the amount awarded when it was
// marked correct.
type Answer struct {
	ID            uuid.UUID `json:"id"`
	RoundID       uuid.UUID `json:"roundId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Text          string    `json:"text"`
	SubmittedAt   time.Time `json:"submittedAt"`
	Correct       *bool     `json:"correct,omitempty"`
	Points        int       `json:"points"`
}

// Adjudicated reports whether correctness has been decided for this answer.
func (a *Answer) Adjudicated() bool {
	return a.Correct != nil
}

// Standing is one ranked row of the leaderboard.
type Standing struct {
	Rank          int       `json:"rank"`
	ParticipantID uuid.UUID `json:"participantId"`
	Nickname      string    `json:"nickname"`
	Score         int       `json:"score"`
}

// SessionSummary is the broadcast snapshot of a session: ranked standings
// plus the counters every client renders. Self is filled in only when the
// summary was requested on behalf of a specific participant.
type SessionSummary struct {
	SessionID        uuid.UUID     `json:"sessionId"`
	Code             string        `json:"code"`
	Status           SessionStatus `json:"status"`
	Players          int           `json:"players"`
	SecondsRemaining int           `json:"secondsRemaining"`
	RoundsResolved   int           `json:"roundsResolved"`
	Leaderboard      []Standing    `json:"leaderboard"`
	Self             *Standing     `json:"self,omitempty"`
}
