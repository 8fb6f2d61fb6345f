package app

import (
	"time"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

// Event is one outbound frame pushed to connected clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Outbound event types. Submission and adjudication events go to the admin
// sub-group only; everything else goes to the whole session group.
const (
	EventPlayerJoined     = "player.joined"
	EventQuestionSelected = "question.selected"
	EventAnswerSubmitted  = "answer.submitted"
	EventAnswerRevealed   = "answer.revealed"
	EventAnswerMarked     = "answer.marked"
	EventRoundEnded       = "round.ended"
	EventRoundAnswered    = "round.answered"
	EventSessionUpdated   = "session.updated"
	EventTimerUpdate      = "timer.update"
	EventTimerExpired     = "timer.expired"
	EventJoined           = "joined"
	EventValidationError  = "validation_error"
	EventError            = "error"
)

type playerJoinedPayload struct {
	ParticipantID uuid.UUID `json:"participantId"`
	Nickname      string    `json:"nickname"`
	Rejoined      bool      `json:"rejoined"`
}

type questionSelectedPayload struct {
	RoundID      uuid.UUID `json:"roundId"`
	Seq          int       `json:"seq"`
	QuestionID   uuid.UUID `json:"questionId"`
	Text         string    `json:"text"`
	Points       int       `json:"points"`
	TimerSeconds int       `json:"timerSeconds"`
}

type answerSubmittedPayload struct {
	AnswerID      uuid.UUID `json:"answerId"`
	RoundID       uuid.UUID `json:"roundId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Nickname      string    `json:"nickname"`
	Text          string    `json:"text"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type answerRevealedPayload struct {
	RoundID       uuid.UUID       `json:"roundId"`
	CorrectAnswer string          `json:"correctAnswer"`
	Submissions   []domain.Answer `json:"submissions"`
}

type answerMarkedPayload struct {
	AnswerID      uuid.UUID `json:"answerId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	NewScore      int       `json:"newScore"`
}

type roundEventPayload struct {
	RoundID uuid.UUID `json:"roundId"`
}

type timerUpdatePayload struct {
	RoundID          uuid.UUID `json:"roundId"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent converts an error into the frame surfaced to the offending
// caller, classified per the error taxonomy. It is never broadcast.
func ErrorEvent(err error) Event {
	if domain.IsValidation(err) || domain.IsNotFound(err) {
		return Event{Type: EventValidationError, Payload: errorPayload{Message: err.Error()}}
	}
	return Event{Type: EventError, Payload: errorPayload{Message: "internal error"}}
}
