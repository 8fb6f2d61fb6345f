package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the given id or join code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionArchived is returned when a mutating call targets an archived or expired session.
	ErrSessionArchived = errors.New("session is archived")
	// ErrParticipantNotFound is returned when a participant id does not belong to the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrRoundNotFound is returned when a round id is stale or invalid.
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundNotActive is returned when an answer targets a round that is no longer accepting submissions.
	ErrRoundNotActive = errors.New("round is not accepting answers")
	// ErrRoundActive is returned by the reject policy when a question is selected while a round is live.
	ErrRoundActive = errors.New("another round is still active")
	// ErrRoundNotEnded is returned when adjudication is attempted before the round has ended.
	ErrRoundNotEnded = errors.New("round has not ended yet")
	// ErrRoundAlreadyAnswered is returned on a second Ended->Answered transition for the same round.
	ErrRoundAlreadyAnswered = errors.New("round already marked as answered")
	// ErrGameNotFound indicates the board content could not be loaded.
	ErrGameNotFound = errors.New("game not found")
	// ErrQuestionNotFound indicates the question does not belong to the session's game.
	ErrQuestionNotFound = errors.New("question not found in game")
	// ErrAnswerNotFound is returned when an answer id is stale or invalid.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrDuplicateSubmission is returned when a participant submits twice for the same round.
	ErrDuplicateSubmission = errors.New("answer already submitted for this round")
	// ErrAlreadyAdjudicated is returned when an answer's correctness has already been set.
	ErrAlreadyAdjudicated = errors.New("answer already adjudicated")
	// ErrCodeConflict is returned when a freshly generated join code collides with a live session.
	ErrCodeConflict = errors.New("join code already in use")
	// ErrValidation marks malformed or empty input; wrap it with details.
	ErrValidation = errors.New("validation failed")
)

// IsValidation reports whether err belongs to the validation class of the
// error taxonomy: the caller's input (not system state) is at fault and the
// message is safe to surface verbatim.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrAlreadyAdjudicated) ||
		errors.Is(err, ErrRoundActive) ||
		errors.Is(err, ErrRoundNotActive) ||
		errors.Is(err, ErrRoundNotEnded) ||
		errors.Is(err, ErrRoundAlreadyAnswered) ||
		errors.Is(err, ErrSessionArchived)
}

// IsNotFound reports whether err means the caller is acting on stale identity
// and should refresh its view of the session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrRoundNotFound) ||
		errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAnswerNotFound)
}
