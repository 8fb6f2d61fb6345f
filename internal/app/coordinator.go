package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-board/internal/domain"
)

// SelectPolicy decides what happens when the admin selects a question while
// another round is still active.
type SelectPolicy string

const (
	// SelectSupersede ends the running round first, then starts the new one.
	SelectSupersede SelectPolicy = "supersede"
	// SelectReject refuses the new selection until the running round ends.
	SelectReject SelectPolicy = "reject"
)

const maxAnswerLength = 280
const maxNicknameLength = 24
const codeAttempts = 5

// Options tunes coordinator behavior. Zero values fall back to defaults.
type Options struct {
	// SessionDuration is the absolute lifetime of a session from creation.
	SessionDuration time.Duration
	// DefaultTimerSeconds is the per-question countdown when the session
	// was created without one.
	DefaultTimerSeconds int
	// SelectPolicy handles question selection racing a live round.
	SelectPolicy SelectPolicy
	// BroadcastAllOnDisconnect restores the legacy behavior of refreshing
	// every live session when any connection drops. Off by default: a
	// disconnect refreshes only the sessions the connection belonged to.
	BroadcastAllOnDisconnect bool
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SessionDuration <= 0 {
		out.SessionDuration = 2 * time.Hour
	}
	if out.DefaultTimerSeconds <= 0 {
		out.DefaultTimerSeconds = 30
	}
	if out.SelectPolicy == "" {
		out.SelectPolicy = SelectSupersede
	}
	return out
}

// Coordinator dispatches every inbound session event to the right
// component and sequences the side effects. Failures are returned to the
// originating caller only; they are never broadcast to the group.
type Coordinator struct {
	store    Store
	content  ContentRepository
	registry *Registry
	timers   *TimerEngine
	clock    clockwork.Clock
	opts     Options
}

func NewCoordinator(store Store, content ContentRepository, registry *Registry, clock clockwork.Clock, opts Options) *Coordinator {
	c := &Coordinator{
		store:    store,
		content:  content,
		registry: registry,
		clock:    clock,
		opts:     opts.withDefaults(),
	}
	c.timers = NewTimerEngine(clock, registry, c.handleExpiry)
	return c
}

// Registry exposes group membership to the transport layer.
func (c *Coordinator) Registry() *Registry { return c.registry }

// CreateSession starts a new session for a game board. The join code is
// generated from the unambiguous alphabet and retried on collision.
func (c *Coordinator) CreateSession(ctx context.Context, gameID uuid.UUID, name string, timerSeconds int) (*domain.Session, error) {
	if _, err := c.content.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	if timerSeconds <= 0 {
		timerSeconds = c.opts.DefaultTimerSeconds
	}

	now := c.clock.Now()
	var lastErr error
	for i := 0; i < codeAttempts; i++ {
		sess := &domain.Session{
			ID:           uuid.New(),
			GameID:       gameID,
			Code:         domain.NewJoinCode(),
			Name:         strings.TrimSpace(name),
			Status:       domain.SessionActive,
			TimerSeconds: timerSeconds,
			StartedAt:    now,
			ExpiresAt:    now.Add(c.opts.SessionDuration),
		}
		if err := c.store.CreateSession(ctx, sess); err != nil {
			if err == domain.ErrCodeConflict {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("create session: %w", err)
		}
		log.Info().Str("session_id", sess.ID.String()).Str("code", sess.Code).Msg("session created")
		return sess, nil
	}
	return nil, fmt.Errorf("create session: %w", lastErr)
}

// JoinSession registers the connection in the session group and returns the
// (possibly pre-existing) participant for the nickname. Every successful
// join notifies the whole group and re-broadcasts the session summary.
func (c *Coordinator) JoinSession(ctx context.Context, conn Conn, code, nickname string) (*domain.Participant, domain.SessionSummary, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, domain.SessionSummary{}, fmt.Errorf("%w: nickname must not be empty", domain.ErrValidation)
	}
	if len([]rune(nickname)) > maxNicknameLength {
		return nil, domain.SessionSummary{}, fmt.Errorf("%w: nickname exceeds %d characters", domain.ErrValidation, maxNicknameLength)
	}

	sess, err := c.liveSessionByCode(ctx, code)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}

	participant, created, err := c.store.JoinParticipant(ctx, sess.ID, nickname, c.clock.Now())
	if err != nil {
		return nil, domain.SessionSummary{}, fmt.Errorf("join participant: %w", err)
	}

	c.registry.Join(conn, sess.ID)

	c.registry.ToSession(sess.ID, Event{Type: EventPlayerJoined, Payload: playerJoinedPayload{
		ParticipantID: participant.ID,
		Nickname:      participant.Nickname,
		Rejoined:      !created,
	}})
	c.broadcastSummary(ctx, sess.ID)

	summary, err := c.Summary(ctx, sess.ID, participant.ID)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}
	return participant, summary, nil
}

// JoinAsAdmin registers the connection in both the session group and the
// admin sub-group. Admin identity is established by the transport layer.
func (c *Coordinator) JoinAsAdmin(ctx context.Context, conn Conn, code string) (*domain.Session, domain.SessionSummary, error) {
	sess, err := c.liveSessionByCode(ctx, code)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}

	c.registry.JoinAsAdmin(conn, sess.ID)
	c.broadcastSummary(ctx, sess.ID)

	summary, err := c.Summary(ctx, sess.ID, uuid.Nil)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}
	return sess, summary, nil
}

// SelectQuestion creates the next round for a question on the session's
// board and starts its countdown. QuestionSelected is broadcast before the
// timer starts so no tick can reach a client that has not seen the round.
func (c *Coordinator) SelectQuestion(ctx context.Context, sessionID, questionID uuid.UUID) (*domain.Round, error) {
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	game, err := c.content.GetGame(ctx, sess.GameID)
	if err != nil {
		return nil, err
	}
	question := game.Question(questionID)
	if question == nil {
		return nil, domain.ErrQuestionNotFound
	}

	now := c.clock.Now()
	round, superseded, err := c.store.CreateRound(ctx, sess.ID, questionID, c.opts.SelectPolicy == SelectSupersede, now)
	if err != nil {
		return nil, err
	}
	if superseded != nil {
		c.timers.CancelRound(sess.ID, superseded.ID)
		c.registry.ToSession(sess.ID, Event{Type: EventRoundEnded, Payload: roundEventPayload{RoundID: superseded.ID}})
	}

	c.registry.ToSession(sess.ID, Event{Type: EventQuestionSelected, Payload: questionSelectedPayload{
		RoundID:      round.ID,
		Seq:          round.Seq,
		QuestionID:   question.ID,
		Text:         question.Text,
		Points:       question.Points,
		TimerSeconds: sess.TimerSeconds,
	}})
	c.timers.Start(sess.ID, round.ID, time.Duration(sess.TimerSeconds)*time.Second)

	log.Info().Str("session_id", sess.ID.String()).Str("round_id", round.ID.String()).
		Int("seq", round.Seq).Msg("question selected")
	return round, nil
}

// SubmitAnswer records one participant's submission for a round. Duplicate
// detection happens inside the store so two racing requests from the same
// participant cannot both land. Only the admin sub-group is notified.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sessionID, participantID, roundID uuid.UUID, text string) (*domain.Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: answer must not be empty", domain.ErrValidation)
	}
	if len([]rune(text)) > maxAnswerLength {
		return nil, fmt.Errorf("%w: answer exceeds %d characters", domain.ErrValidation, maxAnswerLength)
	}

	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	round, err := c.store.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.SessionID != sess.ID {
		return nil, domain.ErrRoundNotFound
	}
	if round.Status != domain.RoundActive {
		return nil, domain.ErrRoundNotActive
	}
	participant, err := c.store.Participant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant.SessionID != sess.ID {
		return nil, domain.ErrParticipantNotFound
	}

	ans := &domain.Answer{
		ID:            uuid.New(),
		RoundID:       round.ID,
		ParticipantID: participant.ID,
		Text:          text,
		SubmittedAt:   c.clock.Now(),
	}
	if err := c.store.CreateAnswer(ctx, ans); err != nil {
		return nil, err
	}

	c.registry.ToAdmins(sess.ID, Event{Type: EventAnswerSubmitted, Payload: answerSubmittedPayload{
		AnswerID:      ans.ID,
		RoundID:       ans.RoundID,
		ParticipantID: ans.ParticipantID,
		Nickname:      participant.Nickname,
		Text:          ans.Text,
		SubmittedAt:   ans.SubmittedAt,
	}})
	return ans, nil
}

// ShowAnswer ends the round if it is still running and reveals the
// canonical answer together with every submission to the whole group.
func (c *Coordinator) ShowAnswer(ctx context.Context, sessionID, roundID uuid.UUID) error {
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	round, err := c.sessionRound(ctx, sess.ID, roundID)
	if err != nil {
		return err
	}

	game, err := c.content.GetGame(ctx, sess.GameID)
	if err != nil {
		return err
	}
	question := game.Question(round.QuestionID)
	if question == nil {
		return domain.ErrQuestionNotFound
	}

	if err := c.endRound(ctx, sess.ID, round.ID); err != nil {
		return err
	}

	submissions, err := c.store.Answers(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	c.registry.ToSession(sess.ID, Event{Type: EventAnswerRevealed, Payload: answerRevealedPayload{
		RoundID:       round.ID,
		CorrectAnswer: question.Answer,
		Submissions:   submissions,
	}})
	return nil
}

// EndRound force-ends a round without revealing the answer. Idempotent:
// ending an already-ended round is a no-op.
func (c *Coordinator) EndRound(ctx context.Context, sessionID, roundID uuid.UUID) error {
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	round, err := c.sessionRound(ctx, sess.ID, roundID)
	if err != nil {
		return err
	}
	return c.endRound(ctx, sess.ID, round.ID)
}

// MarkAnswer adjudicates one submission. Marking correct is the single
// point that credits a participant's score, applied at most once per
// answer. The admin sub-group sees the verdict; everyone sees the refreshed
// leaderboard.
func (c *Coordinator) MarkAnswer(ctx context.Context, sessionID, answerID uuid.UUID, correct bool, points int) (*domain.Answer, error) {
	if points < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", domain.ErrValidation)
	}
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ans, err := c.store.Answer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	round, err := c.sessionRound(ctx, sess.ID, ans.RoundID)
	if err != nil {
		return nil, err
	}
	if round.Status == domain.RoundActive || round.Status == domain.RoundPending {
		return nil, domain.ErrRoundNotEnded
	}

	ans, newScore, err := c.store.AdjudicateAnswer(ctx, answerID, correct, points)
	if err != nil {
		return nil, err
	}

	c.registry.ToAdmins(sess.ID, Event{Type: EventAnswerMarked, Payload: answerMarkedPayload{
		AnswerID:      ans.ID,
		ParticipantID: ans.ParticipantID,
		Correct:       correct,
		Points:        ans.Points,
		NewScore:      newScore,
	}})
	c.broadcastSummary(ctx, sess.ID)
	return ans, nil
}

// MarkRoundAsAnswered closes adjudication for a round, with or without any
// correct answers. Exactly one Ended->Answered transition per round.
func (c *Coordinator) MarkRoundAsAnswered(ctx context.Context, sessionID, roundID uuid.UUID) error {
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	round, err := c.sessionRound(ctx, sess.ID, roundID)
	if err != nil {
		return err
	}
	if err := c.store.MarkRoundAnswered(ctx, round.ID); err != nil {
		return err
	}
	c.registry.ToSession(sess.ID, Event{Type: EventRoundAnswered, Payload: roundEventPayload{RoundID: round.ID}})
	c.broadcastSummary(ctx, sess.ID)
	return nil
}

// Summary projects the current session snapshot for one requesting
// participant (uuid.Nil for no self view).
func (c *Coordinator) Summary(ctx context.Context, sessionID, selfID uuid.UUID) (domain.SessionSummary, error) {
	sess, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	participants, err := c.store.Participants(ctx, sess.ID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("list participants: %w", err)
	}
	resolved, err := c.store.ResolvedRounds(ctx, sess.ID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("count resolved rounds: %w", err)
	}
	return BuildSummary(sess, participants, resolved, c.clock.Now(), selfID), nil
}

// SummaryByCode is the lobby view: the snapshot for a join code without
// joining.
func (c *Coordinator) SummaryByCode(ctx context.Context, code string) (domain.SessionSummary, error) {
	sess, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	return c.Summary(ctx, sess.ID, uuid.Nil)
}

// Disconnect drops the connection from every group it belonged to and
// refreshes those sessions' summaries. With BroadcastAllOnDisconnect the
// refresh instead fans out to every live session (legacy behavior).
func (c *Coordinator) Disconnect(ctx context.Context, conn Conn) {
	affected := c.registry.Disconnect(conn)
	if c.opts.BroadcastAllOnDisconnect {
		affected = c.registry.SessionIDs()
	}
	for _, sessionID := range affected {
		c.broadcastSummary(ctx, sessionID)
	}
}

// handleExpiry is the timer engine's callback: the deadline passed without
// admin intervention, so apply Active->Ended and tell the group.
func (c *Coordinator) handleExpiry(sessionID, roundID uuid.UUID) {
	ctx := context.Background()
	changed, err := c.store.EndRound(ctx, roundID, c.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Str("round_id", roundID.String()).
			Msg("failed to end round on timer expiry")
		return
	}
	if changed {
		c.registry.ToSession(sessionID, Event{Type: EventRoundEnded, Payload: roundEventPayload{RoundID: roundID}})
		c.broadcastSummary(ctx, sessionID)
	}
}

// endRound applies Active->Ended, cancels the countdown so no stale tick or
// expiry broadcast follows, and notifies the group when the state changed.
func (c *Coordinator) endRound(ctx context.Context, sessionID, roundID uuid.UUID) error {
	changed, err := c.store.EndRound(ctx, roundID, c.clock.Now())
	if err != nil {
		return fmt.Errorf("end round: %w", err)
	}
	c.timers.CancelRound(sessionID, roundID)
	if changed {
		c.registry.ToSession(sessionID, Event{Type: EventRoundEnded, Payload: roundEventPayload{RoundID: roundID}})
		c.broadcastSummary(ctx, sessionID)
	}
	return nil
}

func (c *Coordinator) broadcastSummary(ctx context.Context, sessionID uuid.UUID) {
	summary, err := c.Summary(ctx, sessionID, uuid.Nil)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to build session summary")
		return
	}
	c.registry.ToSession(sessionID, Event{Type: EventSessionUpdated, Payload: summary})
}

// liveSession loads a session and lazily observes expiry: a session past
// its deadline is archived on access and treated as gone for mutations.
func (c *Coordinator) liveSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	sess, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.requireLive(ctx, sess)
}

func (c *Coordinator) liveSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	sess, err := c.store.SessionByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	return c.requireLive(ctx, sess)
}

func (c *Coordinator) requireLive(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	if sess.Status == domain.SessionArchived {
		return nil, domain.ErrSessionArchived
	}
	if sess.Expired(c.clock.Now()) {
		// archive and purge in one unit, same as the sweeper, so a session
		// observed expired here never leaves rounds behind for a later sweep
		// that only scans active sessions
		if err := c.store.ArchiveAndPurge(ctx, sess.ID, c.clock.Now()); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to archive expired session on access")
		}
		c.timers.Cancel(sess.ID)
		return nil, domain.ErrSessionArchived
	}
	return sess, nil
}

func (c *Coordinator) sessionRound(ctx context.Context, sessionID, roundID uuid.UUID) (*domain.Round, error) {
	round, err := c.store.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.SessionID != sessionID {
		return nil, domain.ErrRoundNotFound
	}
	return round, nil
}
