package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"trivia-board/internal/domain"
)

// Store implements app.Store on Postgres via bun. Linearization of
// concurrent mutations comes from transactions and row locks on the session
// scope, so no in-memory state is cached across requests.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	GameID       uuid.UUID  `bun:"game_id,type:uuid"`
	Code         string     `bun:"code"`
	Name         string     `bun:"name"`
	Status       string     `bun:"status"`
	TimerSeconds int        `bun:"timer_seconds"`
	StartedAt    time.Time  `bun:"started_at"`
	ExpiresAt    time.Time  `bun:"expires_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	SessionID uuid.UUID `bun:"session_id,type:uuid"`
	Nickname  string    `bun:"nickname"`
	Score     int       `bun:"score"`
	JoinedAt  time.Time `bun:"joined_at"`
}

type roundRow struct {
	bun.BaseModel `bun:"table:rounds,alias:r"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	SessionID  uuid.UUID  `bun:"session_id,type:uuid"`
	QuestionID uuid.UUID  `bun:"question_id,type:uuid"`
	Seq        int        `bun:"seq"`
	Status     string     `bun:"status"`
	StartedAt  time.Time  `bun:"started_at"`
	EndedAt    *time.Time `bun:"ended_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	RoundID       uuid.UUID `bun:"round_id,type:uuid"`
	ParticipantID uuid.UUID `bun:"participant_id,type:uuid"`
	Text          string    `bun:"text"`
	SubmittedAt   time.Time `bun:"submitted_at"`
	Correct       *bool     `bun:"correct"`
	Points        int       `bun:"points"`
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	row := sessionToRow(sess)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("s.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return sessionFromRow(row), nil
}

func (s *Store) SessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).
		Where("s.code = ?", code).
		OrderExpr("s.started_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session by code: %w", err)
	}
	return sessionFromRow(row), nil
}

func (s *Store) ArchiveSession(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.SessionArchived)).
		Set("completed_at = COALESCE(completed_at, ?)", completedAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) JoinParticipant(ctx context.Context, sessionID uuid.UUID, nickname string, now time.Time) (*domain.Participant, bool, error) {
	var out *domain.Participant
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(participantRow)
		err := tx.NewSelect().Model(existing).
			Where("p.session_id = ?", sessionID).
			Where("lower(p.nickname) = lower(?)", nickname).
			Scan(ctx)
		if err == nil {
			out = participantFromRow(existing)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select participant: %w", err)
		}

		row := &participantRow{
			ID:        uuid.New(),
			SessionID: sessionID,
			Nickname:  nickname,
			Score:     0,
			JoinedAt:  now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		out = participantFromRow(row)
		created = true
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			// lost an idempotent-join race; the winner's row is the answer
			return s.lookupParticipant(ctx, sessionID, nickname)
		}
		return nil, false, err
	}
	return out, created, nil
}

func (s *Store) lookupParticipant(ctx context.Context, sessionID uuid.UUID, nickname string) (*domain.Participant, bool, error) {
	row := new(participantRow)
	err := s.db.NewSelect().Model(row).
		Where("p.session_id = ?", sessionID).
		Where("lower(p.nickname) = lower(?)", nickname).
		Scan(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("select participant after conflict: %w", err)
	}
	return participantFromRow(row), false, nil
}

func (s *Store) Participant(ctx context.Context, id uuid.UUID) (*domain.Participant, error) {
	row := new(participantRow)
	err := s.db.NewSelect().Model(row).Where("p.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("select participant: %w", err)
	}
	return participantFromRow(row), nil
}

func (s *Store) Participants(ctx context.Context, sessionID uuid.UUID) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("p.session_id = ?", sessionID).
		OrderExpr("p.joined_at ASC, p.nickname ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	out := make([]domain.Participant, len(rows))
	for i := range rows {
		out[i] = *participantFromRow(&rows[i])
	}
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, sessionID, questionID uuid.UUID, supersede bool, now time.Time) (*domain.Round, *domain.Round, error) {
	var created, superseded *domain.Round
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// lock the session row so concurrent selections serialize
		var locked sessionRow
		err := tx.NewSelect().Model(&locked).Where("s.id = ?", sessionID).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}

		active := new(roundRow)
		err = tx.NewSelect().Model(active).
			Where("r.session_id = ?", sessionID).
			Where("r.status IN (?)", bun.In([]string{string(domain.RoundPending), string(domain.RoundActive)})).
			Scan(ctx)
		switch {
		case err == nil:
			if !supersede {
				return domain.ErrRoundActive
			}
			if _, err := tx.NewUpdate().Model((*roundRow)(nil)).
				Set("status = ?", string(domain.RoundEnded)).
				Set("ended_at = ?", now).
				Where("id = ?", active.ID).
				Exec(ctx); err != nil {
				return fmt.Errorf("end superseded round: %w", err)
			}
			active.Status = string(domain.RoundEnded)
			endedAt := now
			active.EndedAt = &endedAt
			superseded = roundFromRow(active)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("select active round: %w", err)
		}

		var maxSeq int
		if err := tx.NewSelect().Model((*roundRow)(nil)).
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("session_id = ?", sessionID).
			Scan(ctx, &maxSeq); err != nil {
			return fmt.Errorf("max round seq: %w", err)
		}

		row := &roundRow{
			ID:         uuid.New(),
			SessionID:  sessionID,
			QuestionID: questionID,
			Seq:        maxSeq + 1,
			Status:     string(domain.RoundActive),
			StartedAt:  now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
		created = roundFromRow(row)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, superseded, nil
}

func (s *Store) Round(ctx context.Context, id uuid.UUID) (*domain.Round, error) {
	row := new(roundRow)
	err := s.db.NewSelect().Model(row).Where("r.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("select round: %w", err)
	}
	return roundFromRow(row), nil
}

func (s *Store) EndRound(ctx context.Context, id uuid.UUID, endedAt time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*roundRow)(nil)).
		Set("status = ?", string(domain.RoundEnded)).
		Set("ended_at = ?", endedAt).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{string(domain.RoundPending), string(domain.RoundActive)})).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("end round: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return true, nil
	}
	// no-op or stale id: distinguish for the caller
	if _, err := s.Round(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) MarkRoundAnswered(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewUpdate().Model((*roundRow)(nil)).
		Set("status = ?", string(domain.RoundAnswered)).
		Where("id = ?", id).
		Where("status = ?", string(domain.RoundEnded)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark round answered: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	round, err := s.Round(ctx, id)
	if err != nil {
		return err
	}
	if round.Status == domain.RoundAnswered {
		return domain.ErrRoundAlreadyAnswered
	}
	return domain.ErrRoundNotEnded
}

func (s *Store) ResolvedRounds(ctx context.Context, sessionID uuid.UUID) (int, error) {
	count, err := s.db.NewSelect().Model((*roundRow)(nil)).
		Where("session_id = ?", sessionID).
		Where("status IN (?)", bun.In([]string{string(domain.RoundEnded), string(domain.RoundAnswered)})).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count resolved rounds: %w", err)
	}
	return count, nil
}

func (s *Store) CreateAnswer(ctx context.Context, ans *domain.Answer) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// lock the round row so a concurrent EndRound cannot land between the
		// status check and the insert
		var locked roundRow
		err := tx.NewSelect().Model(&locked).Where("r.id = ?", ans.RoundID).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrRoundNotFound
			}
			return fmt.Errorf("lock round: %w", err)
		}
		if locked.Status != string(domain.RoundActive) {
			return domain.ErrRoundNotActive
		}
		row := &answerRow{
			ID:            ans.ID,
			RoundID:       ans.RoundID,
			ParticipantID: ans.ParticipantID,
			Text:          ans.Text,
			SubmittedAt:   ans.SubmittedAt,
			Points:        ans.Points,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateSubmission
			}
			if isForeignKeyViolation(err) {
				return domain.ErrParticipantNotFound
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		return nil
	})
}

func (s *Store) Answer(ctx context.Context, id uuid.UUID) (*domain.Answer, error) {
	row := new(answerRow)
	err := s.db.NewSelect().Model(row).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAnswerNotFound
		}
		return nil, fmt.Errorf("select answer: %w", err)
	}
	return answerFromRow(row), nil
}

func (s *Store) Answers(ctx context.Context, roundID uuid.UUID) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.round_id = ?", roundID).
		OrderExpr("a.submitted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	out := make([]domain.Answer, len(rows))
	for i := range rows {
		out[i] = *answerFromRow(&rows[i])
	}
	return out, nil
}

func (s *Store) AdjudicateAnswer(ctx context.Context, answerID uuid.UUID, correct bool, points int) (*domain.Answer, int, error) {
	var out *domain.Answer
	var newScore int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		awarded := 0
		if correct {
			awarded = points
		}
		row := new(answerRow)
		err := tx.NewUpdate().Model(row).
			Set("correct = ?", correct).
			Set("points = ?", awarded).
			Where("id = ?", answerID).
			Where("correct IS NULL").
			Returning("*").
			Scan(ctx)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("adjudicate answer: %w", err)
			}
			existing := new(answerRow)
			if serr := tx.NewSelect().Model(existing).Where("a.id = ?", answerID).Scan(ctx); serr != nil {
				if errors.Is(serr, sql.ErrNoRows) {
					return domain.ErrAnswerNotFound
				}
				return fmt.Errorf("select answer: %w", serr)
			}
			return domain.ErrAlreadyAdjudicated
		}

		if correct && awarded != 0 {
			if err := tx.NewUpdate().Model((*participantRow)(nil)).
				Set("score = score + ?", awarded).
				Where("id = ?", row.ParticipantID).
				Returning("score").
				Scan(ctx, &newScore); err != nil {
				return fmt.Errorf("credit score: %w", err)
			}
		} else {
			if err := tx.NewSelect().Model((*participantRow)(nil)).
				Column("score").
				Where("id = ?", row.ParticipantID).
				Scan(ctx, &newScore); err != nil {
				return fmt.Errorf("read score: %w", err)
			}
		}
		out = answerFromRow(row)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, newScore, nil
}

func (s *Store) ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).
		Where("s.status = ?", string(domain.SessionActive)).
		Where("s.expires_at <= ?", now).
		OrderExpr("s.expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select expired sessions: %w", err)
	}
	out := make([]domain.Session, len(rows))
	for i := range rows {
		out[i] = *sessionFromRow(&rows[i])
	}
	return out, nil
}

func (s *Store) ArchiveAndPurge(ctx context.Context, sessionID uuid.UUID, completedAt time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("status = ?", string(domain.SessionArchived)).
			Set("completed_at = COALESCE(completed_at, ?)", completedAt).
			Where("id = ?", sessionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("archive session: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return domain.ErrSessionNotFound
		}
		// answers go with their rounds via ON DELETE CASCADE
		if _, err := tx.NewDelete().Model((*roundRow)(nil)).
			Where("session_id = ?", sessionID).
			Exec(ctx); err != nil {
			return fmt.Errorf("purge rounds: %w", err)
		}
		return nil
	})
}

func sessionToRow(sess *domain.Session) *sessionRow {
	return &sessionRow{
		ID:           sess.ID,
		GameID:       sess.GameID,
		Code:         sess.Code,
		Name:         sess.Name,
		Status:       string(sess.Status),
		TimerSeconds: sess.TimerSeconds,
		StartedAt:    sess.StartedAt,
		ExpiresAt:    sess.ExpiresAt,
		CompletedAt:  sess.CompletedAt,
	}
}

func sessionFromRow(row *sessionRow) *domain.Session {
	return &domain.Session{
		ID:           row.ID,
		GameID:       row.GameID,
		Code:         row.Code,
		Name:         row.Name,
		Status:       domain.SessionStatus(row.Status),
		TimerSeconds: row.TimerSeconds,
		StartedAt:    row.StartedAt,
		ExpiresAt:    row.ExpiresAt,
		CompletedAt:  row.CompletedAt,
	}
}

func participantFromRow(row *participantRow) *domain.Participant {
	return &domain.Participant{
		ID:        row.ID,
		SessionID: row.SessionID,
		Nickname:  row.Nickname,
		Score:     row.Score,
		JoinedAt:  row.JoinedAt,
	}
}

func roundFromRow(row *roundRow) *domain.Round {
	return &domain.Round{
		ID:         row.ID,
		SessionID:  row.SessionID,
		QuestionID: row.QuestionID,
		Seq:        row.Seq,
		Status:     domain.RoundStatus(row.Status),
		StartedAt:  row.StartedAt,
		EndedAt:    row.EndedAt,
	}
}

func answerFromRow(row *answerRow) *domain.Answer {
	return &domain.Answer{
		ID:            row.ID,
		RoundID:       row.RoundID,
		ParticipantID: row.ParticipantID,
		Text:          row.Text,
		SubmittedAt:   row.SubmittedAt,
		Correct:       row.Correct,
		Points:        row.Points,
	}
}

func isUniqueViolation(err error) bool {
	return pgErrCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgErrCode(err) == "23503"
}

func pgErrCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}
