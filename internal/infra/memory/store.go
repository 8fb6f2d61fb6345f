package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

// Store is an in-memory implementation of app.Store. Every method takes the
// store mutex for its whole read-modify-write, which gives the same
// linearization the SQL implementation gets from transactions. Useful for
// tests and for running without Postgres.
type Store struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]*domain.Session
	byCode       map[string]uuid.UUID
	participants map[uuid.UUID]*domain.Participant
	rounds       map[uuid.UUID]*domain.Round
	answers      map[uuid.UUID]*domain.Answer
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]*domain.Session),
		byCode:       make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]*domain.Participant),
		rounds:       make(map[uuid.UUID]*domain.Round),
		answers:      make(map[uuid.UUID]*domain.Answer),
	}
}

func (s *Store) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if otherID, ok := s.byCode[sess.Code]; ok {
		if other := s.sessions[otherID]; other != nil && other.Status == domain.SessionActive {
			return domain.ErrCodeConflict
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.byCode[sess.Code] = sess.ID
	return nil
}

func (s *Store) SessionByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s.sessions[id]
	return &cp, nil
}

func (s *Store) ArchiveSession(_ context.Context, id uuid.UUID, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveLocked(id, completedAt)
}

func (s *Store) archiveLocked(id uuid.UUID, completedAt time.Time) error {
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Status == domain.SessionArchived {
		return nil
	}
	sess.Status = domain.SessionArchived
	at := completedAt
	sess.CompletedAt = &at
	return nil
}

func (s *Store) JoinParticipant(_ context.Context, sessionID uuid.UUID, nickname string, now time.Time) (*domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, false, domain.ErrSessionNotFound
	}
	folded := strings.ToLower(nickname)
	for _, p := range s.participants {
		if p.SessionID == sessionID && strings.ToLower(p.Nickname) == folded {
			cp := *p
			return &cp, false, nil
		}
	}
	p := &domain.Participant{
		ID:        uuid.New(),
		SessionID: sessionID,
		Nickname:  nickname,
		Score:     0,
		JoinedAt:  now,
	}
	s.participants[p.ID] = p
	cp := *p
	return &cp, true, nil
}

func (s *Store) Participant(_ context.Context, id uuid.UUID) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) Participants(_ context.Context, sessionID uuid.UUID) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Nickname < out[j].Nickname
	})
	return out, nil
}

func (s *Store) CreateRound(_ context.Context, sessionID, questionID uuid.UUID, supersede bool, now time.Time) (*domain.Round, *domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, domain.ErrSessionNotFound
	}

	var superseded *domain.Round
	maxSeq := 0
	for _, r := range s.rounds {
		if r.SessionID != sessionID {
			continue
		}
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
		if r.Status == domain.RoundActive || r.Status == domain.RoundPending {
			if !supersede {
				return nil, nil, domain.ErrRoundActive
			}
			r.Status = domain.RoundEnded
			at := now
			r.EndedAt = &at
			cp := *r
			superseded = &cp
		}
	}

	round := &domain.Round{
		ID:         uuid.New(),
		SessionID:  sessionID,
		QuestionID: questionID,
		Seq:        maxSeq + 1,
		Status:     domain.RoundActive,
		StartedAt:  now,
	}
	s.rounds[round.ID] = round
	cp := *round
	return &cp, superseded, nil
}

func (s *Store) Round(_ context.Context, id uuid.UUID) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) EndRound(_ context.Context, id uuid.UUID, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return false, domain.ErrRoundNotFound
	}
	if r.Resolved() {
		return false, nil
	}
	r.Status = domain.RoundEnded
	at := endedAt
	r.EndedAt = &at
	return true, nil
}

func (s *Store) MarkRoundAnswered(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.ErrRoundNotFound
	}
	switch r.Status {
	case domain.RoundAnswered:
		return domain.ErrRoundAlreadyAnswered
	case domain.RoundEnded:
		r.Status = domain.RoundAnswered
		return nil
	default:
		return domain.ErrRoundNotEnded
	}
}

func (s *Store) ResolvedRounds(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rounds {
		if r.SessionID == sessionID && r.Resolved() {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateAnswer(_ context.Context, ans *domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[ans.RoundID]
	if !ok {
		return domain.ErrRoundNotFound
	}
	if r.Status != domain.RoundActive {
		return domain.ErrRoundNotActive
	}
	for _, existing := range s.answers {
		if existing.RoundID == ans.RoundID && existing.ParticipantID == ans.ParticipantID {
			return domain.ErrDuplicateSubmission
		}
	}
	cp := *ans
	s.answers[ans.ID] = &cp
	return nil
}

func (s *Store) Answer(_ context.Context, id uuid.UUID) (*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[id]
	if !ok {
		return nil, domain.ErrAnswerNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) Answers(_ context.Context, roundID uuid.UUID) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, a := range s.answers {
		if a.RoundID == roundID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *Store) AdjudicateAnswer(_ context.Context, answerID uuid.UUID, correct bool, points int) (*domain.Answer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[answerID]
	if !ok {
		return nil, 0, domain.ErrAnswerNotFound
	}
	if a.Adjudicated() {
		return nil, 0, domain.ErrAlreadyAdjudicated
	}
	p, ok := s.participants[a.ParticipantID]
	if !ok {
		return nil, 0, domain.ErrParticipantNotFound
	}

	verdict := correct
	a.Correct = &verdict
	if correct {
		a.Points = points
		p.Score += points
	}
	cp := *a
	return &cp, p.Score, nil
}

func (s *Store) ExpiredSessions(_ context.Context, now time.Time, limit int) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionActive && sess.Expired(now) {
			out = append(out, *sess)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ArchiveAndPurge(_ context.Context, sessionID uuid.UUID, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.archiveLocked(sessionID, completedAt); err != nil {
		return err
	}
	for id, r := range s.rounds {
		if r.SessionID != sessionID {
			continue
		}
		for aid, a := range s.answers {
			if a.RoundID == id {
				delete(s.answers, aid)
			}
		}
		delete(s.rounds, id)
	}
	return nil
}
