package app

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

// ProjectLeaderboard ranks participants by score descending, ties broken by
// earlier join time, then nickname. Ranks are 1-based positions, so tied
// scores still get distinct ranks in a deterministic order.
func ProjectLeaderboard(participants []domain.Participant) []domain.Standing {
	sorted := make([]domain.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].Nickname < sorted[j].Nickname
	})

	standings := make([]domain.Standing, len(sorted))
	for i, p := range sorted {
		standings[i] = domain.Standing{
			Rank:          i + 1,
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			Score:         p.Score,
		}
	}
	return standings
}

// BuildSummary projects the broadcast snapshot of a session from its current
// participants. It holds no state of its own: every broadcast trigger calls
// it fresh, so concurrent callers are safe by construction. selfID picks the
// requesting participant's own standing; pass uuid.Nil for group broadcasts.
func BuildSummary(sess *domain.Session, participants []domain.Participant, resolvedRounds int, now time.Time, selfID uuid.UUID) domain.SessionSummary {
	standings := ProjectLeaderboard(participants)

	remaining := int(sess.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 || sess.Status == domain.SessionArchived {
		remaining = 0
	}

	summary := domain.SessionSummary{
		SessionID:        sess.ID,
		Code:             sess.Code,
		Status:           sess.Status,
		Players:          len(participants),
		SecondsRemaining: remaining,
		RoundsResolved:   resolvedRounds,
		Leaderboard:      standings,
	}
	if selfID != uuid.Nil {
		for i := range standings {
			if standings[i].ParticipantID == selfID {
				self := standings[i]
				summary.Self = &self
				break
			}
		}
	}
	return summary
}
