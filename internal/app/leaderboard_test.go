package app

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

func TestProjectLeaderboardTiesByJoinOrder(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ann := domain.Participant{ID: uuid.New(), Nickname: "Ann", Score: 50, JoinedAt: base}
	bob := domain.Participant{ID: uuid.New(), Nickname: "Bob", Score: 50, JoinedAt: base.Add(time.Minute)}
	cyd := domain.Participant{ID: uuid.New(), Nickname: "Cyd", Score: 10, JoinedAt: base.Add(2 * time.Minute)}

	// Input order must not matter.
	standings := ProjectLeaderboard([]domain.Participant{cyd, bob, ann})

	if len(standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(standings))
	}
	wantOrder := []struct {
		rank     int
		nickname string
		score    int
	}{
		{1, "Ann", 50},
		{2, "Bob", 50},
		{3, "Cyd", 10},
	}
	for i, want := range wantOrder {
		got := standings[i]
		if got.Rank != want.rank || got.Nickname != want.nickname || got.Score != want.score {
			t.Fatalf("standing %d: want %+v, got %+v", i, want, got)
		}
	}
}

func TestProjectLeaderboardEmpty(t *testing.T) {
	if got := ProjectLeaderboard(nil); len(got) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", got)
	}
}

func TestBuildSummaryCounters(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &domain.Session{
		ID:        uuid.New(),
		Code:      "ABCDEF",
		Status:    domain.SessionActive,
		StartedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(90 * time.Second),
	}
	ann := domain.Participant{ID: uuid.New(), Nickname: "Ann", Score: 200, JoinedAt: now.Add(-time.Hour)}

	summary := BuildSummary(sess, []domain.Participant{ann}, 3, now, ann.ID)
	if summary.SecondsRemaining != 90 {
		t.Fatalf("expected 90s remaining, got %d", summary.SecondsRemaining)
	}
	if summary.Players != 1 || summary.RoundsResolved != 3 {
		t.Fatalf("unexpected counters: %+v", summary)
	}
	if summary.Self == nil || summary.Self.ParticipantID != ann.ID || summary.Self.Rank != 1 {
		t.Fatalf("expected self standing for Ann, got %+v", summary.Self)
	}

	// Group broadcasts carry no self standing.
	if got := BuildSummary(sess, []domain.Participant{ann}, 3, now, uuid.Nil); got.Self != nil {
		t.Fatalf("expected nil self for group summary")
	}
}

func TestBuildSummaryRemainingFloorsAtZero(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &domain.Session{
		ID:        uuid.New(),
		Status:    domain.SessionActive,
		ExpiresAt: now.Add(-time.Minute),
	}
	if got := BuildSummary(sess, nil, 0, now, uuid.Nil); got.SecondsRemaining != 0 {
		t.Fatalf("expected 0s remaining past expiry, got %d", got.SecondsRemaining)
	}

	sess.Status = domain.SessionArchived
	sess.ExpiresAt = now.Add(time.Hour)
	if got := BuildSummary(sess, nil, 0, now, uuid.Nil); got.SecondsRemaining != 0 {
		t.Fatalf("expected 0s remaining for archived session, got %d", got.SecondsRemaining)
	}
}
