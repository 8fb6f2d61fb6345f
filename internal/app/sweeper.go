package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const sweepBatchSize = 100

// Sweeper retires sessions whose absolute expiry has passed: status flips to
// archived, transient rounds and answers are purged, participant scores stay
// as the permanent record. It runs on its own interval, racing live
// coordinator traffic; last writer wins, which is acceptable because
// archival only matters for sessions no longer receiving legitimate events.
type Sweeper struct {
	store    Store
	clock    clockwork.Clock
	interval time.Duration
}

func NewSweeper(store Store, clock clockwork.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{store: store, clock: clock, interval: interval}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("archival sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("archival sweeper stopped")
			return
		case <-ticker.Chan():
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("sweep cycle failed to list expired sessions")
			}
		}
	}
}

// SweepOnce archives every expired session it can find and reports how many
// were retired. One session failing to archive is logged and skipped; it
// never aborts the rest of the cycle. Re-running over already-archived
// sessions is a no-op because they no longer match the expired listing.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired, err := s.store.ExpiredSessions(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, sess := range expired {
		if err := s.store.ArchiveAndPurge(ctx, sess.ID, now); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to archive session")
			continue
		}
		archived++
		log.Info().Str("session_id", sess.ID.String()).Str("code", sess.Code).Msg("session archived")
	}
	return archived, nil
}
