package refresher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/store"
)

// varLastChatSweep records when the last full sweep finished.
const varLastChatSweep = "last_chat_sweep_at"

// Sweeper periodically walks every known chat through the fetcher,
// throttled so a large directory does not trip platform rate limits.
type Sweeper struct {
	fetcher  *Fetcher
	chats    *store.ChatStore
	vars     *store.VarsStore
	log      *logger.Logger
	limiter  *rate.Limiter
	interval time.Duration
}

func NewSweeper(fetcher *Fetcher, chats *store.ChatStore, vars *store.VarsStore, rps float64, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		fetcher:  fetcher,
		chats:    chats,
		vars:     vars,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		interval: interval,
	}
}

// Run sweeps immediately, then on every interval tick until the context
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce syncs every known chat. Per-chat failures are logged and
// skipped so one bad chat cannot stall the rest of the sweep.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	runID := uuid.NewString()
	started := time.Now()

	chats, err := s.chats.GetAll()
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("chat sweep aborted")
		return
	}

	s.log.Info().
		Str("run_id", runID).
		Int("chats", len(chats)).
		Msg("chat sweep started")

	var failed int
	for _, chat := range chats {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.fetcher.SyncChat(ctx, chat.ID); err != nil {
			failed++
			s.log.Error().Err(err).
				Str("run_id", runID).
				Int64("chat_id", chat.ID).
				Msg("chat sync failed")
		}
	}

	if err := s.vars.Set(varLastChatSweep, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn().Err(err).Str("run_id", runID).Msg("failed to store sweep watermark")
	}

	s.log.Info().
		Str("run_id", runID).
		Int("chats", len(chats)).
		Int("failed", failed).
		Dur("took", time.Since(started)).
		Msg("chat sweep finished")
}
