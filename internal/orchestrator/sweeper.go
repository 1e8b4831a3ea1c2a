package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/session"
)

// defaultIdleSessionTTL is how long a session can sit untouched before the
// sweeper terminates it and wipes its taint registry.
const defaultIdleSessionTTL = 30 * time.Minute

// AdapterLookup resolves a channel ID to the adapter that owns it, so the
// sweeper can edit an expired card in place without the caller threading
// an adapter reference through every sweep tick.
type AdapterLookup func(channelID string) (channels.Adapter, bool)

// Sweeper periodically expires stale PendingSensitiveMessage cards and
// idle sessions. Both sweeps run off the same cron schedule since neither
// is latency-sensitive.
type Sweeper struct {
	processor *Processor
	sessions  *session.Manager
	lookup    AdapterLookup
	idleTTL   time.Duration
	cron      *cron.Cron
	log       *zap.Logger
}

func NewSweeper(processor *Processor, sessions *session.Manager, lookup AdapterLookup, log *zap.Logger) *Sweeper {
	return &Sweeper{
		processor: processor,
		sessions:  sessions,
		lookup:    lookup,
		idleTTL:   defaultIdleSessionTTL,
		cron:      cron.New(),
		log:       log,
	}
}

// Start schedules the sweep to run every minute and begins the cron
// scheduler's own goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		s.sweepPending(ctx)
		s.sweepSessions(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepPending(ctx context.Context) {
	expired, err := s.processor.pending.Sweep(ctx)
	if err != nil {
		s.log.Warn("pending-message sweep failed", zap.Error(err))
		return
	}
	for _, p := range expired {
		adapter, ok := s.lookup(p.ChannelID)
		if !ok {
			continue
		}
		if err := adapter.EditMessageCard(ctx, p.Message.ChatID, p.CardMessageID, expiredCard()); err != nil {
			s.log.Warn("failed to mark expired authorization card",
				zap.String("card_message_id", p.CardMessageID), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		s.log.Info("expired pending authorization cards", zap.Int("count", len(expired)))
	}
}

func (s *Sweeper) sweepSessions(ctx context.Context) {
	s.sessions.CleanupInactive(ctx, s.idleTTL)
}
