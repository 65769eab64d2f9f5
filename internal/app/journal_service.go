package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/config"
	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/ledger"
)

// JournalService appends bus events to the ledger and enforces its retention.
type JournalService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	bus    *eventbus.Bus
	once   sync.Once
}

// NewJournalService creates a new JournalService.
func NewJournalService(cfg *config.Config, l *ledger.Ledger, bus *eventbus.Bus) *JournalService {
	return &JournalService{cfg: cfg, ledger: l, bus: bus}
}

// Start subscribes the ledger to push, tick and chain_stopped events.
func (s *JournalService) Start() {
	s.once.Do(func() {
		s.bus.Subscribe(s.ledger.Record(),
			eventbus.EventTypePush,
			eventbus.EventTypeTick,
			eventbus.EventTypeChainStopped,
		)
	})
}

// Run removes expired entries at the cleanup interval until ctx is done.
func (s *JournalService) Run(ctx context.Context) error {
	s.cleanup()

	ticker := time.NewTicker(s.cfg.Journal.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *JournalService) cleanup() {
	retention := s.cfg.Journal.Retention.Duration()
	deleted, err := s.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up journal")
		return
	}
	if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Dur("retention", retention).Msg("Journal cleaned up")
	}
}
