package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/feeds"
)

// DefaultInterval is the time between resubscription cycles.
const DefaultInterval = 120 * time.Second

// Resubscriber is the part of a message consumer the supervisor drives.
type Resubscriber interface {
	Subscribe(channel string, withPresence bool) error
	Unsubscribe(channel string) error
}

// Supervisor periodically drops and re-establishes every feed subscription
// so that a silently stalled subscription recovers.
type Supervisor struct {
	sub      Resubscriber
	feeds    []feeds.Feed
	interval time.Duration
	logger   zerolog.Logger
	cycles   atomic.Uint64
}

// New creates a supervisor for feedList, cycled in slice order. A
// non-positive interval uses DefaultInterval.
func New(sub Resubscriber, feedList []feeds.Feed, interval time.Duration, logger zerolog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{
		sub:      sub,
		feeds:    feedList,
		interval: interval,
		logger:   logger.With().Str("component", "Supervisor").Logger(),
	}
}

// Interval reports the time between cycles.
func (s *Supervisor) Interval() time.Duration {
	return s.interval
}

// Run cycles every interval until ctx is done. The first cycle happens one
// interval after Run is called.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("Resubscription supervisor started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Resubscription supervisor stopped")
			return
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle unsubscribes then resubscribes each feed in turn. Failures are
// logged and the cycle moves on to the next feed.
func (s *Supervisor) Cycle() {
	n := s.cycles.Add(1)
	s.logger.Info().Uint64("cycle", n).Msg("Resubscribing feeds")
	for _, f := range s.feeds {
		if err := s.sub.Unsubscribe(f.Channel); err != nil {
			s.logger.Error().Err(err).Str("feed", f.Name).Msg("Unsubscribe failed")
		}
		if err := s.sub.Subscribe(f.Channel, f.Presence); err != nil {
			s.logger.Error().Err(err).Str("feed", f.Name).Msg("Resubscribe failed")
		}
	}
}

// Cycles reports how many cycles have run.
func (s *Supervisor) Cycles() uint64 {
	return s.cycles.Load()
}
