package feedservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/consumers"
	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/supervisor"
)

// DefaultShutdownGrace bounds how long Stop waits for in-flight DataServer calls.
const DefaultShutdownGrace = 5 * time.Second

// Config holds the service-level settings.
type Config struct {
	// HTTPAddr is the status server address. Empty disables the server.
	HTTPAddr            string
	ResubscribeInterval time.Duration
	ShutdownGrace       time.Duration
}

// Service wires a message consumer through the feed transforms to the
// DataServer, and keeps the subscriptions fresh.
type Service struct {
	cfg        Config
	feeds      []feeds.Feed
	consumer   consumers.MessageConsumer
	dispatcher *rtview.Dispatcher
	processing *consumers.ProcessingService
	supervisor *supervisor.Supervisor
	stats      *Stats
	status     *StatusServer
	logger     zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates feedList and assembles the service. Nothing is started.
func New(cfg Config, feedList []feeds.Feed, consumer consumers.MessageConsumer, client rtview.CacheClient, logger zerolog.Logger) (*Service, error) {
	if len(feedList) == 0 {
		return nil, errors.New("at least one feed is required")
	}
	for _, f := range feedList {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	if client == nil {
		return nil, errors.New("cache client cannot be nil")
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	logger = logger.With().Str("component", "FeedService").Logger()

	stats := NewStats(feedList)
	dispatcher := rtview.NewDispatcher(client, logger, stats.ObserveOutcome)
	processing, err := consumers.NewProcessingService(consumer, dispatcher, feedList, stats.ObserveMessage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing service: %w", err)
	}
	sup := supervisor.New(consumer, feedList, cfg.ResubscribeInterval, logger)

	stats.cycles = sup.Cycles
	if dc, ok := consumer.(consumers.DropCounter); ok {
		stats.dropped = dc.Dropped
	}

	s := &Service{
		cfg:        cfg,
		feeds:      feedList,
		consumer:   consumer,
		dispatcher: dispatcher,
		processing: processing,
		supervisor: sup,
		stats:      stats,
		logger:     logger,
	}
	if cfg.HTTPAddr != "" {
		s.status = NewStatusServer(cfg.HTTPAddr, stats, logger)
	}
	return s, nil
}

// Stats returns the live counters.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Start declares every cache, starts the event loop, subscribes every feed
// in order and launches the resubscription supervisor.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info().Int("feeds", len(s.feeds)).Msg("Starting feed service...")

	declareAll(s.dispatcher, s.feeds)

	if err := s.processing.Start(); err != nil {
		s.dispatcher.Close()
		return err
	}
	for _, f := range s.feeds {
		if err := s.consumer.Subscribe(f.Channel, f.Presence); err != nil {
			s.processing.Stop()
			s.dispatcher.Close()
			return fmt.Errorf("failed to subscribe feed %s to %s: %w", f.Name, f.Channel, err)
		}
		s.logger.Info().Str("feed", f.Name).Str("channel", f.Channel).Str("cache", f.CacheName).Msg("Feed subscribed")
	}

	supCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervisor.Run(supCtx)
	}()

	if s.status != nil {
		s.status.Start()
	}
	s.logger.Info().Msg("Feed service started.")
	return nil
}

// Stop halts the supervisor and the event loop, then gives in-flight
// DataServer calls up to the shutdown grace period to finish.
func (s *Service) Stop() {
	s.logger.Info().Msg("Stopping feed service...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.processing.Stop()

	graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if s.status != nil {
		if err := s.status.Shutdown(graceCtx); err != nil {
			s.logger.Error().Err(err).Msg("Status server shutdown error")
		}
	}
	if err := s.dispatcher.Wait(graceCtx); err != nil {
		s.logger.Warn().Err(err).Msg("DataServer calls still in flight at shutdown, abandoning them")
	}
	s.dispatcher.Close()
	s.logger.Info().Interface("stats", s.stats.Snapshot()).Msg("Feed service stopped.")
}

// Run starts the service and blocks until ctx is done, then stops it.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
