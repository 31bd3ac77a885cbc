package consumers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// ====================================================================================
// This file contains the event loop that drains a MessageConsumer, runs each
// message through its feed's transform and hands the record to a RecordSink.
// ====================================================================================

// MessageObserver is told about every message the loop handles. feed is
// empty for messages on channels no feed is bound to.
type MessageObserver func(feed string, kind types.MessageKind)

// ProcessingService runs a single event loop so that each message is
// transformed and dispatched to completion before the next one is looked at.
// Feed transforms that keep state (the sensor sequence) rely on this.
type ProcessingService struct {
	consumer     MessageConsumer
	sink         RecordSink
	feeds        map[string]feeds.Feed
	observe      MessageObserver
	logger       zerolog.Logger
	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewProcessingService creates the event loop for feedList. observe may be nil.
func NewProcessingService(
	consumer MessageConsumer,
	sink RecordSink,
	feedList []feeds.Feed,
	observe MessageObserver,
	logger zerolog.Logger,
) (*ProcessingService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	byChannel, err := feeds.ByChannel(feedList)
	if err != nil {
		return nil, err
	}

	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &ProcessingService{
		consumer:     consumer,
		sink:         sink,
		feeds:        byChannel,
		observe:      observe,
		logger:       logger.With().Str("service", "ProcessingService").Logger(),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}, nil
}

// Start starts the consumer and the event loop.
func (s *ProcessingService) Start() error {
	s.logger.Info().Int("feeds", len(s.feeds)).Msg("Starting ProcessingService...")

	if err := s.consumer.Start(s.shutdownCtx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Msg("ProcessingService started.")
	return nil
}

func (s *ProcessingService) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdownCtx.Done():
			s.logger.Info().Msg("Event loop shutting down.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Msg("Consumer channel closed, event loop exiting.")
				return
			}
			s.handle(msg)
		}
	}
}

// handle runs one message to completion.
func (s *ProcessingService) handle(msg types.FeedMessage) {
	feed, ok := s.feeds[msg.Channel]
	if !ok {
		s.logger.Warn().Str("channel", msg.Channel).Msg("Message on a channel with no feed, ignoring")
		s.notify("", msg.Kind)
		return
	}

	if msg.Kind == types.KindPresence {
		s.logger.Info().Str("feed", feed.Name).Interface("presence", msg.Payload).Msg("Presence event")
		s.notify(feed.Name, msg.Kind)
		return
	}

	record := feed.Transform(msg.Payload)
	s.logger.Debug().Str("feed", feed.Name).Str("msg_id", msg.ID).Interface("record", record.WireSafe()).Msg("Normalized record")
	s.notify(feed.Name, msg.Kind)

	// The result is observed by the sink's own logging; the loop moves on.
	s.sink.Dispatch(feed.CacheName, record)
}

func (s *ProcessingService) notify(feed string, kind types.MessageKind) {
	if s.observe != nil {
		s.observe(feed, kind)
	}
}

// Stop stops the consumer and waits for the loop to exit.
func (s *ProcessingService) Stop() {
	s.logger.Info().Msg("Stopping ProcessingService...")

	s.shutdownFunc()

	if err := s.consumer.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping message consumer")
	}
	<-s.consumer.Done()
	s.logger.Info().Msg("Message consumer stopped.")

	s.wg.Wait()
	s.logger.Info().Msg("ProcessingService stopped.")
}
