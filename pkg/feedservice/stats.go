package feedservice

import (
	"sync"
	"sync/atomic"

	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// Declaration states reported in a FeedSnapshot.
const (
	DeclarePending = "pending"
	DeclareOK      = "ok"
	DeclareFailed  = "failed"
)

type feedCounters struct {
	received   atomic.Uint64
	presence   atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64

	mu       sync.Mutex
	declared string
}

// FeedSnapshot is a point-in-time copy of one feed's counters.
type FeedSnapshot struct {
	Cache      string `json:"cache"`
	Declared   string `json:"declared"`
	Received   uint64 `json:"received"`
	Presence   uint64 `json:"presence"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
}

// Snapshot is what the status server reports on /stats.
type Snapshot struct {
	Feeds             map[string]FeedSnapshot `json:"feeds"`
	Unrouted          uint64                  `json:"unrouted"`
	Dropped           uint64                  `json:"dropped"`
	ResubscribeCycles uint64                  `json:"resubscribe_cycles"`
}

// Stats counts messages and DataServer outcomes per feed. Its methods are
// safe for concurrent use.
type Stats struct {
	byFeed   map[string]*feedCounters
	cacheOf  map[string]string // feed -> cache
	feedOf   map[string]string // cache -> feed
	unrouted atomic.Uint64

	// Optional sources for counters owned elsewhere.
	dropped func() uint64
	cycles  func() uint64
}

// NewStats creates zeroed counters for feedList.
func NewStats(feedList []feeds.Feed) *Stats {
	s := &Stats{
		byFeed:  make(map[string]*feedCounters, len(feedList)),
		cacheOf: make(map[string]string, len(feedList)),
		feedOf:  make(map[string]string, len(feedList)),
	}
	for _, f := range feedList {
		s.byFeed[f.Name] = &feedCounters{declared: DeclarePending}
		s.cacheOf[f.Name] = f.CacheName
		s.feedOf[f.CacheName] = f.Name
	}
	return s
}

// ObserveMessage counts a message handled by the event loop. It satisfies
// consumers.MessageObserver.
func (s *Stats) ObserveMessage(feed string, kind types.MessageKind) {
	c, ok := s.byFeed[feed]
	if !ok {
		s.unrouted.Add(1)
		return
	}
	if kind == types.KindPresence {
		c.presence.Add(1)
		return
	}
	c.received.Add(1)
}

// ObserveOutcome counts a DataServer call result. It satisfies rtview.OutcomeFunc.
func (s *Stats) ObserveOutcome(op rtview.Operation, cacheName string, err error) {
	c, ok := s.byFeed[s.feedOf[cacheName]]
	if !ok {
		return
	}
	switch op {
	case rtview.OpDeclare:
		c.mu.Lock()
		if err != nil {
			c.declared = DeclareFailed
		} else {
			c.declared = DeclareOK
		}
		c.mu.Unlock()
	case rtview.OpDispatch:
		if err != nil {
			c.failed.Add(1)
		} else {
			c.dispatched.Add(1)
		}
	}
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Feeds:    make(map[string]FeedSnapshot, len(s.byFeed)),
		Unrouted: s.unrouted.Load(),
	}
	for name, c := range s.byFeed {
		c.mu.Lock()
		declared := c.declared
		c.mu.Unlock()
		snap.Feeds[name] = FeedSnapshot{
			Cache:      s.cacheOf[name],
			Declared:   declared,
			Received:   c.received.Load(),
			Presence:   c.presence.Load(),
			Dispatched: c.dispatched.Load(),
			Failed:     c.failed.Load(),
		}
	}
	if s.dropped != nil {
		snap.Dropped = s.dropped()
	}
	if s.cycles != nil {
		snap.ResubscribeCycles = s.cycles()
	}
	return snap
}
