package relay

import (
	"sync"
	"sync/atomic"
	stdlibtime "time"

	"github.com/nostrc/gostr/bchan"
	"github.com/nostrc/gostr/model"
)

// Subscription is a named, filtered live stream of events from one relay.
// It is owned jointly: the engine feeds its channels, the consumer drains
// them, and either side may close it at any time.
type Subscription struct {
	ID      string
	Filters model.Filters

	engine *Relay

	events       *bchan.Chan[*model.Event]
	eose         *bchan.Chan[model.Timestamp]
	closedReason *bchan.Chan[string]

	live      atomic.Bool
	dropped   atomic.Uint64
	eoseMx    sync.Mutex
	eoseFired bool
	eoseAt    model.Timestamp

	shutdownOnce sync.Once
}

func newSubscription(engine *Relay, id string, filters model.Filters, eventsCap int) *Subscription {
	return &Subscription{
		ID:           id,
		Filters:      filters,
		engine:       engine,
		events:       bchan.New[*model.Event](eventsCap),
		eose:         bchan.New[model.Timestamp](1),
		closedReason: bchan.New[string](1),
	}
}

// Events is the bounded stream of matching events. When the consumer falls
// behind, overflow events are counted in Dropped instead of blocking the
// dispatcher.
func (s *Subscription) Events() *bchan.Chan[*model.Event] {
	return s.events
}

// EndOfStoredEvents fires at most once, carrying the time the relay signalled
// the end of historical results.
func (s *Subscription) EndOfStoredEvents() *bchan.Chan[model.Timestamp] {
	return s.eose
}

// ClosedReason carries the normalized reason when the subscription ends from
// the relay or engine side; it stays silent on consumer-initiated close.
func (s *Subscription) ClosedReason() *bchan.Chan[string] {
	return s.closedReason
}

// Dropped reports how many events were discarded due to a full events channel.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Live reports whether the subscription still accepts dispatches.
func (s *Subscription) Live() bool {
	return s.live.Load()
}

// Close unsubscribes from the relay and closes all channels. Safe to call
// from any goroutine, any number of times.
func (s *Subscription) Close() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.live.Store(false)
		err = s.engine.unsubscribe(s.ID)
		s.closeChannels()
	})

	return err
}

// shutdown is the engine-side termination path: deliver the reason, then
// close every channel. Idempotent with consumer Close.
func (s *Subscription) shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.live.Store(false)
		if reason != "" {
			_ = s.closedReason.TrySend(reason) //nolint:errcheck // Cap-1 channel written once.
		}
		s.closeChannels()
	})
}

func (s *Subscription) closeChannels() {
	s.closedReason.Close()
	s.events.Close()
	s.eose.Close()
}

// markEOSE records the end-of-stored-events instant once; later EOSE frames
// for the same id are ignored.
func (s *Subscription) markEOSE(now stdlibtime.Time) {
	s.eoseMx.Lock()
	defer s.eoseMx.Unlock()
	if s.eoseFired {
		return
	}
	s.eoseFired = true
	s.eoseAt = model.Timestamp(now.Unix())
	_ = s.eose.TrySend(s.eoseAt) //nolint:errcheck // Cap-1 channel written once.
}

// admitsAfterEOSE enforces the live-only policy: once EOSE has fired, events
// stamped before it are stale historical retransmissions and are dropped.
func (s *Subscription) admitsAfterEOSE(createdAt model.Timestamp) bool {
	s.eoseMx.Lock()
	defer s.eoseMx.Unlock()

	return !s.eoseFired || createdAt >= s.eoseAt
}
