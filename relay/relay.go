// Package relay implements the client side of the nostr relay protocol:
// connection transport, rate limiting and the subscription dispatch engine.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/nostrc/gostr/bchan"
	"github.com/nostrc/gostr/cfg"
	"github.com/nostrc/gostr/errkind"
	"github.com/nostrc/gostr/model"
)

// KindClientAuthentication is the event kind of NIP-42 AUTH responses.
const KindClientAuthentication = 22242

const (
	reasonPrefixRelay     = "relay-close: "
	reasonPrefixEngine    = "engine-close: "
	reasonPrefixTransport = "transport: "
)

// Process-wide ban list, keyed by normalized relay URL. A relay that crossed
// the invalid-signature threshold is refused by Connect until the window
// expires.
var (
	bansMx sync.Mutex
	bans   = make(map[string]stdlibtime.Time)
)

func banRelay(url string, until stdlibtime.Time) {
	bansMx.Lock()
	bans[url] = until
	bansMx.Unlock()
}

func relayBanned(url string, now stdlibtime.Time) bool {
	bansMx.Lock()
	defer bansMx.Unlock()
	until, found := bans[url]
	if !found {
		return false
	}
	if now.After(until) {
		delete(bans, url)

		return false
	}

	return true
}

type (
	// Relay owns one WebSocket session and the subscriptions multiplexed
	// over it. Reconnection is the caller's business; once torn down a
	// Relay stays dead.
	Relay struct {
		URL string

		limits *cfg.Limits
		conn   *wsConn

		subsMx    sync.Mutex
		subs      map[string]*Subscription
		pendingOK map[string]chan *model.OKEnvelope

		limiterMx   sync.Mutex
		frameBucket *tokenBucket
		byteBucket  *tokenBucket
		sigHits     sigRing

		challengeMx sync.Mutex
		challenge   string

		notices    *bchan.Chan[string]
		challenges *bchan.Chan[string]

		teardownOnce sync.Once
		done         chan struct{}
	}

	// ConnectOption tweaks a Relay before its loops start.
	ConnectOption func(*Relay)

	// SubscribeOption tweaks a single subscription.
	SubscribeOption func(*subscribeParams)

	subscribeParams struct {
		id        string
		eventsCap int
	}
)

// WithLimits overrides the environment limits snapshot, mostly for tests.
func WithLimits(limits *cfg.Limits) ConnectOption {
	return func(r *Relay) { r.limits = limits }
}

// WithSubscriptionID pins the client-chosen subscription id instead of a
// generated one. Must be 64 characters or fewer.
func WithSubscriptionID(id string) SubscribeOption {
	return func(p *subscribeParams) { p.id = id }
}

// WithEventsCapacity overrides the events channel capacity.
func WithEventsCapacity(capacity int) SubscribeOption {
	return func(p *subscribeParams) { p.eventsCap = capacity }
}

// Connect normalizes the URL, dials the relay and starts the read, write and
// watchdog loops.
func Connect(ctx context.Context, rawURL string, opts ...ConnectOption) (*Relay, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	r := &Relay{
		URL:        normalized,
		limits:     cfg.Snapshot(),
		subs:       make(map[string]*Subscription),
		pendingOK:  make(map[string]chan *model.OKEnvelope),
		notices:    bchan.New[string](16),
		challenges: bchan.New[string](16),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if relayBanned(normalized, stdlibtime.Now()) {
		return nil, errkind.Newf(errkind.ResourceLimit, "relay %v is banned: too many invalid signatures", normalized)
	}
	conn, err := dialConn(ctx, normalized, r.limits.MaxFrameLenBytes, r.limits.ProgressWindow)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %v", normalized)
	}
	r.conn = conn
	now := stdlibtime.Now()
	r.frameBucket = newTokenBucket(r.limits.MaxFramesPerSec, r.limits.MaxFramesPerSec, now)
	r.byteBucket = newTokenBucket(r.limits.MaxBytesPerSec, r.limits.MaxBytesPerSec, now)
	r.sigHits = sigRing{window: r.limits.InvalidSigWindow, threshold: r.limits.InvalidSigThreshold}
	go conn.writeLoop()
	go r.readLoop()
	go r.watchdog()

	return r, nil
}

// Notices streams relay NOTICE texts; overflow is dropped.
func (r *Relay) Notices() *bchan.Chan[string] {
	return r.notices
}

// AuthChallenges streams AUTH challenges for consumers that answer them
// themselves instead of calling Auth.
func (r *Relay) AuthChallenges() *bchan.Chan[string] {
	return r.challenges
}

// Closed reports whether the relay session has been torn down.
func (r *Relay) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Close tears the session down; every open subscription observes an
// engine-close reason.
func (r *Relay) Close() error {
	r.teardown(reasonPrefixEngine + "client closed")

	return nil
}

// Subscribe registers a filter bundle and issues the REQ. The subscription
// is live once the frame is accepted for write.
func (r *Relay) Subscribe(ctx context.Context, filters model.Filters, opts ...SubscribeOption) (*Subscription, error) {
	if r.Closed() {
		return nil, errkind.New(errkind.Transport, "relay connection is closed")
	}
	if err := filters.CheckLimits(r.limits); err != nil {
		return nil, err
	}
	params := &subscribeParams{id: uuid.NewString(), eventsCap: r.limits.EventsChanCapacity}
	for _, opt := range opts {
		opt(params)
	}
	if params.id == "" || len(params.id) > 64 {
		return nil, errkind.Newf(errkind.InvalidArgument, "subscription id %q must be 1..64 characters", params.id)
	}
	sub := newSubscription(r, params.id, filters, params.eventsCap)

	r.subsMx.Lock()
	if _, clash := r.subs[sub.ID]; clash {
		r.subsMx.Unlock()

		return nil, errkind.Newf(errkind.InvalidArgument, "subscription id %q already in use", sub.ID)
	}
	r.subs[sub.ID] = sub
	r.subsMx.Unlock()

	data, err := json.Marshal(&model.ReqEnvelope{SubscriptionID: sub.ID, Filters: filters})
	if err != nil {
		r.removeSubscription(sub.ID)

		return nil, errors.Wrap(err, "failed to marshal REQ")
	}
	sub.live.Store(true)
	if err = r.conn.WriteMessage(ctx, data); err != nil {
		sub.live.Store(false)
		r.removeSubscription(sub.ID)

		return nil, errors.Wrap(err, "failed to write REQ")
	}

	return sub, nil
}

// Publish writes the signed event and waits for the relay's OK verdict.
func (r *Relay) Publish(ctx context.Context, event *model.Event) error {
	if event == nil || event.ID == "" || event.Sig == "" {
		return errkind.New(errkind.InvalidArgument, "event must be signed before publishing")
	}
	data, err := json.Marshal(&model.EventEnvelope{Event: *event})
	if err != nil {
		return errors.Wrap(err, "failed to marshal EVENT")
	}

	return r.writeAwaitingOK(ctx, event.ID, data)
}

// Auth answers the relay's most recent AUTH challenge with a kind-22242
// event produced by the sign callback, then waits for the OK verdict.
func (r *Relay) Auth(ctx context.Context, sign func(*model.Event) error) error {
	r.challengeMx.Lock()
	challenge := r.challenge
	r.challengeMx.Unlock()
	if challenge == "" {
		return errkind.New(errkind.Protocol, "no auth challenge received from relay")
	}
	event := &model.Event{
		Kind:      KindClientAuthentication,
		CreatedAt: model.Timestamp(stdlibtime.Now().Unix()),
		Tags: model.Tags{
			{"relay", r.URL},
			{"challenge", challenge},
		},
	}
	if err := sign(event); err != nil {
		return errors.Wrap(err, "failed to sign auth event")
	}
	if event.ID == "" || event.Sig == "" {
		return errkind.New(errkind.InvalidArgument, "sign callback left the auth event unsigned")
	}
	data, err := json.Marshal(&model.AuthEnvelope{Event: event})
	if err != nil {
		return errors.Wrap(err, "failed to marshal AUTH")
	}

	return r.writeAwaitingOK(ctx, event.ID, data)
}

func (r *Relay) writeAwaitingOK(ctx context.Context, eventID string, frame []byte) error {
	ch := make(chan *model.OKEnvelope, 1)
	r.subsMx.Lock()
	if r.Closed() {
		r.subsMx.Unlock()

		return errkind.New(errkind.Transport, "relay connection is closed")
	}
	r.pendingOK[eventID] = ch
	r.subsMx.Unlock()
	forget := func() {
		r.subsMx.Lock()
		delete(r.pendingOK, eventID)
		r.subsMx.Unlock()
	}
	if err := r.conn.WriteMessage(ctx, frame); err != nil {
		forget()

		return errors.Wrap(err, "failed to write frame")
	}
	select {
	case verdict, delivered := <-ch:
		if !delivered {
			return errkind.New(errkind.Transport, "relay connection closed while awaiting OK")
		}
		if !verdict.OK {
			return errkind.Newf(errkind.Protocol, "relay rejected event: %v", verdict.Reason)
		}

		return nil
	case <-ctx.Done():
		forget()

		return errkind.Wrap(ctx.Err(), errkind.Cancelled, "gave up awaiting OK")
	case <-r.done:
		return errkind.New(errkind.Transport, "relay connection closed while awaiting OK")
	}
}

// unsubscribe is the consumer-close path: drop the registry entry and tell
// the relay. The subscription closes its own channels.
func (r *Relay) unsubscribe(subID string) error {
	r.removeSubscription(subID)
	if r.Closed() {
		return nil
	}
	closeEnv := model.CloseEnvelope(subID)
	data, err := json.Marshal(&closeEnv)
	if err != nil {
		return errors.Wrap(err, "failed to marshal CLOSE")
	}
	if err = r.conn.WriteMessage(context.Background(), data); err != nil {
		return errors.Wrap(err, "failed to write CLOSE")
	}

	return nil
}

func (r *Relay) lookupSubscription(subID string) *Subscription {
	r.subsMx.Lock()
	defer r.subsMx.Unlock()

	return r.subs[subID]
}

func (r *Relay) removeSubscription(subID string) {
	r.subsMx.Lock()
	delete(r.subs, subID)
	r.subsMx.Unlock()
}

func (r *Relay) readLoop() {
	for {
		payload, err := r.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, errFrameTooLarge) {
				mFramesDroppedSize.Inc(1)
				continue
			}
			r.teardown(reasonPrefixTransport + "relay disconnected")

			return
		}
		now := stdlibtime.Now()
		r.limiterMx.Lock()
		frameOK := r.frameBucket.allow(now, 1)
		bytesOK := r.byteBucket.allow(now, float64(len(payload)))
		r.limiterMx.Unlock()
		if !frameOK {
			mFramesDroppedRate.Inc(1)
			continue
		}
		if !bytesOK {
			mBytesDroppedRate.Inc(1)
			continue
		}
		r.dispatch(payload, now)
	}
}

// dispatch routes one admitted frame. It runs only on the read loop, which
// is what keeps per-subscription delivery serialized.
func (r *Relay) dispatch(payload []byte, now stdlibtime.Time) {
	envelope, err := model.ParseMessage(payload)
	if err != nil {
		mProtocolErrors.Inc(1)
		log.Printf("WARN: dropping unparseable frame from %v: %v", r.URL, err)

		return
	}
	switch e := envelope.(type) {
	case *model.EventEnvelope:
		r.dispatchEvent(payload, e)
	case *model.EOSEEnvelope:
		if sub := r.lookupSubscription(string(*e)); sub != nil {
			sub.markEOSE(now)
		}
	case *model.ClosedEnvelope:
		r.handleClosed(e)
	case *model.NoticeEnvelope:
		_ = r.notices.TrySend(string(*e)) //nolint:errcheck // Overflow notices are droppable.
	case *model.OKEnvelope:
		r.handleOK(e)
	case *model.AuthEnvelope:
		r.handleAuth(e)
	default:
		// REQ/CLOSE are client-to-relay only.
		mProtocolErrors.Inc(1)
	}
}

func (r *Relay) dispatchEvent(payload []byte, e *model.EventEnvelope) {
	if e.SubscriptionID == nil {
		mProtocolErrors.Inc(1)

		return
	}
	sub := r.lookupSubscription(*e.SubscriptionID)
	if sub == nil || !sub.Live() {
		return // stale subscription id
	}
	event := &e.Event
	if err := model.CheckRawEventLimits(payload, r.limits); err != nil {
		mProtocolErrors.Inc(1)

		return
	}
	if err := event.CheckLimits(r.limits); err != nil {
		mProtocolErrors.Inc(1)

		return
	}
	if err := event.ValidateSigned(); err != nil {
		r.recordInvalidSignature()

		return
	}
	if !sub.Filters.Match(event) {
		mEventsNotMatching.Inc(1)

		return
	}
	if !sub.admitsAfterEOSE(event.CreatedAt) {
		return
	}
	if err := sub.events.TrySend(event); err != nil {
		sub.dropped.Add(1)
		mBackpressureDrops.Inc(1)

		return
	}
	mEventsDispatched.Inc(1)
}

func (r *Relay) handleClosed(e *model.ClosedEnvelope) {
	sub := r.lookupSubscription(e.SubscriptionID)
	if sub == nil {
		return
	}
	r.removeSubscription(e.SubscriptionID)
	sub.shutdown(normalizeReason(reasonPrefixRelay, e.Reason))
}

func (r *Relay) handleOK(e *model.OKEnvelope) {
	r.subsMx.Lock()
	defer r.subsMx.Unlock()
	if ch := r.pendingOK[e.EventID]; ch != nil {
		delete(r.pendingOK, e.EventID)
		ch <- e // cap 1, written at most once per id
	}
}

func (r *Relay) handleAuth(e *model.AuthEnvelope) {
	if e.Challenge == nil {
		mProtocolErrors.Inc(1)

		return
	}
	r.challengeMx.Lock()
	r.challenge = *e.Challenge
	r.challengeMx.Unlock()
	_ = r.challenges.TrySend(*e.Challenge) //nolint:errcheck // Overflow challenges are droppable.
}

func (r *Relay) recordInvalidSignature() {
	mInvalidSignatures.Inc(1)
	r.limiterMx.Lock()
	banned := r.sigHits.record(stdlibtime.Now())
	r.limiterMx.Unlock()
	if banned {
		mConnectionsBanned.Inc(1)
		if r.limits.InvalidSigBan > 0 {
			banRelay(r.URL, stdlibtime.Now().Add(r.limits.InvalidSigBan))
		}
		r.teardown(reasonPrefixEngine + "banned: too many invalid signatures")
	}
}

func (r *Relay) watchdog() {
	ticker := stdlibtime.NewTicker(r.limits.ProgressWindow)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			lastRx, bytes := r.conn.TakeWindow()
			idle := now.Sub(lastRx) > r.limits.ReadTimeout
			trickling := bytes > 0 && bytes < r.limits.MinBytesPerWindow
			if idle || trickling {
				mSlowPeerTeardowns.Inc(1)
				r.teardown(reasonPrefixEngine + "slow peer")

				return
			}
		}
	}
}

// teardown closes the transport and transitions every subscription to its
// terminal state. First caller wins; everyone else is a no-op.
func (r *Relay) teardown(reason string) {
	r.teardownOnce.Do(func() {
		close(r.done)
		var mErr *multierror.Error
		mErr = multierror.Append(mErr, r.conn.Close())

		r.subsMx.Lock()
		subs := r.subs
		pending := r.pendingOK
		r.subs = make(map[string]*Subscription)
		r.pendingOK = make(map[string]chan *model.OKEnvelope)
		r.subsMx.Unlock()

		for _, sub := range subs {
			sub.shutdown(reason)
		}
		for _, ch := range pending {
			close(ch)
		}
		r.notices.Close()
		r.challenges.Close()
		if err := mErr.ErrorOrNil(); err != nil {
			log.Printf("WARN: teardown of %v: %v", r.URL, err)
		}
	})
}

func normalizeReason(prefix, reason string) string {
	for _, known := range []string{reasonPrefixRelay, reasonPrefixEngine, reasonPrefixTransport} {
		if strings.HasPrefix(reason, known) {
			return reason
		}
	}

	return prefix + reason
}
