package relay

import (
	"github.com/rcrowley/go-metrics"
)

// Metrics is the process-wide registry for engine counters; consumers may
// walk it or re-register it into their own reporting pipeline.
var Metrics = metrics.NewRegistry()

var (
	mFramesDroppedRate = metrics.GetOrRegisterCounter("relay.frames.dropped_rate", Metrics)
	mBytesDroppedRate  = metrics.GetOrRegisterCounter("relay.bytes.dropped_rate", Metrics)
	mFramesDroppedSize = metrics.GetOrRegisterCounter("relay.frames.dropped_size", Metrics)
	mProtocolErrors    = metrics.GetOrRegisterCounter("relay.frames.protocol_errors", Metrics)
	mInvalidSignatures = metrics.GetOrRegisterCounter("relay.events.invalid_sig", Metrics)
	mBackpressureDrops = metrics.GetOrRegisterCounter("relay.events.dropped_backpressure", Metrics)
	mConnectionsBanned = metrics.GetOrRegisterCounter("relay.conns.banned", Metrics)
	mSlowPeerTeardowns = metrics.GetOrRegisterCounter("relay.conns.slow_peer", Metrics)
	mEventsDispatched  = metrics.GetOrRegisterCounter("relay.events.dispatched", Metrics)
	mEventsNotMatching = metrics.GetOrRegisterCounter("relay.events.not_matching", Metrics)
)
