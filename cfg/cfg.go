// Package cfg holds the process-wide limits snapshot.
//
// Every limit is overridable through the environment; values are read once on
// first use and shared by all connections.
package cfg

import (
	"log"
	"sync"
	stdlibtime "time"

	"github.com/spf13/viper"
)

type Limits struct {
	MaxFrameLenBytes    int64
	MaxFramesPerSec     float64
	MaxBytesPerSec      float64
	MaxEventSizeBytes   int64
	MaxTagsPerEvent     int
	MaxTagDepth         int
	MaxIDsPerFilter     int
	MaxFiltersPerReq    int
	ReadTimeout         stdlibtime.Duration
	ProgressWindow      stdlibtime.Duration
	MinBytesPerWindow   int64
	InvalidSigWindow    stdlibtime.Duration
	InvalidSigThreshold int
	InvalidSigBan       stdlibtime.Duration
	EventsChanCapacity  int
}

var (
	snapshotInitializer = new(sync.Once)
	snapshot            *Limits
)

// Snapshot returns the process-wide limits, reading the environment on first use.
func Snapshot() *Limits {
	snapshotInitializer.Do(func() { snapshot = FromEnv() })

	return snapshot
}

// FromEnv builds a fresh Limits from the environment, every field defaulted.
// Snapshot is the normal entry point; FromEnv exists so tests can rebuild.
func FromEnv() *Limits {
	v := viper.New()
	l := Default()
	bind := func(key, envName string) {
		if err := v.BindEnv(key, envName); err != nil {
			log.Printf("WARN: failed to bind env %v: %v", envName, err)
		}
	}
	bind("maxFrameLenBytes", "MAX_FRAME_LEN_BYTES")
	bind("maxFramesPerSec", "MAX_FRAMES_PER_SEC")
	bind("maxBytesPerSec", "MAX_BYTES_PER_SEC")
	bind("maxEventSizeBytes", "MAX_EVENT_SIZE_BYTES")
	bind("maxTagsPerEvent", "MAX_TAGS_PER_EVENT")
	bind("maxTagDepth", "MAX_TAG_DEPTH")
	bind("maxIdsPerFilter", "MAX_IDS_PER_FILTER")
	bind("maxFiltersPerReq", "MAX_FILTERS_PER_REQ")
	bind("readTimeoutSeconds", "WS_READ_TIMEOUT_SECONDS")
	bind("progressWindowMs", "WS_PROGRESS_WINDOW_MS")
	bind("minBytesPerWindow", "WS_MIN_BYTES_PER_WINDOW")
	bind("invalidSigWindowSeconds", "INVALID_SIG_WINDOW_SECONDS")
	bind("invalidSigThreshold", "INVALID_SIG_THRESHOLD")
	bind("invalidSigBanSeconds", "INVALID_SIG_BAN_SECONDS")

	setInt64 := func(dst *int64, key string) {
		if x := v.GetInt64(key); x > 0 {
			*dst = x
		}
	}
	setInt := func(dst *int, key string) {
		if x := v.GetInt(key); x > 0 {
			*dst = x
		}
	}
	setRate := func(dst *float64, key string) {
		if x := v.GetFloat64(key); x > 0 {
			*dst = x
		}
	}
	setSeconds := func(dst *stdlibtime.Duration, key string) {
		if x := v.GetInt64(key); x > 0 {
			*dst = stdlibtime.Duration(x) * stdlibtime.Second
		}
	}

	setInt64(&l.MaxFrameLenBytes, "maxFrameLenBytes")
	setRate(&l.MaxFramesPerSec, "maxFramesPerSec")
	setRate(&l.MaxBytesPerSec, "maxBytesPerSec")
	setInt64(&l.MaxEventSizeBytes, "maxEventSizeBytes")
	setInt(&l.MaxTagsPerEvent, "maxTagsPerEvent")
	setInt(&l.MaxTagDepth, "maxTagDepth")
	setInt(&l.MaxIDsPerFilter, "maxIdsPerFilter")
	setInt(&l.MaxFiltersPerReq, "maxFiltersPerReq")
	setSeconds(&l.ReadTimeout, "readTimeoutSeconds")
	if x := v.GetInt64("progressWindowMs"); x > 0 {
		l.ProgressWindow = stdlibtime.Duration(x) * stdlibtime.Millisecond
	}
	setInt64(&l.MinBytesPerWindow, "minBytesPerWindow")
	setSeconds(&l.InvalidSigWindow, "invalidSigWindowSeconds")
	setInt(&l.InvalidSigThreshold, "invalidSigThreshold")
	setSeconds(&l.InvalidSigBan, "invalidSigBanSeconds")

	return l
}

// Default returns the built-in limit values.
func Default() *Limits {
	return &Limits{
		MaxFrameLenBytes:    2 << 20,
		MaxFramesPerSec:     2000,
		MaxBytesPerSec:      50 << 20,
		MaxEventSizeBytes:   256 << 10,
		MaxTagsPerEvent:     100,
		MaxTagDepth:         4,
		MaxIDsPerFilter:     500,
		MaxFiltersPerReq:    20,
		ReadTimeout:         60 * stdlibtime.Second,
		ProgressWindow:      5000 * stdlibtime.Millisecond,
		MinBytesPerWindow:   256,
		InvalidSigWindow:    60 * stdlibtime.Second,
		InvalidSigThreshold: 20,
		InvalidSigBan:       300 * stdlibtime.Second,
		EventsChanCapacity:  1024,
	}
}
