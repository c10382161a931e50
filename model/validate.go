package model

import (
	"github.com/nostrc/gostr/cfg"
	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

// CheckRawEventLimits vets the raw event object before any structural parse:
// byte size and bracket depth, so hostile frames are rejected cheaply.
func CheckRawEventLimits(raw []byte, limits *cfg.Limits) error {
	if int64(len(raw)) > limits.MaxEventSizeBytes {
		return errkind.Newf(errkind.ResourceLimit, "event size %d exceeds cap %d", len(raw), limits.MaxEventSizeBytes)
	}
	// The object itself is depth 1, the tags array 2, a flat tag 3.
	if depth := maxBracketDepth(raw); depth > limits.MaxTagDepth {
		return errkind.Newf(errkind.ResourceLimit, "json nesting depth %d exceeds cap %d", depth, limits.MaxTagDepth)
	}

	return nil
}

// CheckLimits vets a parsed event against the configured caps.
func (e *Event) CheckLimits(limits *cfg.Limits) error {
	if len(e.Tags) > limits.MaxTagsPerEvent {
		return errkind.Newf(errkind.ResourceLimit, "event has %d tags, cap is %d", len(e.Tags), limits.MaxTagsPerEvent)
	}

	return nil
}

// ValidateSigned checks the wire-form invariants of a signed event: hex
// field shapes, id equality and signature validity.
func (e *Event) ValidateSigned() error {
	if len(e.ID) != 64 || !crypto.IsLowerHex(e.ID) {
		return errkind.New(errkind.Protocol, "event id is not 64 lower-case hex characters")
	}
	if len(e.PubKey) != 64 || !crypto.IsLowerHex(e.PubKey) {
		return errkind.New(errkind.Protocol, "event pubkey is not 64 lower-case hex characters")
	}
	if len(e.Sig) != 128 || !crypto.IsLowerHex(e.Sig) {
		return errkind.New(errkind.Protocol, "event sig is not 128 lower-case hex characters")
	}
	if !e.Verify() {
		return errkind.New(errkind.Crypto, "event id or signature is invalid")
	}

	return nil
}

// CheckLimits vets an outbound filter bundle before it is written as a REQ.
func (ff Filters) CheckLimits(limits *cfg.Limits) error {
	if len(ff) == 0 {
		return errkind.New(errkind.InvalidArgument, "subscription requires at least one filter")
	}
	if len(ff) > limits.MaxFiltersPerReq {
		return errkind.Newf(errkind.ResourceLimit, "%d filters per REQ, cap is %d", len(ff), limits.MaxFiltersPerReq)
	}
	for i := range ff {
		if len(ff[i].IDs) > limits.MaxIDsPerFilter {
			return errkind.Newf(errkind.ResourceLimit, "filter %d has %d ids, cap is %d", i, len(ff[i].IDs), limits.MaxIDsPerFilter)
		}
		if len(ff[i].Authors) > limits.MaxIDsPerFilter {
			return errkind.Newf(errkind.ResourceLimit, "filter %d has %d authors, cap is %d", i, len(ff[i].Authors), limits.MaxIDsPerFilter)
		}
	}

	return nil
}

// maxBracketDepth scans raw JSON for the deepest array/object nesting,
// skipping string contents.
func maxBracketDepth(raw []byte) int {
	depth, maxDepth := 0, 0
	inString, escaped := false, false
	for _, c := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ']', '}':
			depth--
		}
	}

	return maxDepth
}
