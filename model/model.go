// Package model defines the Nostr value types: events, tags, filters and the
// relay message envelopes, with bit-exact canonical serialization.
package model

import (
	"github.com/cockroachdb/errors"
)

type (
	// Timestamp is Unix seconds; negative values occur in rare legacy events.
	Timestamp int64

	// Tag is an ordered sequence of strings; the first element is the name.
	Tag []string

	// Tags belong to an event and share its lifetime.
	Tags []Tag

	// TagMap keys are single-letter tag names without the '#' prefix.
	TagMap map[string][]string

	Kind = int
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrParseMessage   = errors.New("parse message")
)

// Key returns the tag name, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) > 0 {
		return t[0]
	}

	return ""
}

// Value returns the first tag value, or "" when absent.
func (t Tag) Value() string {
	if len(t) > 1 {
		return t[1]
	}

	return ""
}

// GetFirst returns the first tag with the given name, or nil.
func (tt Tags) GetFirst(name string) Tag {
	for _, tag := range tt {
		if tag.Key() == name {
			return tag
		}
	}

	return nil
}

// GetAll returns every tag with the given name.
func (tt Tags) GetAll(name string) Tags {
	var out Tags
	for _, tag := range tt {
		if tag.Key() == name {
			out = append(out, tag)
		}
	}

	return out
}
