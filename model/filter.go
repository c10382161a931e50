package model

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nostrc/gostr/errkind"
)

type (
	// Filter is a matching predicate; empty fields are wildcards.
	// Immutable once registered with a subscription.
	Filter struct {
		IDs     []string
		Authors []string
		Kinds   []int
		Tags    TagMap
		Since   *Timestamp
		Until   *Timestamp
		Limit   int
		Search  string
	}

	// Filters is the ordered bundle a subscription registers.
	Filters []Filter
)

// Match reports whether any filter in the bundle matches the event.
func (ff Filters) Match(event *Event) bool {
	for i := range ff {
		if ff[i].Matches(event) {
			return true
		}
	}

	return false
}

// Matches checks every specified constraint against the event.
func (f *Filter) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, event.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, event.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, event.Kind) {
		return false
	}
	if f.Since != nil && event.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && event.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		matched := false
		for _, tag := range event.Tags {
			if tag.Key() == name && len(tag) > 1 && containsString(values, tag[1]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, k := range haystack {
		if k == needle {
			return true
		}
	}

	return false
}

// MarshalJSON renders the NIP-01 object form, tag constraints under "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 8+len(f.Tags))
	if len(f.IDs) > 0 {
		obj["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		obj["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		obj["#"+name] = values
	}
	if f.Since != nil {
		obj["since"] = *f.Since
	}
	if f.Until != nil {
		obj["until"] = *f.Until
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	if f.Search != "" {
		obj["search"] = f.Search
	}

	return json.Marshal(obj)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return errkind.New(errkind.Protocol, "filter is not a json object")
	}
	*f = Filter{}
	r.ForEach(func(key, value gjson.Result) bool {
		switch k := key.String(); {
		case k == "ids":
			f.IDs = stringSlice(value)
		case k == "authors":
			f.Authors = stringSlice(value)
		case k == "kinds":
			value.ForEach(func(_, item gjson.Result) bool {
				f.Kinds = append(f.Kinds, int(item.Int()))

				return true
			})
		case k == "since":
			ts := Timestamp(value.Int())
			f.Since = &ts
		case k == "until":
			ts := Timestamp(value.Int())
			f.Until = &ts
		case k == "limit":
			f.Limit = int(value.Int())
		case k == "search":
			f.Search = value.String()
		case strings.HasPrefix(k, "#") && len(k) > 1:
			if f.Tags == nil {
				f.Tags = make(TagMap)
			}
			f.Tags[k[1:]] = stringSlice(value)
		}

		return true
	})

	return nil
}

func stringSlice(value gjson.Result) []string {
	var out []string
	value.ForEach(func(_, item gjson.Result) bool {
		out = append(out, item.String())

		return true
	})

	return out
}
