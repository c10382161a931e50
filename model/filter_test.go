package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ts(v int64) *Timestamp {
	t := Timestamp(v)

	return &t
}

func TestFilterMatches(t *testing.T) {
	t.Parallel()
	ev := &Event{
		ID:        "id1",
		PubKey:    "pk1",
		CreatedAt: 100,
		Kind:      1,
		Tags:      Tags{{"e", "root"}, {"p", "pk2"}, {"t", "nostr"}},
	}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter is wildcard", Filter{}, true},
		{"id match", Filter{IDs: []string{"id1"}}, true},
		{"id mismatch", Filter{IDs: []string{"other"}}, false},
		{"author match", Filter{Authors: []string{"pk1"}}, true},
		{"author mismatch", Filter{Authors: []string{"pk2"}}, false},
		{"kind match", Filter{Kinds: []int{0, 1}}, true},
		{"kind mismatch", Filter{Kinds: []int{7}}, false},
		{"since inclusive", Filter{Since: ts(100)}, true},
		{"since excludes older", Filter{Since: ts(101)}, false},
		{"until inclusive", Filter{Until: ts(100)}, true},
		{"until excludes newer", Filter{Until: ts(99)}, false},
		{"tag match", Filter{Tags: TagMap{"e": {"root"}}}, true},
		{"tag value mismatch", Filter{Tags: TagMap{"e": {"other"}}}, false},
		{"tag name absent", Filter{Tags: TagMap{"a": {"x"}}}, false},
		{"multiple tag constraints", Filter{Tags: TagMap{"e": {"root"}, "p": {"pk2"}}}, true},
		{"empty tag value set is wildcard", Filter{Tags: TagMap{"zz": {}}}, true},
		{"all constraints", Filter{IDs: []string{"id1"}, Kinds: []int{1}, Since: ts(50), Until: ts(150)}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.filter.Matches(ev))
		})
	}
}

func TestFilterMatchesNegativeCreatedAt(t *testing.T) {
	t.Parallel()
	ev := &Event{CreatedAt: -10}
	require.True(t, (&Filter{Until: ts(0)}).Matches(ev))
	require.False(t, (&Filter{Since: ts(0)}).Matches(ev))
}

func TestFiltersMatchAny(t *testing.T) {
	t.Parallel()
	ev := &Event{Kind: 7}
	ff := Filters{{Kinds: []int{1}}, {Kinds: []int{7}}}
	require.True(t, ff.Match(ev))
	require.False(t, Filters{{Kinds: []int{1}}}.Match(ev))
	require.False(t, Filters{}.Match(ev))
}

func TestFilterJSONRoundTrip(t *testing.T) {
	t.Parallel()
	f := Filter{
		IDs:     []string{"aa", "bb"},
		Authors: []string{"cc"},
		Kinds:   []int{1, 7},
		Tags:    TagMap{"e": {"dd"}, "p": {"ee", "ff"}},
		Since:   ts(10),
		Until:   ts(20),
		Limit:   5,
		Search:  "needle",
	}
	data, err := f.MarshalJSON()
	require.NoError(t, err)

	var back Filter
	require.NoError(t, back.UnmarshalJSON(data))
	require.Equal(t, f, back)
}

func TestFilterUnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()
	var f Filter
	require.Error(t, f.UnmarshalJSON([]byte(`["not","an","object"]`)))
}
