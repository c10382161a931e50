package model

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestParseMessageVariants(t *testing.T) {
	t.Parallel()

	t.Run("EVENT", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["EVENT","sub1",{"id":"aa","pubkey":"bb","created_at":10,"kind":1,"tags":[],"content":"x","sig":"cc"}]`))
		require.NoError(t, err)
		ev, ok := env.(*EventEnvelope)
		require.True(t, ok)
		require.NotNil(t, ev.SubscriptionID)
		require.Equal(t, "sub1", *ev.SubscriptionID)
		require.Equal(t, "aa", ev.Event.ID)
		require.Equal(t, 1, ev.Event.Kind)
	})

	t.Run("EOSE", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["EOSE","sub1"]`))
		require.NoError(t, err)
		eose, ok := env.(*EOSEEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", string(*eose))
	})

	t.Run("CLOSED", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["CLOSED","sub1","rate-limited: too many REQs"]`))
		require.NoError(t, err)
		closed, ok := env.(*ClosedEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", closed.SubscriptionID)
		require.Equal(t, "rate-limited: too many REQs", closed.Reason)
	})

	t.Run("NOTICE", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["NOTICE","slow down"]`))
		require.NoError(t, err)
		notice, ok := env.(*NoticeEnvelope)
		require.True(t, ok)
		require.Equal(t, "slow down", string(*notice))
	})

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["OK","eid",false,"blocked: spam"]`))
		require.NoError(t, err)
		okEnv, ok := env.(*OKEnvelope)
		require.True(t, ok)
		require.Equal(t, "eid", okEnv.EventID)
		require.False(t, okEnv.OK)
		require.Equal(t, "blocked: spam", okEnv.Reason)
	})

	t.Run("AUTH challenge", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["AUTH","challenge-string"]`))
		require.NoError(t, err)
		auth, ok := env.(*AuthEnvelope)
		require.True(t, ok)
		require.NotNil(t, auth.Challenge)
		require.Equal(t, "challenge-string", *auth.Challenge)
		require.Nil(t, auth.Event)
	})

	t.Run("REQ", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["REQ","sub1",{"kinds":[1],"limit":10},{"#e":["aa"]}]`))
		require.NoError(t, err)
		req, ok := env.(*ReqEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", req.SubscriptionID)
		require.Len(t, req.Filters, 2)
		require.Equal(t, []int{1}, req.Filters[0].Kinds)
		require.Equal(t, TagMap{"e": {"aa"}}, req.Filters[1].Tags)
	})

	t.Run("CLOSE", func(t *testing.T) {
		t.Parallel()
		env, err := ParseMessage([]byte(`["CLOSE","sub1"]`))
		require.NoError(t, err)
		cl, ok := env.(*CloseEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", string(*cl))
	})
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		`{}`,
		`[]`,
		`[42,"x"]`,
		`["WHATEVER","x"]`,
		`["EVENT"]`,
		`["CLOSED","sub"]`,
		`["OK","id"]`,
		`not json at all`,
	} {
		_, err := ParseMessage([]byte(raw))
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrUnknownMessage) || errors.Is(err, ErrParseMessage), raw)
	}
}

func TestEnvelopeMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	subID := "s"
	envelopes := []Envelope{
		&EventEnvelope{SubscriptionID: &subID, Event: Event{ID: "aa", Tags: Tags{}}},
		&ReqEnvelope{SubscriptionID: "s", Filters: Filters{{Kinds: []int{1}}}},
		func() *CloseEnvelope { c := CloseEnvelope("s"); return &c }(),
		&ClosedEnvelope{SubscriptionID: "s", Reason: "r"},
		func() *EOSEEnvelope { e := EOSEEnvelope("s"); return &e }(),
		func() *NoticeEnvelope { n := NoticeEnvelope("n"); return &n }(),
		&OKEnvelope{EventID: "aa", OK: true, Reason: "saved"},
		&AuthEnvelope{Challenge: &subID},
	}
	for _, env := range envelopes {
		data, err := env.MarshalJSON()
		require.NoError(t, err)
		back, err := ParseMessage(data)
		require.NoError(t, err)
		require.Equal(t, env.Label(), back.Label())
	}
}
