package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"wss://relay.damus.io":       "wss://relay.damus.io",
		"wss://relay.damus.io/":      "wss://relay.damus.io",
		"WSS://RELAY.Damus.IO/":      "wss://relay.damus.io",
		"https://relay.damus.io":     "wss://relay.damus.io",
		"http://relay.damus.io":      "ws://relay.damus.io",
		"relay.damus.io":             "wss://relay.damus.io",
		"relay.damus.io/path/":       "wss://relay.damus.io/path",
		"localhost":                  "ws://localhost",
		"localhost:7447":             "ws://localhost:7447",
		"LOCALHOST:7447":             "ws://localhost:7447",
		"ws://127.0.0.1:8080/":       "ws://127.0.0.1:8080",
		"  wss://relay.damus.io  ":   "wss://relay.damus.io",
		"wss://relay.damus.io/sub//": "wss://relay.damus.io/sub",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestNormalizeURLRejections(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ftp://relay.damus.io", "wss://relay damus.io"} {
		_, err := NormalizeURL(in)
		assert.Error(t, err, "input %q", in)
	}
}
