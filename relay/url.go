package relay

import (
	"net/url"
	"strings"

	"github.com/nostrc/gostr/errkind"
)

// NormalizeURL maps the loose URL forms users paste into the canonical relay
// address: lower-cased scheme and host, http(s) rewritten to ws(s), trailing
// slash stripped and a default scheme of wss (ws for localhost).
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errkind.New(errkind.InvalidArgument, "empty relay url")
	}
	if !strings.Contains(raw, "://") {
		host := raw
		if i := strings.IndexAny(host, ":/"); i >= 0 {
			host = host[:i]
		}
		if strings.EqualFold(host, "localhost") {
			raw = "ws://" + raw
		} else {
			raw = "wss://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "bad relay url")
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		u.Scheme = strings.ToLower(u.Scheme)
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errkind.Newf(errkind.InvalidArgument, "unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""

	return u.String(), nil
}
