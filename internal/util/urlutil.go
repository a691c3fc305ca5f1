package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyURL is returned for blank input.
var ErrEmptyURL = errors.New("empty URL")

// NormalizeTargetURL trims raw and checks that it is an absolute http(s)
// URL with a host. Input without a scheme is treated as https. The
// normalized string is returned.
func NormalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "" || u.Host == "") && !strings.Contains(raw, "://") {
		if u2, e2 := url.Parse("https://" + raw); e2 == nil {
			u = u2
		}
	}
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q: only http and https are supported", u.Scheme)
	}
	return u.String(), nil
}

// RedactQuery returns u without its query string, for compact display.
func RedactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	u.RawQuery = ""
	return u.String() + "?…"
}
