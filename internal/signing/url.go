package signing

import (
	"context"
	"errors"
	"strings"
)

var ErrURLUnavailable = errors.New("current page url is unavailable")

// URLSource yields the URL of the page host capabilities will run against.
type URLSource interface {
	CurrentURL(ctx context.Context) (string, error)
}

// StaticURL is a URLSource for a fixed page URL; empty means no navigable URL.
type StaticURL string

func (u StaticURL) CurrentURL(context.Context) (string, error) {
	if strings.TrimSpace(string(u)) == "" {
		return "", ErrURLUnavailable
	}
	return string(u), nil
}

// StripFragment drops everything from the first '#' on. Query and path are kept
// verbatim: the signing server validates the exact page URL.
func StripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
