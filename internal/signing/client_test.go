package signing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redforks/wx-js-sdk/internal/platform/ratelimiter"
)

type signServer struct {
	*httptest.Server
	bodies []string
	paths  []string
}

func newSignServer(t *testing.T, status int, response string) *signServer {
	t.Helper()
	s := &signServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		s.bodies = append(s.bodies, string(body))
		s.paths = append(s.paths, r.URL.Path)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestStripFragment(t *testing.T) {
	cases := map[string]string{
		"https://a/b#frag":         "https://a/b",
		"https://a/b":              "https://a/b",
		"https://a/b?x=1#/r#again": "https://a/b?x=1",
		"#only":                    "",
		"":                         "",
	}
	for in, want := range cases {
		got := StripFragment(in)
		if got != want {
			t.Fatalf("StripFragment(%q): expected %q, got %q", in, want, got)
		}
		if again := StripFragment(got); again != got {
			t.Fatalf("StripFragment is not idempotent for %q: %q then %q", in, got, again)
		}
	}
}

func TestSignCurrentURLPostsStrippedURL(t *testing.T) {
	srv := newSignServer(t, http.StatusOK, `{"sign":"S","timestamp":1700000000,"noncestr":"N"}`)
	page := srv.URL + "/page?id=7#section"
	c := NewClient(StaticURL(page), Options{})

	res, err := c.SignCurrentURL(context.Background())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if res.Sign != "S" || res.Timestamp != 1700000000 || res.NonceStr != "N" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(srv.bodies) != 1 || srv.bodies[0] != srv.URL+"/page?id=7" {
		t.Fatalf("expected stripped url body, got %v", srv.bodies)
	}
	if srv.paths[0] != DefaultPath {
		t.Fatalf("expected path %s, got %s", DefaultPath, srv.paths[0])
	}
}

func TestSignCurrentURLUsesAbsolutePath(t *testing.T) {
	srv := newSignServer(t, http.StatusOK, `{"sign":"S","timestamp":1,"noncestr":"N"}`)
	c := NewClient(StaticURL("https://page.example/app"), Options{Path: srv.URL + "/custom/sign"})

	if _, err := c.SignCurrentURL(context.Background()); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if srv.paths[0] != "/custom/sign" || srv.bodies[0] != "https://page.example/app" {
		t.Fatalf("unexpected request: path=%v body=%v", srv.paths, srv.bodies)
	}
}

func TestSignCurrentURLWithoutURL(t *testing.T) {
	c := NewClient(StaticURL(""), Options{})
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrURLUnavailable) {
		t.Fatalf("expected ErrURLUnavailable, got %v", err)
	}
	c = NewClient(nil, Options{})
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrURLUnavailable) {
		t.Fatalf("expected ErrURLUnavailable for nil source, got %v", err)
	}
}

func TestSignCurrentURLDecodeErrors(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"sign":"S","timestamp":1}`,
		`{"sign":"S","timestamp":-1,"noncestr":"N"}`,
		`{"sign":"S","timestamp":"1","noncestr":"N"}`,
	} {
		srv := newSignServer(t, http.StatusOK, body)
		c := NewClient(StaticURL(srv.URL+"/p"), Options{})
		if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrDecode) {
			t.Fatalf("body %q: expected ErrDecode, got %v", body, err)
		}
	}
}

func TestSignCurrentURLNetworkErrors(t *testing.T) {
	srv := newSignServer(t, http.StatusInternalServerError, `oops`)
	c := NewClient(StaticURL(srv.URL+"/p"), Options{})
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for 500, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	c = NewClient(StaticURL(closed.URL+"/p"), Options{})
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for closed server, got %v", err)
	}

	c = NewClient(StaticURL("relative/page"), Options{})
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for relative page url, got %v", err)
	}
}

func TestSignCurrentURLThrottledPerPage(t *testing.T) {
	srv := newSignServer(t, http.StatusOK, `{"sign":"S","timestamp":1,"noncestr":"N"}`)
	now := time.Unix(1700000000, 0)
	c := NewClient(StaticURL(srv.URL+"/p#a"), Options{
		Limiter: ratelimiter.NewPageLimiter(ratelimiter.Config{RPS: 1, Burst: 1}),
		Now:     func() time.Time { return now },
	})

	if _, err := c.SignCurrentURL(context.Background()); err != nil {
		t.Fatalf("first sign failed: %v", err)
	}
	if _, err := c.SignCurrentURL(context.Background()); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if len(srv.bodies) != 1 {
		t.Fatalf("throttled request must not reach the server, got %d requests", len(srv.bodies))
	}
}
