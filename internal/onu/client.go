// Package onu talks to the G55-series ONU web management interface.
//
// A Client owns the single HTTP session (cookie jar plus pooled
// connections) used both to fetch telemetry pages and to log in. Log in
// with Authenticate whenever a fetch reports the session has expired;
// the cookies it collects are reused by every later fetch.
package onu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling for a single LAN host
const (
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// Page is one of the fixed router pages polled each cycle.
type Page struct {
	Op    string // label used in diagnostics
	Query string

	// CheckSession reports a logout redirect as ErrNotAuthorized. Pages
	// without it return whatever body the router served.
	CheckSession bool
}

var (
	StatusPage = Page{Op: "Status Page", Query: "pid=1002&nextpage=pon_status_link_info_t.gch", CheckSession: true}
	AlarmsPage = Page{Op: "Alerts Page", Query: "pid=1002&nextpage=epon_status_alarm_t.gch"}
)

var logoutRe = regexp.MustCompile(`logout_redirect\(\);`)

// Credentials for the router's login form.
type Credentials struct {
	Username string
	Password string
}

// Client is the shared router session. Requests are serialized so that
// a login never runs concurrently with a fetch.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a session against the router at host (an IP or
// host[:port]). timeout bounds each individual request.
func NewClient(host string, creds Credentials, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	base := host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		creds:   creds,
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}, nil
}

// PageURL is the absolute URL of p on this router.
func (c *Client) PageURL(p Page) string {
	return c.baseURL + "/getpage.gch?" + p.Query
}

// Token is the login token used by the last successful Authenticate.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Fetch GETs page over the session and returns its body. It does not
// retry; a *StatusError or ErrNotAuthorized tells the caller whether to
// log in again.
func (c *Client) Fetch(ctx context.Context, page Page) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	url := c.PageURL(page)
	code, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &StatusError{Op: page.Op, URL: url, Code: code, Err: err}
	}
	if code != http.StatusOK {
		return "", &StatusError{Op: page.Op, URL: url, Code: code}
	}
	if page.CheckSession && logoutRe.MatchString(body) {
		return "", fmt.Errorf("%s: %w", page.Op, ErrNotAuthorized)
	}

	log.Debug().Str("page", page.Op).Int("bytes", len(body)).Msg("page fetched")
	return body, nil
}

// Close releases idle connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.http == nil {
		return
	}
	c.http.CloseIdleConnections()
}

// do performs one request and reads at most maxResponseBodySize bytes.
// code is 0 when no complete response was received.
func (c *Client) do(ctx context.Context, method, url string, form io.Reader) (code int, body string, err error) {
	req, err := http.NewRequestWithContext(ctx, method, url, form)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return 0, "", fmt.Errorf("read response body (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, string(data), nil
}
