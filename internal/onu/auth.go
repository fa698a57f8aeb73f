package onu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	loginTokenRe = regexp.MustCompile(`getObj\("Frm_Logintoken"\)\.value = "(.*?)";`)
	mainFrameRe  = regexp.MustCompile(`name="mainFrame" id="mainFrame"`)
)

// Authenticate logs in to the router:
//
//  1. GET / and read Frm_Logintoken from the login form.
//  2. POST the credentials and token back to /.
//  3. Require the response to be the main frame page.
//
// It makes a single attempt. On success the session cookies are kept in
// the client's jar and the token is returned. A missing token aborts
// before anything is POSTed.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loginURL := c.baseURL + "/"

	code, body, err := c.do(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", &StatusError{Op: "Authorization", URL: loginURL, Code: code, Err: err}
	}
	if code != http.StatusOK {
		return "", &StatusError{Op: "Authorization", URL: loginURL, Code: code}
	}

	m := loginTokenRe.FindStringSubmatch(body)
	if m == nil {
		return "", ErrTokenNotFound
	}
	token := m[1]

	form := url.Values{
		"frashnum":       {""},
		"action":         {"login"},
		"Frm_Logintoken": {token},
		"Username":       {c.creds.Username},
		"Password":       {c.creds.Password},
	}

	code, body, err = c.do(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &StatusError{Op: "Authorization", URL: loginURL, Code: code, Err: err}
	}
	if code != http.StatusOK {
		return "", &StatusError{Op: "Authorization", URL: loginURL, Code: code}
	}
	if !mainFrameRe.MatchString(body) {
		return "", fmt.Errorf("user %q: %w", c.creds.Username, ErrLoginUnsuccessful)
	}

	c.token = token
	log.Info().Str("user", c.creds.Username).Msg("logged in to onu")
	return token, nil
}
