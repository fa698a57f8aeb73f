package onu

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized means the router answered 200 with its logout
	// redirect instead of the requested page.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrTokenNotFound means the login form carried no Frm_Logintoken.
	ErrTokenNotFound = errors.New("login token not found")
	// ErrLoginUnsuccessful means the login POST did not land on the main frame.
	ErrLoginUnsuccessful = errors.New("login unsuccessful")
)

// StatusError reports a request that produced no usable response:
// either a non-200 status or, with Code 0, no response at all.
type StatusError struct {
	Op   string // "Status Page", "Alerts Page" or "Authorization"
	URL  string
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s returned status %d", e.Op, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Diagnostic renders err as the short human-readable text published on
// the parser status topic.
func Diagnostic(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		if se.Code == 0 {
			return se.Op + " Unreachable"
		}
		return fmt.Sprintf("%s Error %d", se.Op, se.Code)
	case errors.Is(err, ErrNotAuthorized):
		return "Not authorized"
	case errors.Is(err, ErrTokenNotFound):
		return "Login token not found"
	case errors.Is(err, ErrLoginUnsuccessful):
		return "Login unsuccessful"
	default:
		return err.Error()
	}
}
