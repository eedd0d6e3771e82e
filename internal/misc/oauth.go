// Package misc holds small helpers shared by the authorization commands: OAuth state
// generation, parsing of pasted callback input, and the credential save notice.
package misc

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyInput is returned when pasted callback input is blank.
var ErrEmptyInput = errors.New("empty callback input")

// GenerateRandomState returns 32 hex characters for the OAuth state parameter.
func GenerateRandomState() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// OAuthCallback is what an identity provider's redirect carried.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseOAuthCallback reads callback parameters from a full redirect URL, a URL without
// scheme, a bare query string, or bare key=value pairs. Parameters in the fragment fill
// in whatever the query lacks. Blank input yields (nil, nil).
func ParseOAuthCallback(input string) (*OAuthCallback, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, nil
	}
	u, err := callbackURL(raw)
	if err != nil {
		return nil, err
	}

	sources := []url.Values{u.Query()}
	if u.Fragment != "" {
		if frag, errFrag := url.ParseQuery(u.Fragment); errFrag == nil {
			sources = append(sources, frag)
		}
	}
	param := func(key string) string {
		for _, src := range sources {
			if v := strings.TrimSpace(src.Get(key)); v != "" {
				return v
			}
		}
		return ""
	}

	cb := &OAuthCallback{
		Code:             param("code"),
		State:            param("state"),
		Error:            param("error"),
		ErrorDescription: param("error_description"),
	}
	if cb.Error == "" {
		cb.Error, cb.ErrorDescription = cb.ErrorDescription, ""
	}
	if cb.Code == "" && cb.Error == "" {
		return nil, errors.New("callback URL missing code")
	}
	return cb, nil
}

func callbackURL(raw string) (*url.URL, error) {
	switch {
	case strings.Contains(raw, "://"):
	case strings.HasPrefix(raw, "?"):
		raw = "http://localhost" + raw
	case strings.ContainsAny(raw, "/?#:"):
		raw = "http://" + raw
	case strings.Contains(raw, "="):
		raw = "http://localhost/?" + raw
	default:
		return nil, errors.New("invalid callback URL")
	}
	return url.Parse(raw)
}

// ParseManualCode accepts what a user pastes at the manual prompt: the bare code shown
// on the callback page, or the whole redirect URL. A URL whose state differs from a
// non-empty expectedState is rejected.
func ParseManualCode(input, expectedState string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", ErrEmptyInput
	}
	if !strings.ContainsAny(raw, "=?/#:") {
		return raw, nil
	}
	cb, err := ParseOAuthCallback(raw)
	if err != nil {
		return "", err
	}
	switch {
	case cb.Error != "" && cb.ErrorDescription != "":
		return "", fmt.Errorf("authorization denied: %s: %s", cb.Error, cb.ErrorDescription)
	case cb.Error != "":
		return "", fmt.Errorf("authorization denied: %s", cb.Error)
	case expectedState != "" && cb.State != "" && cb.State != expectedState:
		return "", errors.New("state mismatch in pasted callback")
	}
	return cb.Code, nil
}
