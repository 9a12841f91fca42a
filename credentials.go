package bilifetch

import (
	"strings"
	"time"
)

// Credentials is the cookie pair (plus optional account hints) that
// authorizes platform requests. A Credentials value is immutable: re-login or
// cookie import replaces it wholesale, logout discards it.
type Credentials struct {
	SessionToken string    // SESSDATA cookie
	CryptoToken  string    // bili_jct cookie (CSRF token)
	UserID       string    // DedeUserID cookie, optional
	Expiry       time.Time // optional, zero when the platform didn't say
}

func (c Credentials) IsZero() bool {
	return c.SessionToken == "" && c.CryptoToken == ""
}

// Cookie keys backing the token fields, compared case-insensitively.
const (
	CookieSessionToken = "sessdata"
	CookieCryptoToken  = "bili_jct"
	CookieUserID       = "dedeuserid"
)

// ParseCookieString extracts Credentials from a browser-copied
// "key=value; key=value" cookie string. Both the session token and crypto
// token keys must be present, otherwise ErrInvalidCookieFormat.
func ParseCookieString(raw string) (Credentials, error) {
	values := make(map[string]string)
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	creds := Credentials{
		SessionToken: values[CookieSessionToken],
		CryptoToken:  values[CookieCryptoToken],
		UserID:       values[CookieUserID],
	}
	if creds.SessionToken == "" || creds.CryptoToken == "" {
		return Credentials{}, ErrInvalidCookieFormat
	}
	return creds, nil
}
