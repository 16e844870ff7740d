package oauth

import (
	"strings"
	"time"
)

const (
	// DefaultTokenTTL applies when the token response omits expires_in.
	DefaultTokenTTL = 600 * time.Second
	// ExpirySkew renews tokens slightly before their actual expiry so a
	// token handed to a southbound call does not expire mid-flight.
	ExpirySkew = 30 * time.Second
	// RefreshTokenTTL bounds how long an expired token stays refreshable.
	RefreshTokenTTL = 3600 * time.Second
)

// AccessToken is one cached OAuth token. The JSON fields mirror the token
// endpoint response; AddedAt and TargetAudience are filled in by the
// service when the response is cached.
type AccessToken struct {
	AccessToken    string    `json:"access_token"`
	TokenType      string    `json:"token_type"`
	Scope          string    `json:"scope"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	ExpiresIn      int       `json:"expires_in,omitempty"`
	AddedAt        time.Time `json:"-"`
	TargetAudience string    `json:"-"`
}

// Matches reports whether the token satisfies a request: every requested
// scope (whitespace-separated) must be present in the token's scope set
// and the audiences must be equal.
func (t AccessToken) Matches(scope, targetAudience string) bool {
	granted := make(map[string]bool)
	for _, s := range strings.Fields(t.Scope) {
		granted[s] = true
	}
	for _, s := range strings.Fields(scope) {
		if !granted[s] {
			return false
		}
	}
	return t.TargetAudience == targetAudience
}

// ExpiresAt is the moment the token stops being usable, skew included.
func (t AccessToken) ExpiresAt() time.Time {
	ttl := DefaultTokenTTL
	if t.ExpiresIn > 0 {
		ttl = time.Duration(t.ExpiresIn) * time.Second
	}
	return t.AddedAt.Add(ttl - ExpirySkew)
}

func (t AccessToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// CanRefresh reports whether an expired token can still be traded in via
// the refresh grant.
func (t AccessToken) CanRefresh(now time.Time) bool {
	if t.RefreshToken == "" {
		return false
	}
	return now.Before(t.AddedAt.Add(RefreshTokenTTL - ExpirySkew))
}
