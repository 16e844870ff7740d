package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
)

// ErrTokenFetch marks any failure to obtain a token. Callers treat it as a
// hard failure of the operation that needed the token.
var ErrTokenFetch = errors.New("oauth token fetch failed")

// TokenSource hands out bearer tokens for southbound calls.
type TokenSource interface {
	FetchToken(ctx context.Context, scope, targetAudience string) (AccessToken, error)
}

// Service caches OAuth tokens obtained through the client-credentials and
// refresh grants. One instance is shared by every southbound client; the
// mutex is held across the whole fetch so concurrent callers for the same
// scope and audience never race into duplicate grants.
type Service struct {
	http       *httpclient.Client
	assertions *AssertionBuilder
	mock       bool
	logger     zerolog.Logger

	mu     sync.Mutex
	tokens []AccessToken
	now    func() time.Time
}

// NewService creates the token cache. The assertion builder is nil when
// the deployment's mTLS certificate is a UZI server certificate, which
// authenticates the client on its own.
func NewService(client *httpclient.Client, assertions *AssertionBuilder, mock bool, logger zerolog.Logger) *Service {
	return &Service{
		http:       client,
		assertions: assertions,
		mock:       mock,
		logger:     logger,
		now:        time.Now,
	}
}

// FetchToken returns a token whose scope set covers every requested scope
// and whose audience equals targetAudience. Cached tokens are reused while
// fresh, refreshed while refreshable, and re-requested otherwise.
func (s *Service) FetchToken(ctx context.Context, scope, targetAudience string) (AccessToken, error) {
	if s.mock {
		return AccessToken{
			AccessToken: "mock-access-token",
			TokenType:   "Bearer",
			Scope:       scope,
			AddedAt:     s.now(),
		}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if token, ok := s.freshTokenLocked(scope, targetAudience, now); ok {
		s.logger.Debug().Str("scope", scope).Str("target_audience", targetAudience).Msg("reusing cached oauth token")
		return token, nil
	}

	if stale, ok := s.refreshableTokenLocked(scope, targetAudience, now); ok {
		s.logger.Info().Str("scope", stale.Scope).Str("target_audience", targetAudience).Msg("refreshing oauth token")
		return s.refreshLocked(ctx, stale, targetAudience)
	}

	s.logger.Info().Str("scope", scope).Str("target_audience", targetAudience).Msg("requesting new oauth token")
	return s.grantLocked(ctx, url.Values{
		"grant_type":      {"client_credentials"},
		"scope":           {scope},
		"target_audience": {targetAudience},
	}, scope, targetAudience)
}

// pruneLocked drops tokens that are expired and beyond refreshing.
func (s *Service) pruneLocked(now time.Time) {
	kept := s.tokens[:0]
	for _, token := range s.tokens {
		if !token.IsExpired(now) || token.CanRefresh(now) {
			kept = append(kept, token)
		}
	}
	s.tokens = kept
}

// freshTokenLocked scans in reverse insertion order so the newest matching
// token wins.
func (s *Service) freshTokenLocked(scope, targetAudience string, now time.Time) (AccessToken, bool) {
	for i := len(s.tokens) - 1; i >= 0; i-- {
		token := s.tokens[i]
		if token.Matches(scope, targetAudience) && !token.IsExpired(now) {
			return token, true
		}
	}
	return AccessToken{}, false
}

func (s *Service) refreshableTokenLocked(scope, targetAudience string, now time.Time) (AccessToken, bool) {
	for i := len(s.tokens) - 1; i >= 0; i-- {
		token := s.tokens[i]
		if token.Matches(scope, targetAudience) && token.IsExpired(now) && token.CanRefresh(now) {
			return token, true
		}
	}
	return AccessToken{}, false
}

// refreshLocked trades an expired token for a new one and replaces the old
// cache entry.
func (s *Service) refreshLocked(ctx context.Context, stale AccessToken, targetAudience string) (AccessToken, error) {
	token, err := s.grantLocked(ctx, url.Values{
		"grant_type":      {"refresh_token"},
		"refresh_token":   {stale.RefreshToken},
		"target_audience": {targetAudience},
	}, stale.Scope, targetAudience)
	if err != nil {
		return AccessToken{}, err
	}
	s.removeLocked(stale)
	return token, nil
}

func (s *Service) removeLocked(old AccessToken) {
	for i, token := range s.tokens {
		if token.AccessToken == old.AccessToken && token.AddedAt.Equal(old.AddedAt) {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return
		}
	}
}

// grantLocked performs one token request and appends the response to the
// cache. The client-assertion fields are added whenever a builder is
// configured.
func (s *Service) grantLocked(ctx context.Context, form url.Values, scope, targetAudience string) (AccessToken, error) {
	if s.assertions != nil {
		assertion, err := s.assertions.Build(scope, targetAudience)
		if err != nil {
			return AccessToken{}, fmt.Errorf("%w: %v", ErrTokenFetch, err)
		}
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", assertion)
	}

	var token AccessToken
	err := s.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Form:   form,
	}, &token)
	if err != nil {
		s.logger.Error().Err(err).Str("scope", scope).Msg("oauth token request failed")
		return AccessToken{}, fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}

	token.AddedAt = s.now()
	token.TargetAudience = targetAudience
	s.tokens = append(s.tokens, token)
	return token, nil
}
