package nvi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/oauth"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
)

// Read and write paths carry different scopes.
const (
	scopeRead  = "epd:read"
	scopeWrite = "epd:write"
)

type Client struct {
	http     *httpclient.Client
	mapper   *Mapper
	tokens   oauth.TokenSource
	audience string
	logger   zerolog.Logger
}

func NewClient(cfg config.ReferralAPI, mapper *Mapper, tokens oauth.TokenSource, logger zerolog.Logger) (*Client, error) {
	httpClient, err := httpclient.New(cfg.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("nvi client: %w", err)
	}
	return &Client{
		http:     httpClient,
		mapper:   mapper,
		tokens:   tokens,
		audience: cfg.Endpoint.Endpoint,
		logger:   logger,
	}, nil
}

// IsReferralRegistered reports whether the index already holds a record
// for the query: true iff the response bundle has entries.
func (c *Client) IsReferralRegistered(ctx context.Context, query ReferralQuery) (bool, error) {
	token, err := c.tokens.FetchToken(ctx, scopeRead, c.audience)
	if err != nil {
		return false, err
	}

	var bundle fhir.Bundle
	err = c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Route:  "NVIDataReference",
		Query: url.Values{
			"pseudonym":   {string(query.OprfJWE)},
			"oprfKey":     {query.BlindFactor},
			"careContext": {query.DataDomain.String()},
			"source":      {query.UraNumber.String()},
		},
		Header: bearerHeader(token),
	}, &bundle)
	if err != nil {
		c.logger.Error().Err(err).Str("data_domain", query.DataDomain.String()).Msg("referral lookup failed")
		return false, fmt.Errorf("%w: lookup referral: %v", ErrNvi, err)
	}

	return len(bundle.Entry) > 0, nil
}

// Submit registers one data reference and returns the created entity.
func (c *Client) Submit(ctx context.Context, req CreateReferralRequest) (ReferralEntity, error) {
	token, err := c.tokens.FetchToken(ctx, scopeWrite, c.audience)
	if err != nil {
		return ReferralEntity{}, err
	}

	var doc DataReference
	err = c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "NVIDataReference",
		Header: bearerHeader(token),
		JSON:   c.mapper.ToFHIR(req),
	}, &doc)
	if err != nil {
		c.logger.Error().Err(err).Str("data_domain", req.DataDomain.String()).Msg("referral registration failed")
		return ReferralEntity{}, fmt.Errorf("%w: submit referral: %v", ErrNvi, err)
	}

	entity, err := c.mapper.FromFHIR(doc)
	if err != nil {
		return ReferralEntity{}, err
	}
	c.logger.Info().
		Str("data_domain", entity.DataDomain.String()).
		Str("ura_number", entity.UraNumber.String()).
		Msg("registered referral")
	return entity, nil
}

func (c *Client) ServerHealthy(ctx context.Context) bool {
	return c.http.Healthy(ctx, "health")
}

func bearerHeader(token oauth.AccessToken) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return h
}
