// Package pseudonym talks to the pseudonym service (PRS). The service
// evaluates blinded OPRF inputs into recipient-bound pseudonym JWEs and,
// for the consent flow, exchanges a BSN for a reversible pseudonym.
package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/oauth"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
)

// ErrPseudonym marks every failure of the pseudonym service round trips.
var ErrPseudonym = errors.New("pseudonym service error")

// scopeRead is required by the OPRF evaluation endpoint.
const scopeRead = "prs:read"

// reversibleScope is the recipient scope of reversible pseudonyms handed
// to the consent facility.
const reversibleScope = "online-toestemmingsvoorziening-stub"

// JWE is an evaluated OPRF pseudonym. Opaque to this service and always
// non-empty; it travels verbatim to the NVI as the subject value.
type JWE string

// EvalRequest carries one blinded input to the evaluation endpoint.
type EvalRequest struct {
	EncryptedPersonalID   string `json:"encryptedPersonalId"`
	RecipientOrganization string `json:"recipientOrganization"`
	RecipientScope        string `json:"recipientScope"`
}

type Client struct {
	http       *httpclient.Client
	tokens     oauth.TokenSource
	audience   string
	providerID string
	logger     zerolog.Logger
}

func NewClient(cfg config.PseudonymAPI, providerID string, tokens oauth.TokenSource, logger zerolog.Logger) (*Client, error) {
	httpClient, err := httpclient.New(cfg.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("pseudonym client: %w", err)
	}
	return &Client{
		http:       httpClient,
		tokens:     tokens,
		audience:   cfg.Endpoint.Endpoint,
		providerID: providerID,
		logger:     logger,
	}, nil
}

// Submit has the pseudonym service evaluate a blinded input. The response
// must carry a non-empty jwe.
func (c *Client) Submit(ctx context.Context, req EvalRequest) (JWE, error) {
	token, err := c.tokens.FetchToken(ctx, scopeRead, c.audience)
	if err != nil {
		return "", err
	}

	var out struct {
		JWE string `json:"jwe"`
	}
	err = c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "oprf/eval",
		Header: bearerHeader(token),
		JSON:   req,
	}, &out)
	if err != nil {
		c.logger.Error().Err(err).Msg("oprf evaluation failed")
		return "", fmt.Errorf("%w: evaluate oprf: %v", ErrPseudonym, err)
	}
	if out.JWE == "" {
		return "", fmt.Errorf("%w: response carried no jwe", ErrPseudonym)
	}
	return JWE(out.JWE), nil
}

// RequestReversible exchanges a BSN for a reversible pseudonym scoped to
// the consent facility of the given organization. The response body is
// the pseudonym itself.
func (c *Client) RequestReversible(ctx context.Context, bsn identity.BSN, recipientURA identity.UraNumber) (string, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "exchange/pseudonym",
		JSON: map[string]string{
			"personalId":            "NL:BSN:" + bsn.String(),
			"recipientOrganization": "ura:" + recipientURA.String(),
			"recipientScope":        reversibleScope,
			"pseudonymType":         "reversible",
		},
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("reversible pseudonym exchange failed")
		return "", fmt.Errorf("%w: exchange reversible pseudonym: %v", ErrPseudonym, err)
	}

	pseudonym := strings.TrimSpace(string(body))
	if pseudonym == "" {
		return "", fmt.Errorf("%w: empty reversible pseudonym", ErrPseudonym)
	}
	return pseudonym, nil
}

// Register is the legacy BSN-hash exchange. Only deployments whose
// pseudonym service still exposes the register endpoint use it; the OPRF
// path is the default.
func (c *Client) Register(ctx context.Context, bsn identity.BSN) (string, error) {
	var out struct {
		Pseudonym string `json:"pseudonym"`
	}
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "register",
		JSON: map[string]string{
			"provider_id": c.providerID,
			"bsn_hash":    bsn.Hash(),
		},
	}, &out)
	if err != nil {
		c.logger.Error().Err(err).Msg("legacy pseudonym register failed")
		return "", fmt.Errorf("%w: register bsn hash: %v", ErrPseudonym, err)
	}
	if out.Pseudonym == "" {
		return "", fmt.Errorf("%w: response carried no pseudonym", ErrPseudonym)
	}
	return out.Pseudonym, nil
}

func (c *Client) ServerHealthy(ctx context.Context) bool {
	return c.http.Healthy(ctx, "health")
}

func bearerHeader(token oauth.AccessToken) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return h
}
