// Package authz decides permission requests from other care organizations.
// A request names an encrypted local record id; the pipeline reveals the
// id, finds the patient's BSN, exchanges it for a reversible pseudonym and
// puts the consent question to the online consent facility (OTV).
package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/uzi"
)

// orgCategory is the UZI organization category the consent facility
// expects for care providers.
const orgCategory = "V6"

// OtvClient asks the consent facility whether a client organization may
// access the record behind a reversible pseudonym.
type OtvClient interface {
	CheckAuthorization(ctx context.Context, pseudonym string, clientURA identity.UraNumber) (bool, error)
}

// NewOtvClient selects the consent client from configuration. Mock mode
// grants every request and needs no endpoint or URA number.
func NewOtvClient(cfg config.OtvAPI, logger zerolog.Logger) (OtvClient, error) {
	if cfg.Mock {
		return NewMockOtv(logger), nil
	}
	otvURA, err := uzi.ResolveOtvURA(cfg)
	if err != nil {
		return nil, err
	}
	return NewStubOtv(cfg, otvURA, logger)
}

type permissionQuery struct {
	Resource permissionResource `json:"resource"`
	Subject  permissionSubject  `json:"subject"`
}

type permissionResource struct {
	Pseudonym   string `json:"pseudonym"`
	OrgUra      string `json:"org_ura"`
	OrgCategory string `json:"org_category"`
}

type permissionSubject struct {
	OrgUra string `json:"org_ura"`
}

// StubOtv talks to the OTV stub over mTLS. The stub owns the consent
// registry and answers with a bare JSON boolean.
type StubOtv struct {
	http   *httpclient.Client
	otvURA identity.UraNumber
	logger zerolog.Logger
}

func NewStubOtv(cfg config.OtvAPI, otvURA identity.UraNumber, logger zerolog.Logger) (*StubOtv, error) {
	httpClient, err := httpclient.New(cfg.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("otv client: %w", err)
	}
	return &StubOtv{http: httpClient, otvURA: otvURA, logger: logger}, nil
}

func (c *StubOtv) CheckAuthorization(ctx context.Context, pseudonym string, clientURA identity.UraNumber) (bool, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "permission",
		JSON: permissionQuery{
			Resource: permissionResource{
				Pseudonym:   pseudonym,
				OrgUra:      c.otvURA.String(),
				OrgCategory: orgCategory,
			},
			Subject: permissionSubject{OrgUra: clientURA.String()},
		},
	})
	if err != nil {
		return false, fmt.Errorf("otv permission check: %w", err)
	}

	var allowed bool
	if err := json.Unmarshal(body, &allowed); err != nil {
		return false, fmt.Errorf("otv response is not a boolean: %q", body)
	}
	return allowed, nil
}

// MockOtv grants every permission request. Development only.
type MockOtv struct {
	logger zerolog.Logger
}

func NewMockOtv(logger zerolog.Logger) *MockOtv {
	return &MockOtv{logger: logger}
}

func (m *MockOtv) CheckAuthorization(_ context.Context, pseudonym string, clientURA identity.UraNumber) (bool, error) {
	m.logger.Info().
		Str("pseudonym", pseudonym).
		Str("client_ura", clientURA.String()).
		Msg("mock otv grants authorization")
	return true, nil
}
