package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
)

// serviceName identifies this service in the PRS organization registry and
// doubles as its key scope.
const serviceName = "nationale-verwijsindex-registratie-service"

// Bootstrap enrolls this service at the pseudonym service: one organization
// record and one client certificate registration. The PRS answers 409 for
// an organization or certificate it already knows, so enrollment can run on
// every boot.
type Bootstrap struct {
	http      *httpclient.Client
	uraNumber identity.UraNumber
	mock      bool
	logger    zerolog.Logger
}

func NewBootstrap(cfg config.PseudonymAPI, uraNumber identity.UraNumber, logger zerolog.Logger) (*Bootstrap, error) {
	httpClient, err := httpclient.New(cfg.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("pseudonym bootstrap: %w", err)
	}
	return &Bootstrap{
		http:      httpClient,
		uraNumber: uraNumber,
		mock:      cfg.Mock,
		logger:    logger,
	}, nil
}

// EnsureRegistered registers the organization and certificate, tolerating
// already-registered conflicts. Mock deployments skip enrollment entirely.
func (b *Bootstrap) EnsureRegistered(ctx context.Context) error {
	if b.mock {
		b.logger.Info().Msg("mock mode enabled, skipping registration at prs")
		return nil
	}

	b.logger.Info().Str("ura_number", b.uraNumber.String()).Msg("registering at prs")
	if err := b.registerOrganization(ctx); err != nil {
		return fmt.Errorf("%w: register organization: %v", ErrPseudonym, err)
	}
	if err := b.registerCertificate(ctx); err != nil {
		return fmt.Errorf("%w: register certificate: %v", ErrPseudonym, err)
	}
	return nil
}

func (b *Bootstrap) registerOrganization(ctx context.Context) error {
	_, err := b.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "orgs",
		JSON: map[string]string{
			"ura":           b.uraNumber.String(),
			"name":          serviceName,
			"max_key_usage": "rp",
		},
	})
	if isConflict(err) {
		b.logger.Info().Msg("organization already registered at prs")
		return nil
	}
	return err
}

func (b *Bootstrap) registerCertificate(ctx context.Context) error {
	_, err := b.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Route:  "register/certificate",
		JSON: map[string][]string{
			"scope": {serviceName},
		},
	})
	if isConflict(err) {
		b.logger.Info().Msg("certificate already registered at prs")
		return nil
	}
	return err
}

func isConflict(err error) bool {
	var statusErr *httpclient.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}
