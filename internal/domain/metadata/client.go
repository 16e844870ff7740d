// Package metadata reads the local clinical-data repository. The repository
// speaks plain FHIR over mTLS; unlike the index and pseudonym services it
// takes no bearer token.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
)

// ErrMetadata marks failures talking to the metadata repository.
var ErrMetadata = errors.New("metadata api error")

type Client struct {
	http   *httpclient.Client
	logger zerolog.Logger
}

func NewClient(cfg config.Endpoint, logger zerolog.Logger) (*Client, error) {
	httpClient, err := httpclient.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("metadata client: %w", err)
	}
	return &Client{http: httpClient, logger: logger}, nil
}

// GetUpdateScheme searches the repository for resources of the domain's
// type, including their subject patients, and returns the BSNs of those
// patients in bundle order together with the latest meta.lastUpdated seen
// across all entries. A non-nil since narrows the search to resources
// updated at or after that instant. BSNs are not deduplicated; a patient
// referenced by several resources appears once per identifier entry.
func (c *Client) GetUpdateScheme(ctx context.Context, domain identity.DataDomain, since *time.Time) ([]string, *time.Time, error) {
	query := url.Values{
		"_include": {domain.String() + ":subject"},
	}
	if since != nil {
		query.Set("_lastUpdated", "ge"+since.Format(time.RFC3339Nano))
	}

	var bundle fhir.Bundle
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Route:  domain.String() + "/_search",
		Query:  query,
	}, &bundle)
	if err != nil {
		c.logger.Error().Err(err).Str("data_domain", domain.String()).Msg("metadata search failed")
		return nil, nil, fmt.Errorf("%w: search %s: %v", ErrMetadata, domain, err)
	}

	var latest *time.Time
	if ts, ok := bundle.LatestTimestamp(); ok {
		latest = &ts
	}

	var bsns []string
	for _, patient := range bundle.Patients() {
		bsns = append(bsns, patient.BSNIdentifiers()...)
	}
	return bsns, latest, nil
}

// GetPatient reads a single Patient resource by id.
func (c *Client) GetPatient(ctx context.Context, id string) (*fhir.Patient, error) {
	var patient fhir.Patient
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Route:  "Patient/" + id,
	}, &patient)
	if err != nil {
		c.logger.Error().Err(err).Str("patient_id", id).Msg("patient read failed")
		return nil, fmt.Errorf("%w: read patient %s: %v", ErrMetadata, id, err)
	}
	return &patient, nil
}

// ServerHealthy reports whether the repository answers its capability
// statement route.
func (c *Client) ServerHealthy(ctx context.Context) bool {
	return c.http.Healthy(ctx, "metadata")
}
