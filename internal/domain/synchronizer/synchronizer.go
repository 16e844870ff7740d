// Package synchronizer walks the local clinical-data repository per data
// domain and registers every updated citizen number at the national
// referral index, advancing a per-domain high-water mark as it goes.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/nvi"
)

// ErrUnhealthyUpstream marks a failed pre-sync healthcheck. Nothing has
// been registered or advanced when it is returned.
var ErrUnhealthyUpstream = errors.New("unhealthy upstream")

// RegistrationService is the slice of the referral pipeline the
// synchronizer drives.
type RegistrationService interface {
	Register(ctx context.Context, bsn identity.BSN, domain identity.DataDomain) (*nvi.ReferralEntity, error)
	IndexHealthy(ctx context.Context) bool
	PseudonymServiceHealthy(ctx context.Context) bool
}

// MetadataSource yields the BSNs whose resources changed since a given
// instant.
type MetadataSource interface {
	GetUpdateScheme(ctx context.Context, domain identity.DataDomain, since *time.Time) ([]string, *time.Time, error)
	ServerHealthy(ctx context.Context) bool
}

// BsnUpdateScheme pairs one citizen number with the referral created for it.
type BsnUpdateScheme struct {
	Bsn      string             `json:"bsn"`
	Referral nvi.ReferralEntity `json:"referral"`
}

// UpdateScheme reports one sync pass over a domain: the referrals created
// and the domain's state afterwards.
type UpdateScheme struct {
	UpdatedData []BsnUpdateScheme `json:"updated_data"`
	DomainEntry DomainEntry       `json:"domain_entry"`
}

type Service struct {
	referrals RegistrationService
	metadata  MetadataSource
	domains   *DomainsMap
	logger    zerolog.Logger
}

func NewService(referrals RegistrationService, metadata MetadataSource, domains *DomainsMap, logger zerolog.Logger) *Service {
	return &Service{
		referrals: referrals,
		metadata:  metadata,
		domains:   domains,
		logger:    logger,
	}
}

// AllowedDomains returns the configured domains in configuration order.
func (s *Service) AllowedDomains() []identity.DataDomain {
	return s.domains.Domains()
}

// SynchronizeAllDomains runs SynchronizeDomain for every configured domain
// sequentially and merges the results. The first failing domain aborts the
// run.
func (s *Service) SynchronizeAllDomains(ctx context.Context) (map[string][]UpdateScheme, error) {
	results := map[string][]UpdateScheme{}
	for _, domain := range s.domains.Domains() {
		partial, err := s.SynchronizeDomain(ctx, domain)
		if err != nil {
			return nil, err
		}
		for key, schemes := range partial {
			results[key] = append(results[key], schemes...)
		}
	}
	return results, nil
}

// SynchronizeDomain syncs one domain and returns its update schemes keyed
// by domain name.
func (s *Service) SynchronizeDomain(ctx context.Context, domain identity.DataDomain) (map[string][]UpdateScheme, error) {
	s.logger.Info().Str("data_domain", domain.String()).Msg("synchronizing domain")

	scheme, err := s.synchronize(ctx, domain)
	if err != nil {
		return nil, err
	}
	return map[string][]UpdateScheme{domain.String(): {scheme}}, nil
}

func (s *Service) synchronize(ctx context.Context, domain identity.DataDomain) (UpdateScheme, error) {
	if err := s.checkUpstreams(ctx); err != nil {
		return UpdateScheme{}, err
	}

	entry, err := s.domains.Entry(domain)
	if err != nil {
		return UpdateScheme{}, err
	}

	bsns, latest, err := s.metadata.GetUpdateScheme(ctx, domain, entry.LastResourceUpdate)
	if err != nil {
		return UpdateScheme{}, err
	}

	updated := make([]BsnUpdateScheme, 0, len(bsns))
	for _, raw := range bsns {
		bsn, err := identity.ParseBSN(raw)
		if err != nil {
			return UpdateScheme{}, fmt.Errorf("metadata source returned an invalid bsn: %w", err)
		}

		referral, err := s.referrals.Register(ctx, bsn, domain)
		if err != nil {
			return UpdateScheme{}, err
		}
		if referral == nil {
			continue
		}

		// The mark only advances once a new referral exists; an all-duplicate
		// pass leaves it untouched and the window is re-scanned next tick.
		if latest != nil && !sameInstant(entry.LastResourceUpdate, latest) {
			s.logger.Info().
				Str("data_domain", domain.String()).
				Time("last_resource_update", *latest).
				Msg("advancing high-water mark")
			if err := s.domains.Advance(domain, *latest); err != nil {
				return UpdateScheme{}, err
			}
			entry.LastResourceUpdate = latest
		}

		updated = append(updated, BsnUpdateScheme{Bsn: raw, Referral: *referral})
	}

	s.logger.Info().
		Str("data_domain", domain.String()).
		Int("registered", len(updated)).
		Msg("domain synchronized")
	return UpdateScheme{UpdatedData: updated, DomainEntry: entry}, nil
}

// checkUpstreams verifies every southbound dependency before a sync pass
// touches any state.
func (s *Service) checkUpstreams(ctx context.Context) error {
	s.logger.Info().Msg("checking health of upstream apis")

	checks := []struct {
		name    string
		healthy func(context.Context) bool
	}{
		{"nvi_api", s.referrals.IndexHealthy},
		{"pseudonym_api", s.referrals.PseudonymServiceHealthy},
		{"metadata_api", s.metadata.ServerHealthy},
	}
	for _, check := range checks {
		if !check.healthy(ctx) {
			s.logger.Warn().Str("api", check.name).Msg("health check failed")
			return fmt.Errorf("%w: api %s health check failed", ErrUnhealthyUpstream, check.name)
		}
	}
	return nil
}

// ClearCache resets the high-water mark for one domain, or for all of them
// when domain is nil, and returns the resulting domains map.
func (s *Service) ClearCache(domain *identity.DataDomain) (map[string]DomainEntry, error) {
	if domain != nil {
		return s.domains.ClearEntry(*domain)
	}
	return s.domains.ClearAll(), nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
