// Package registration drives the referral pipeline: pseudonymize a
// citizen number for the index, check whether the index already holds the
// record, and register it when it does not.
package registration

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/nvi"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/oprf"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/pseudonym"
)

// indexScope is the recipient scope referrals are pseudonymized for.
const indexScope = "nationale-verwijsindex"

// ReferralIndex is the slice of the NVI client the pipeline uses.
type ReferralIndex interface {
	IsReferralRegistered(ctx context.Context, query nvi.ReferralQuery) (bool, error)
	Submit(ctx context.Context, req nvi.CreateReferralRequest) (nvi.ReferralEntity, error)
	ServerHealthy(ctx context.Context) bool
}

// PseudonymService is the slice of the pseudonym client the pipeline uses.
type PseudonymService interface {
	Submit(ctx context.Context, req pseudonym.EvalRequest) (pseudonym.JWE, error)
	Register(ctx context.Context, bsn identity.BSN) (string, error)
	ServerHealthy(ctx context.Context) bool
}

type Service struct {
	index            ReferralIndex
	pseudonyms       PseudonymService
	uraNumber        identity.UraNumber
	nviUraNumber     identity.UraNumber
	organizationType string
	useLegacy        bool
	logger           zerolog.Logger
}

func NewService(
	index ReferralIndex,
	pseudonyms PseudonymService,
	uraNumber identity.UraNumber,
	nviUraNumber identity.UraNumber,
	organizationType string,
	useLegacy bool,
	logger zerolog.Logger,
) *Service {
	return &Service{
		index:            index,
		pseudonyms:       pseudonyms,
		uraNumber:        uraNumber,
		nviUraNumber:     nviUraNumber,
		organizationType: organizationType,
		useLegacy:        useLegacy,
		logger:           logger,
	}
}

// Register pseudonymizes the citizen number for the index and registers a
// referral for the domain. A nil entity with a nil error means the index
// already held the record.
func (s *Service) Register(ctx context.Context, bsn identity.BSN, domain identity.DataDomain) (*nvi.ReferralEntity, error) {
	jwe, blindFactor, err := s.pseudonymize(ctx, bsn)
	if err != nil {
		return nil, err
	}

	query, err := nvi.NewReferralQuery(jwe, blindFactor, domain, s.uraNumber)
	if err != nil {
		return nil, err
	}
	registered, err := s.index.IsReferralRegistered(ctx, query)
	if err != nil {
		return nil, err
	}
	if registered {
		s.logger.Info().
			Str("data_domain", domain.String()).
			Msg("referral already registered")
		return nil, nil
	}

	entity, err := s.index.Submit(ctx, nvi.CreateReferralRequest{
		OprfJWE:          jwe,
		BlindFactor:      blindFactor,
		DataDomain:       domain,
		UraNumber:        s.uraNumber,
		OrganizationType: s.organizationType,
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// pseudonymize returns the subject value for the index together with the
// client-side key material that later unlocks the lookup. The default path
// blinds the identifier locally and has the pseudonym service evaluate it;
// the legacy path exchanges a BSN hash server-side, so the hash itself is
// the key material.
func (s *Service) pseudonymize(ctx context.Context, bsn identity.BSN) (pseudonym.JWE, string, error) {
	if s.useLegacy {
		ps, err := s.pseudonyms.Register(ctx, bsn)
		if err != nil {
			return "", "", err
		}
		return pseudonym.JWE(ps), bsn.Hash(), nil
	}

	recipientOrganization := "ura:" + s.nviUraNumber.String()
	blinded, err := oprf.Blind(identity.NewBSNIdentifier(bsn), recipientOrganization, indexScope)
	if err != nil {
		return "", "", err
	}

	jwe, err := s.pseudonyms.Submit(ctx, pseudonym.EvalRequest{
		EncryptedPersonalID:   blinded.BlindedValue,
		RecipientOrganization: recipientOrganization,
		RecipientScope:        indexScope,
	})
	if err != nil {
		return "", "", err
	}
	return jwe, blinded.BlindFactor, nil
}

// IndexHealthy reports the referral index's health endpoint.
func (s *Service) IndexHealthy(ctx context.Context) bool {
	return s.index.ServerHealthy(ctx)
}

// PseudonymServiceHealthy reports the pseudonym service's health endpoint.
func (s *Service) PseudonymServiceHealthy(ctx context.Context) bool {
	return s.pseudonyms.ServerHealthy(ctx)
}
