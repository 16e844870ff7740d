package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/sealbox"
)

// ErrPermissionCheck marks failures of the authorization pipeline before
// the consent facility is reached. Callers report these as server faults,
// never as a denial.
var ErrPermissionCheck = errors.New("permission check error")

// PermissionRequest asks whether a client organization may access one
// local medical record.
type PermissionRequest struct {
	EncryptedLMRID  string             `json:"encrypted_lmr_id"`
	ClientUraNumber identity.UraNumber `json:"client_ura_number"`
}

// PatientSource reads a patient resource from the local repository.
type PatientSource interface {
	GetPatient(ctx context.Context, id string) (*fhir.Patient, error)
}

// ReversiblePseudonymizer exchanges a BSN for a reversible pseudonym bound
// to the requesting organization.
type ReversiblePseudonymizer interface {
	RequestReversible(ctx context.Context, bsn identity.BSN, recipientURA identity.UraNumber) (string, error)
}

// Service decides permission requests.
type Service struct {
	crypter    *sealbox.Sealbox
	patients   PatientSource
	pseudonyms ReversiblePseudonymizer
	otv        OtvClient
	logger     zerolog.Logger
}

// NewService wires the permission pipeline. A nil crypter is allowed;
// every request then fails the permission check.
func NewService(crypter *sealbox.Sealbox, patients PatientSource, pseudonyms ReversiblePseudonymizer, otv OtvClient, logger zerolog.Logger) *Service {
	return &Service{
		crypter:    crypter,
		patients:   patients,
		pseudonyms: pseudonyms,
		otv:        otv,
		logger:     logger,
	}
}

// Authorize reveals the record id, resolves the patient's BSN to a
// reversible pseudonym and asks the consent facility for a verdict.
// Pipeline failures are permission check errors; only an unreachable or
// malformed consent facility degrades to a plain denial.
func (s *Service) Authorize(ctx context.Context, req PermissionRequest) (bool, error) {
	if s.crypter == nil {
		return false, fmt.Errorf("%w: lmr crypto is not configured", ErrPermissionCheck)
	}
	recordID, err := s.crypter.Decrypt(req.EncryptedLMRID)
	if err != nil {
		return false, fmt.Errorf("%w: decrypt lmr id: %v", ErrPermissionCheck, err)
	}

	patient, err := s.patients.GetPatient(ctx, recordID)
	if err != nil {
		return false, fmt.Errorf("%w: retrieve patient: %v", ErrPermissionCheck, err)
	}

	bsn, err := patientBSN(patient)
	if err != nil {
		return false, fmt.Errorf("%w: extract bsn from patient: %v", ErrPermissionCheck, err)
	}

	pseudonym, err := s.pseudonyms.RequestReversible(ctx, bsn, req.ClientUraNumber)
	if err != nil {
		return false, fmt.Errorf("%w: exchange bsn for pseudonym: %v", ErrPermissionCheck, err)
	}

	allowed, err := s.otv.CheckAuthorization(ctx, pseudonym, req.ClientUraNumber)
	if err != nil {
		// Consent that cannot be verified counts as withheld.
		s.logger.Error().Err(err).Msg("otv authorization check failed")
		return false, nil
	}

	s.logger.Info().
		Str("client_ura", req.ClientUraNumber.String()).
		Bool("allowed", allowed).
		Msg("permission request decided")
	return allowed, nil
}

// patientBSN requires exactly one BSN identifier on the patient.
func patientBSN(patient *fhir.Patient) (identity.BSN, error) {
	values := patient.BSNIdentifiers()
	if len(values) == 0 {
		return identity.BSN{}, errors.New("no bsn found for patient")
	}
	if len(values) > 1 {
		return identity.BSN{}, errors.New("multiple bsns found for patient")
	}
	return identity.ParseBSN(values[0])
}
