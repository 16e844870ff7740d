package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/nvi"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
)

// ErrInvalidResource matches structurally unusable registration input, such
// as a bundle without entries or a missing request body.
var ErrInvalidResource = errors.New("invalid resource")

type invalidResourceError struct{ details string }

func (e *invalidResourceError) Error() string        { return e.details }
func (e *invalidResourceError) Is(target error) bool { return target == ErrInvalidResource }

// InvalidResource returns an error that matches ErrInvalidResource and
// whose message is safe to surface verbatim in an OperationOutcome.
func InvalidResource(details string) error {
	return &invalidResourceError{details: details}
}

// Registrar is the slice of the referral pipeline bundle registration
// drives; *Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, bsn identity.BSN, domain identity.DataDomain) (*nvi.ReferralEntity, error)
}

// BundleService registers referrals from manually submitted FHIR bundles,
// one outcome per clinical resource.
type BundleService struct {
	referrals Registrar
	logger    zerolog.Logger
}

func NewBundleService(referrals Registrar, logger zerolog.Logger) *BundleService {
	return &BundleService{referrals: referrals, logger: logger}
}

type bundleResource struct {
	id           string
	resourceType string
	raw          []byte
}

// bundleIndex holds the bundle's resources keyed by id while preserving
// entry order. A repeated id keeps its first position but the later
// resource wins, so lookups and iteration stay consistent.
type bundleIndex struct {
	ordered []bundleResource
	byID    map[string]int
}

func (b *bundleIndex) lookup(id string) (bundleResource, bool) {
	idx, ok := b.byID[id]
	if !ok {
		return bundleResource{}, false
	}
	return b.ordered[idx], true
}

// Register walks the bundle and attempts one referral registration per
// clinical resource. Patient entries carry identity only and produce no
// outcome. Validation failures become per-entry error outcomes; an
// upstream registration failure aborts the whole request.
func (s *BundleService) Register(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error) {
	index, err := mapResources(bundle)
	if err != nil {
		return nil, err
	}

	var entries []fhir.BundleEntry
	for _, res := range index.ordered {
		if res.resourceType == "Patient" {
			continue
		}
		response, err := s.registerOne(ctx, res, index)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fhir.BundleEntry{Response: response})
	}
	return fhir.NewTransactionResponse(entries), nil
}

func mapResources(bundle *fhir.Bundle) (*bundleIndex, error) {
	if bundle == nil || len(bundle.Entry) == 0 {
		return nil, InvalidResource("Invalid bundle without entries")
	}

	index := &bundleIndex{byID: map[string]int{}}
	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		header, err := fhir.DecodeResource(entry.Resource)
		if err != nil || header.ResourceType == "" || header.ID == "" {
			continue
		}
		res := bundleResource{id: header.ID, resourceType: header.ResourceType, raw: entry.Resource}
		if pos, exists := index.byID[res.id]; exists {
			index.ordered[pos] = res
			continue
		}
		index.byID[res.id] = len(index.ordered)
		index.ordered = append(index.ordered, res)
	}
	return index, nil
}

func (s *BundleService) registerOne(ctx context.Context, res bundleResource, index *bundleIndex) (*fhir.BundleResponse, error) {
	ref := fhir.PatientReference(res.raw)
	if ref == nil {
		return errorResponse(fmt.Sprintf("no reference for patient found for %s", res.id)), nil
	}

	refType, refID, ok := fhir.SplitReference(ref)
	if !ok {
		return errorResponse(fmt.Sprintf(
			"reference for %s: %s is not relative, only relative references are allowed",
			res.resourceType, res.id,
		)), nil
	}
	if refType != "Patient" {
		return errorResponse("Reference is not a valid Patient reference"), nil
	}

	referenced, found := index.lookup(refID)
	if !found {
		return errorResponse("patient associated with resource does not exist in bundle"), nil
	}
	if referenced.resourceType != "Patient" {
		return errorResponse("Patient is not a valid Resource"), nil
	}
	patient, err := fhir.DecodePatient(referenced.raw)
	if err != nil {
		return errorResponse("Patient is not a valid Resource"), nil
	}

	if len(patient.Identifier) == 0 {
		return errorResponse("Patient without identifiers"), nil
	}
	bsns := patient.BSNIdentifiers()
	if len(bsns) != 1 {
		return errorResponse("Only one identifier with BSN system is allowed"), nil
	}
	bsn, err := identity.ParseBSN(bsns[0])
	if err != nil {
		return errorResponse("Invalid BSN number"), nil
	}

	domain, err := identity.NewDataDomain(res.resourceType)
	if err != nil {
		return nil, err
	}
	referral, err := s.referrals.Register(ctx, bsn, domain)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return &fhir.BundleResponse{
			Status:  "400",
			Outcome: fhir.NewOperationOutcome(fhir.IssueSeverityWarning, fhir.IssueTypeDuplicate, "Record already exists"),
		}, nil
	}

	s.logger.Info().
		Str("resource_id", res.id).
		Str("data_domain", domain.String()).
		Msg("registered referral from bundle")
	return &fhir.BundleResponse{
		Status:  "201",
		Outcome: fhir.NewOperationOutcome(fhir.IssueSeverityInformation, fhir.IssueTypeCreated, "Record created successfully"),
	}, nil
}

func errorResponse(details string) *fhir.BundleResponse {
	return &fhir.BundleResponse{
		Status:  "400",
		Outcome: fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, details),
	}
}
