package nvi

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
)

// DataReference is the NVIDataReference wire resource.
type DataReference struct {
	ResourceType string               `json:"resourceType"`
	ID           string               `json:"id,omitempty"`
	Subject      fhir.Identifier      `json:"subject"`
	Source       fhir.Identifier      `json:"source"`
	SourceType   fhir.CodeableConcept `json:"sourceType"`
	CareContext  fhir.CodeableConcept `json:"careContext"`
	OprfKey      string               `json:"oprfKey"`
}

// Mapper translates between referral requests and the NVIDataReference
// resource. The four system URIs are deployment configuration.
type Mapper struct {
	pseudonymSystem        string
	sourceSystem           string
	organizationTypeSystem string
	careContextSystem      string
}

func NewMapper(cfg config.NviFhirSystems) *Mapper {
	return &Mapper{
		pseudonymSystem:        cfg.PseudonymSystem,
		sourceSystem:           cfg.SourceSystem,
		organizationTypeSystem: cfg.OrganizationTypeSystem,
		careContextSystem:      cfg.CareContextSystem,
	}
}

func (m *Mapper) ToFHIR(req CreateReferralRequest) DataReference {
	return DataReference{
		ResourceType: "NVIDataReference",
		Subject: fhir.Identifier{
			System: m.pseudonymSystem,
			Value:  string(req.OprfJWE),
		},
		Source: fhir.Identifier{
			System: m.sourceSystem,
			Value:  req.UraNumber.String(),
		},
		SourceType: fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  m.organizationTypeSystem,
				Code:    req.OrganizationType,
				Display: capitalize(req.OrganizationType),
			}},
		},
		CareContext: fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System: m.careContextSystem,
				Code:   req.DataDomain.String(),
			}},
		},
		OprfKey: req.BlindFactor,
	}
}

// FromFHIR reads a referral entity back out of the resource the index
// returns on creation.
func (m *Mapper) FromFHIR(doc DataReference) (ReferralEntity, error) {
	ura, err := identity.ParseUraNumber(doc.Source.Value)
	if err != nil {
		return ReferralEntity{}, fmt.Errorf("%w: source carries no valid ura number: %v", ErrNvi, err)
	}
	if len(doc.CareContext.Coding) == 0 {
		return ReferralEntity{}, fmt.Errorf("%w: careContext carries no coding", ErrNvi)
	}
	domain, err := identity.NewDataDomain(doc.CareContext.Coding[0].Code)
	if err != nil {
		return ReferralEntity{}, fmt.Errorf("%w: careContext carries no data domain: %v", ErrNvi, err)
	}

	entity := ReferralEntity{
		ID:         doc.ID,
		UraNumber:  ura,
		DataDomain: domain,
		Pseudonym:  doc.Subject.Value,
	}
	if len(doc.SourceType.Coding) > 0 {
		entity.OrganizationType = doc.SourceType.Coding[0].Code
	}
	return entity, nil
}

// capitalize renders the display form of an organization type code: first
// rune upper, rest lower.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(r)) + lower[size:]
}
