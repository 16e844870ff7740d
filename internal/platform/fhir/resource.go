package fhir

import (
	"encoding/json"
	"strings"
	"time"
)

// BSNSystem is the canonical naming system for Dutch citizen service
// numbers in patient identifiers.
const BSNSystem = "http://fhir.nl/fhir/NamingSystem/bsn"

// Resource carries the fields shared by every FHIR resource. It is used to
// peek at an entry's type and id without decoding the full payload.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

// Patient is the subset of the FHIR Patient resource this service reads.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
}

// BSNIdentifiers returns the values of all identifiers carrying the
// canonical BSN naming system. Duplicates are preserved.
func (p *Patient) BSNIdentifiers() []string {
	var values []string
	for _, id := range p.Identifier {
		if id.System == BSNSystem {
			values = append(values, id.Value)
		}
	}
	return values
}

// DecodeResource reads the shared resource header from a raw entry payload.
func DecodeResource(raw json.RawMessage) (*Resource, error) {
	var res Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DecodePatient decodes a raw entry payload as a Patient.
func DecodePatient(raw json.RawMessage) (*Patient, error) {
	var p Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PatientReference extracts the patient reference from a clinical resource.
// Resources point at their patient through either a subject or a patient
// field depending on the resource type; whichever is present wins. Returns
// nil when the resource carries neither.
func PatientReference(raw json.RawMessage) *Reference {
	var refs struct {
		Subject *Reference `json:"subject,omitempty"`
		Patient *Reference `json:"patient,omitempty"`
	}
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil
	}
	if refs.Patient != nil {
		return refs.Patient
	}
	return refs.Subject
}

// SplitReference parses a relative reference of the form <Type>/<id>.
// Contained (#id), absolute and malformed references yield ok=false.
func SplitReference(ref *Reference) (resourceType, id string, ok bool) {
	if ref == nil || ref.Reference == "" {
		return "", "", false
	}
	parts := strings.Split(ref.Reference, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
