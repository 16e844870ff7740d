package fhir

import (
	"encoding/json"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status   string            `json:"status"`
	Location string            `json:"location,omitempty"`
	Outcome  *OperationOutcome `json:"outcome,omitempty"`
}

// NewTransactionResponse creates a transaction-response Bundle from entry
// outcomes, preserving their order.
func NewTransactionResponse(entries []BundleEntry) *Bundle {
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction-response",
		Entry:        entries,
	}
}

// Patients decodes every Patient entry in the bundle. Entries without a
// resource or of another type are skipped.
func (b *Bundle) Patients() []Patient {
	var patients []Patient
	for _, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		res, err := DecodeResource(entry.Resource)
		if err != nil || res.ResourceType != "Patient" {
			continue
		}
		p, err := DecodePatient(entry.Resource)
		if err != nil {
			continue
		}
		patients = append(patients, *p)
	}
	return patients
}

// LatestTimestamp returns the most recent meta.lastUpdated across all
// entries. ok is false when no entry carries one.
func (b *Bundle) LatestTimestamp() (time.Time, bool) {
	var latest time.Time
	var found bool
	for _, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		res, err := DecodeResource(entry.Resource)
		if err != nil || res.Meta == nil || res.Meta.LastUpdated.IsZero() {
			continue
		}
		if !found || res.Meta.LastUpdated.After(latest) {
			latest = res.Meta.LastUpdated
			found = true
		}
	}
	return latest, found
}
