package fhir

// OperationOutcome severity levels per FHIR R4 spec.
const (
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by this service.
const (
	IssueTypeCreated   = "created"
	IssueTypeDuplicate = "duplicate"
	IssueTypeInvalid   = "invalid"
	IssueTypeException = "exception"
	IssueTypeTimeout   = "timeout"
)

// OperationOutcome reports the result of an operation on a single resource.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity string           `json:"severity"`
	Code     string           `json:"code"`
	Details  *CodeableConcept `json:"details,omitempty"`
}

// NewOperationOutcome creates a single-issue outcome. The details text ends
// up in issue[0].details.text, which is where clients read the message.
func NewOperationOutcome(severity, code, details string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity: severity,
				Code:     code,
				Details:  &CodeableConcept{Text: details},
			},
		},
	}
}

// ErrorOutcome creates an invalid-input outcome with severity=error.
func ErrorOutcome(details string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, details)
}

// ExceptionOutcome creates an outcome for internal or upstream failures.
func ExceptionOutcome(details string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeException, details)
}

// HasErrors returns true if the outcome contains any error issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError {
			return true
		}
	}
	return false
}
