package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidUraNumber = errors.New("ura number must be 8 digits or less")
	ErrInvalidBSN       = errors.New("invalid bsn")
	ErrEmptyDataDomain  = errors.New("data domain must not be empty")
)

// UraNumber identifies a care organization. The canonical form is an
// 8-digit decimal string, left-zero-padded; equality is on that form.
type UraNumber struct {
	value string
}

// ParseUraNumber canonicalizes a string of at most 8 decimal digits.
func ParseUraNumber(value string) (UraNumber, error) {
	if value == "" || len(value) > 8 {
		return UraNumber{}, ErrInvalidUraNumber
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return UraNumber{}, ErrInvalidUraNumber
		}
	}
	return UraNumber{value: fmt.Sprintf("%08s", value)}, nil
}

// UraNumberFromInt canonicalizes a non-negative integer of at most 8 digits.
func UraNumberFromInt(value int) (UraNumber, error) {
	if value < 0 {
		return UraNumber{}, ErrInvalidUraNumber
	}
	return ParseUraNumber(strconv.Itoa(value))
}

func (u UraNumber) String() string { return u.value }

// IsZero reports whether the number was never parsed.
func (u UraNumber) IsZero() bool { return u.value == "" }

func (u UraNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.value)
}

func (u *UraNumber) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseUraNumber(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// BSN is a Dutch citizen number: exactly 9 decimal digits satisfying the
// elfproef, ((sum_{i=1..8} (10-i)*d_i) - d_9) mod 11 == 0.
type BSN struct {
	value string
}

func ParseBSN(value string) (BSN, error) {
	if len(value) != 9 {
		return BSN{}, fmt.Errorf("%w: must be 9 digits", ErrInvalidBSN)
	}
	digits := make([]int, 9)
	for i, r := range value {
		if r < '0' || r > '9' {
			return BSN{}, fmt.Errorf("%w: must be 9 digits", ErrInvalidBSN)
		}
		digits[i] = int(r - '0')
	}
	total := 0
	for i := 0; i < 8; i++ {
		total += digits[i] * (9 - i)
	}
	total -= digits[8]
	if total%11 != 0 {
		return BSN{}, fmt.Errorf("%w: elfproef failed", ErrInvalidBSN)
	}
	return BSN{value: value}, nil
}

func (b BSN) String() string { return b.value }

// Hash returns the SHA-256 hex digest of the BSN, used by the legacy
// pseudonym registration flow.
func (b BSN) Hash() string {
	sum := sha256.Sum256([]byte(b.value))
	return hex.EncodeToString(sum[:])
}

// DataDomain names a care context, e.g. "ImagingStudy". The value is
// opaque; the set of recognized domains is fixed by configuration.
type DataDomain string

func NewDataDomain(value string) (DataDomain, error) {
	if strings.TrimSpace(value) == "" {
		return "", ErrEmptyDataDomain
	}
	return DataDomain(value), nil
}

func (d DataDomain) String() string { return string(d) }

// PersonalIdentifier is the identity tuple pseudonymized by the OPRF path.
// Field order matters: the serialized JSON is key material.
type PersonalIdentifier struct {
	LandCode string `json:"landCode"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// NewBSNIdentifier builds the identifier for a Dutch citizen number.
func NewBSNIdentifier(bsn BSN) PersonalIdentifier {
	return PersonalIdentifier{LandCode: "NL", Type: "BSN", Value: bsn.String()}
}
