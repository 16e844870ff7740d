// Package nvi registers and looks up data references in the national
// referral index. The index never sees a BSN: records are keyed by the
// recipient-bound pseudonym JWE plus the blind factor that produced it.
package nvi

import (
	"errors"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/pseudonym"
)

// ErrNvi marks every failure of the referral index round trips.
var ErrNvi = errors.New("nvi service error")

// ReferralEntity is one registration in the index, existing or newly
// created. It is returned to callers and never persisted locally.
type ReferralEntity struct {
	ID               string              `json:"id,omitempty"`
	UraNumber        identity.UraNumber  `json:"ura_number"`
	DataDomain       identity.DataDomain `json:"data_domain"`
	OrganizationType string              `json:"organization_type"`
	Pseudonym        string              `json:"pseudonym,omitempty"`
}

// CreateReferralRequest carries everything needed to register one record.
type CreateReferralRequest struct {
	OprfJWE          pseudonym.JWE
	BlindFactor      string
	DataDomain       identity.DataDomain
	UraNumber        identity.UraNumber
	OrganizationType string
}

// ReferralQuery selects records by pseudonym, domain and source. The JWE
// and the blind factor only make sense together; NewReferralQuery rejects
// one without the other.
type ReferralQuery struct {
	OprfJWE     pseudonym.JWE
	BlindFactor string
	DataDomain  identity.DataDomain
	UraNumber   identity.UraNumber
}

func NewReferralQuery(jwe pseudonym.JWE, blindFactor string, domain identity.DataDomain, ura identity.UraNumber) (ReferralQuery, error) {
	if (jwe == "") != (blindFactor == "") {
		return ReferralQuery{}, errors.New("referral query needs the pseudonym and the blind factor together")
	}
	return ReferralQuery{
		OprfJWE:     jwe,
		BlindFactor: blindFactor,
		DataDomain:  domain,
		UraNumber:   ura,
	}, nil
}
