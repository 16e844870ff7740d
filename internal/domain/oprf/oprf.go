// Package oprf prepares personal identifiers for remote OPRF evaluation
// by the pseudonym service. The identifier never leaves this service in a
// linkable form: it is first bound to one recipient via HKDF, then blinded
// on the ristretto255 group so the pseudonym service evaluates it without
// seeing it.
package oprf

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloudflare/circl/group"
	"golang.org/x/crypto/hkdf"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

// hashToGroupDST is the RFC 9497 hash-to-group tag of the
// OPRF(ristretto255, SHA-512) ciphersuite the pseudonym service evaluates.
const hashToGroupDST = "HashToGroup-OPRFV1-\x00-ristretto255-SHA512"

const derivationVersion = "v1"

// BlindedInput is one blinding result. BlindedValue travels to the
// pseudonym service; BlindFactor stays with the caller and later unlocks
// the NVI lookup. Both are base64url with padding.
type BlindedInput struct {
	BlindFactor  string
	BlindedValue string
}

// Blind derives the recipient-bound pseudonym for the identifier and
// blinds it with a fresh random scalar. Two calls over the same inputs
// share the derived pseudonym but never the blind factor.
func Blind(pid identity.PersonalIdentifier, recipientOrganization, recipientScope string) (BlindedInput, error) {
	seed, err := DerivePseudonym(pid, recipientOrganization, recipientScope)
	if err != nil {
		return BlindedInput{}, err
	}

	g := group.Ristretto255
	factor := g.RandomNonZeroScalar(rand.Reader)
	blinded := g.NewElement().Mul(g.HashToElement(seed, []byte(hashToGroupDST)), factor)

	factorBytes, err := factor.MarshalBinary()
	if err != nil {
		return BlindedInput{}, fmt.Errorf("encode blind factor: %w", err)
	}
	blindedBytes, err := blinded.MarshalBinary()
	if err != nil {
		return BlindedInput{}, fmt.Errorf("encode blinded input: %w", err)
	}

	return BlindedInput{
		BlindFactor:  base64.URLEncoding.EncodeToString(factorBytes),
		BlindedValue: base64.URLEncoding.EncodeToString(blindedBytes),
	}, nil
}

// DerivePseudonym produces the 32-byte pseudonym that is deterministic in
// (identifier, organization, scope). HKDF-SHA256 over the identifier's
// canonical JSON, domain-separated by "<org>|<scope>|v1".
func DerivePseudonym(pid identity.PersonalIdentifier, recipientOrganization, recipientScope string) ([]byte, error) {
	ikm, err := json.Marshal(pid)
	if err != nil {
		return nil, fmt.Errorf("serialize personal identifier: %w", err)
	}

	info := fmt.Sprintf("%s|%s|%s", recipientOrganization, recipientScope, derivationVersion)
	seed := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(info)), seed); err != nil {
		return nil, fmt.Errorf("derive pseudonym: %w", err)
	}
	return seed, nil
}
