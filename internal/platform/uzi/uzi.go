package uzi

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

// ErrNoUraNumber is returned when a certificate carries no UZI otherName
// entry with a subscriber number.
var ErrNoUraNumber = errors.New("no ura number in certificate")

var (
	oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidUziOtherName   = asn1.ObjectIdentifier{2, 5, 5, 5}
)

// A UZI server certificate carries its attributes in a SAN otherName
// string of the form
//
//	<oid-ca>-<version>-<uzi-nr>-<card-type>-<subscriber-nr>-<role>-<agb>
//
// The subscriber number is the URA number of the certificate holder.
const uziAttributeCount = 7

// FromCertificate extracts the URA number from the UZI otherName SAN entry
// of a PEM-encoded certificate.
func FromCertificate(pemData []byte) (identity.UraNumber, error) {
	block, _ := pem.Decode(pemData)
	if block == nil || block.Type != "CERTIFICATE" {
		return identity.UraNumber{}, errors.New("no certificate in pem data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return identity.UraNumber{}, fmt.Errorf("parse certificate: %w", err)
	}
	return fromParsed(cert)
}

// FromCertificateFile reads a PEM certificate from disk and extracts the
// URA number.
func FromCertificateFile(path string) (identity.UraNumber, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return identity.UraNumber{}, fmt.Errorf("read certificate: %w", err)
	}
	return FromCertificate(pemData)
}

func fromParsed(cert *x509.Certificate) (identity.UraNumber, error) {
	values, err := sanOtherNames(cert)
	if err != nil {
		return identity.UraNumber{}, err
	}
	for _, value := range values {
		parts := strings.Split(value, "-")
		if len(parts) != uziAttributeCount {
			continue
		}
		ura, err := identity.ParseUraNumber(parts[4])
		if err != nil {
			continue
		}
		return ura, nil
	}
	return identity.UraNumber{}, ErrNoUraNumber
}

// sanOtherNames returns the string values of all UZI otherName entries in
// the certificate's subjectAltName extension. The x509 package only
// surfaces DNS, email, IP and URI names, so the extension is re-parsed.
func sanOtherNames(cert *x509.Certificate) ([]string, error) {
	var sanValue []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidSubjectAltName) {
			sanValue = ext.Value
			break
		}
	}
	if sanValue == nil {
		return nil, nil
	}

	var seq asn1.RawValue
	rest, err := asn1.Unmarshal(sanValue, &seq)
	if err != nil {
		return nil, fmt.Errorf("parse subjectAltName: %w", err)
	}
	if len(rest) > 0 || seq.Class != asn1.ClassUniversal || seq.Tag != asn1.TagSequence || !seq.IsCompound {
		return nil, errors.New("malformed subjectAltName extension")
	}

	var values []string
	data := seq.Bytes
	for len(data) > 0 {
		var name asn1.RawValue
		data, err = asn1.Unmarshal(data, &name)
		if err != nil {
			return nil, fmt.Errorf("parse general name: %w", err)
		}
		// otherName is context tag 0 in the GeneralName choice.
		if name.Class != asn1.ClassContextSpecific || name.Tag != 0 || !name.IsCompound {
			continue
		}

		var on struct {
			TypeID asn1.ObjectIdentifier
			Value  asn1.RawValue
		}
		if _, err := asn1.UnmarshalWithParams(name.FullBytes, &on, "tag:0"); err != nil {
			continue
		}
		if !on.TypeID.Equal(oidUziOtherName) {
			continue
		}

		inner := on.Value
		// The value is wrapped in an explicit [0] tag.
		if inner.Class == asn1.ClassContextSpecific && inner.IsCompound {
			if _, err := asn1.Unmarshal(inner.Bytes, &inner); err != nil {
				continue
			}
		}
		switch inner.Tag {
		case asn1.TagIA5String, asn1.TagUTF8String, asn1.TagPrintableString:
			values = append(values, string(inner.Bytes))
		}
	}
	return values, nil
}

// ResolveClientURA determines the service's own URA number. A configured
// app.ura_number wins; otherwise it is read from the referral endpoint's
// UZI certificate.
func ResolveClientURA(cfg *config.Config) (identity.UraNumber, error) {
	if cfg.App.UraNumber != "" {
		return identity.ParseUraNumber(cfg.App.UraNumber)
	}
	if cfg.ReferralAPI.MTLSCert != "" {
		return FromCertificateFile(cfg.ReferralAPI.MTLSCert)
	}
	return identity.UraNumber{}, errors.New("no ura number in app config or uzi certificate")
}

// ResolveOtvURA determines the OTV's URA number. A configured override
// wins; otherwise it is read from the OTV endpoint's UZI certificate.
func ResolveOtvURA(cfg config.OtvAPI) (identity.UraNumber, error) {
	if cfg.UraOverride != "" {
		ura, err := identity.ParseUraNumber(cfg.UraOverride)
		if err != nil {
			return identity.UraNumber{}, fmt.Errorf("invalid otv ura_override: %w", err)
		}
		return ura, nil
	}
	if cfg.MTLSCert != "" {
		return FromCertificateFile(cfg.MTLSCert)
	}
	return identity.UraNumber{}, errors.New("no otv ura available: set otv_api.ura_override or otv_api.mtls_cert")
}
