package oauth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

// assertionTTL is the validity window of a client-assertion JWT.
const assertionTTL = 1800 * time.Second

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// AssertionBuilder constructs the signed client assertion that token
// requests carry when the deployment authenticates with an LDN-style
// certificate instead of a UZI server certificate. The assertion binds
// the token request to the mTLS certificate via its SHA-256 thumbprint.
type AssertionBuilder struct {
	tokenEndpoint  string
	uraNumber      identity.UraNumber
	signingKey     *rsa.PrivateKey
	kid            string
	mtlsThumbprint string
	x5c            []string
}

// NewAssertionBuilder loads the signing material named by the oauth_api
// config section. Errors here are configuration errors and should abort
// startup.
func NewAssertionBuilder(cfg config.OAuthAPI, uraNumber identity.UraNumber) (*AssertionBuilder, error) {
	mtlsDER, err := loadLeafCertificate(cfg.MTLSCert)
	if err != nil {
		return nil, fmt.Errorf("oauth mtls certificate: %w", err)
	}

	chain, err := loadCertificateChain(cfg.JWTSigningCert)
	if err != nil {
		return nil, fmt.Errorf("jwt signing certificate: %w", err)
	}

	key, err := loadRSAPrivateKey(cfg.JWTSigningKey)
	if err != nil {
		return nil, fmt.Errorf("jwt signing key: %w", err)
	}

	b := &AssertionBuilder{
		tokenEndpoint:  cfg.Endpoint.Endpoint,
		uraNumber:      uraNumber,
		signingKey:     key,
		kid:            certThumbprint(chain[0]),
		mtlsThumbprint: certThumbprint(mtlsDER),
	}
	if cfg.IncludeX5C {
		for _, der := range chain {
			b.x5c = append(b.x5c, base64.StdEncoding.EncodeToString(der))
		}
	}
	return b, nil
}

// Build signs a fresh assertion for one token request.
func (b *AssertionBuilder) Build(scope, targetAudience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":             b.uraNumber.String(),
		"sub":             b.uraNumber.String(),
		"aud":             b.tokenEndpoint,
		"scope":           scope,
		"target_audience": targetAudience,
		"iat":             now.Unix(),
		"exp":             now.Add(assertionTTL).Unix(),
		"jti":             uuid.NewString(),
		"cnf":             map[string]string{"x5t#S256": b.mtlsThumbprint},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = b.kid
	if len(b.x5c) > 0 {
		token.Header["x5c"] = b.x5c
	}

	signed, err := token.SignedString(b.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return signed, nil
}

// certThumbprint is the x5t#S256 encoding: base64url without padding over
// the SHA-256 of the DER certificate.
func certThumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func loadLeafCertificate(path string) ([]byte, error) {
	chain, err := loadCertificateChain(path)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// loadCertificateChain returns the DER bytes of every CERTIFICATE block in
// the PEM file, leaf first.
func loadCertificateChain(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return chain, nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no pem block in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T, client assertions require RSA", parsed)
	}
	return key, nil
}
