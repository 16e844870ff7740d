package oauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

// rsaCertFixture writes a self-signed RSA certificate and its key as PEM
// files and returns their paths together with the raw DER and key.
func rsaCertFixture(t *testing.T, commonName string) (certPath, keyPath string, der []byte, key *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err = x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath, der, key
}

func thumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func mustParseURA(t *testing.T, value string) identity.UraNumber {
	t.Helper()
	ura, err := identity.ParseUraNumber(value)
	if err != nil {
		t.Fatalf("parse ura: %v", err)
	}
	return ura
}

func TestAssertionBuilder_SignsExpectedClaims(t *testing.T) {
	mtlsCert, _, mtlsDER, _ := rsaCertFixture(t, "mtls")
	signCert, signKey, signDER, key := rsaCertFixture(t, "signing")

	cfg := config.OAuthAPI{
		Endpoint:       config.Endpoint{Endpoint: "https://auth.example.test/token", MTLSCert: mtlsCert},
		JWTSigningCert: signCert,
		JWTSigningKey:  signKey,
	}

	builder, err := NewAssertionBuilder(cfg, mustParseURA(t, "13873620"))
	if err != nil {
		t.Fatalf("new assertion builder: %v", err)
	}

	signed, err := builder.Build("epd:read", "https://nvi.example.test")
	if err != nil {
		t.Fatalf("build assertion: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("parse assertion: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "13873620" || claims["sub"] != "13873620" {
		t.Errorf("expected iss=sub=13873620, got iss=%v sub=%v", claims["iss"], claims["sub"])
	}
	if claims["aud"] != "https://auth.example.test/token" {
		t.Errorf("expected aud to be the token endpoint, got %v", claims["aud"])
	}
	if claims["scope"] != "epd:read" {
		t.Errorf("expected scope claim, got %v", claims["scope"])
	}
	if claims["target_audience"] != "https://nvi.example.test" {
		t.Errorf("expected target_audience claim, got %v", claims["target_audience"])
	}
	if claims["jti"] == "" {
		t.Error("expected a jti claim")
	}

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	if exp-iat != 1800 {
		t.Errorf("expected exp-iat of 1800s, got %d", exp-iat)
	}

	cnf, ok := claims["cnf"].(map[string]any)
	if !ok {
		t.Fatalf("expected cnf claim, got %T", claims["cnf"])
	}
	if cnf["x5t#S256"] != thumbprint(mtlsDER) {
		t.Errorf("expected cnf thumbprint of the mtls certificate, got %v", cnf["x5t#S256"])
	}

	if parsed.Header["kid"] != thumbprint(signDER) {
		t.Errorf("expected kid thumbprint of the signing certificate, got %v", parsed.Header["kid"])
	}
	if parsed.Header["typ"] != "JWT" {
		t.Errorf("expected typ JWT, got %v", parsed.Header["typ"])
	}
	if _, present := parsed.Header["x5c"]; present {
		t.Error("x5c header must be absent unless include_x5c is set")
	}
}

func TestAssertionBuilder_IncludesCertificateChain(t *testing.T) {
	mtlsCert, _, _, _ := rsaCertFixture(t, "mtls")
	leafCert, signKey, leafDER, key := rsaCertFixture(t, "leaf")
	_, _, issuerDER, _ := rsaCertFixture(t, "issuer")

	// Bundle file: leaf first, then the issuer.
	leafPEM, err := os.ReadFile(leafCert)
	if err != nil {
		t.Fatalf("read leaf: %v", err)
	}
	issuerPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: issuerDER})
	bundlePath := filepath.Join(t.TempDir(), "bundle.pem")
	if err := os.WriteFile(bundlePath, append(leafPEM, issuerPEM...), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	cfg := config.OAuthAPI{
		Endpoint:       config.Endpoint{Endpoint: "https://auth.example.test", MTLSCert: mtlsCert},
		JWTSigningCert: bundlePath,
		JWTSigningKey:  signKey,
		IncludeX5C:     true,
	}

	builder, err := NewAssertionBuilder(cfg, mustParseURA(t, "00001234"))
	if err != nil {
		t.Fatalf("new assertion builder: %v", err)
	}

	signed, err := builder.Build("prs:read", "https://prs.example.test")
	if err != nil {
		t.Fatalf("build assertion: %v", err)
	}
	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("parse assertion: %v", err)
	}

	x5c, ok := parsed.Header["x5c"].([]any)
	if !ok {
		t.Fatalf("expected x5c header, got %T", parsed.Header["x5c"])
	}
	if len(x5c) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(x5c))
	}
	first, err := base64.StdEncoding.DecodeString(x5c[0].(string))
	if err != nil {
		t.Fatalf("decode x5c[0]: %v", err)
	}
	if string(first) != string(leafDER) {
		t.Error("expected leaf certificate first in x5c")
	}

	// The kid is always the leaf thumbprint.
	if parsed.Header["kid"] != thumbprint(leafDER) {
		t.Errorf("expected kid of the leaf certificate, got %v", parsed.Header["kid"])
	}
}

func TestNewAssertionBuilder_RejectsNonRSAKey(t *testing.T) {
	mtlsCert, _, _, _ := rsaCertFixture(t, "mtls")
	signCert, _, _, _ := rsaCertFixture(t, "signing")

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	if err != nil {
		t.Fatalf("marshal ec key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "ec.pem")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write ec key: %v", err)
	}

	cfg := config.OAuthAPI{
		Endpoint:       config.Endpoint{Endpoint: "https://auth.example.test", MTLSCert: mtlsCert},
		JWTSigningCert: signCert,
		JWTSigningKey:  keyPath,
	}
	_, err = NewAssertionBuilder(cfg, mustParseURA(t, "00001234"))
	if err == nil {
		t.Fatal("expected error for non-RSA signing key")
	}
	if !strings.Contains(err.Error(), "unsupported private key") {
		t.Errorf("expected unsupported key error, got %v", err)
	}
}

func TestNewAssertionBuilder_RejectsEmptyCertificateBundle(t *testing.T) {
	mtlsCert, signKey, _, _ := rsaCertFixture(t, "mtls")

	emptyPath := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(emptyPath, []byte("not a certificate\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg := config.OAuthAPI{
		Endpoint:       config.Endpoint{Endpoint: "https://auth.example.test", MTLSCert: mtlsCert},
		JWTSigningCert: emptyPath,
		JWTSigningKey:  signKey,
	}
	if _, err := NewAssertionBuilder(cfg, mustParseURA(t, "00001234")); err == nil {
		t.Fatal("expected error for bundle without certificates")
	}
}
