package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/nvi"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/pseudonym"
)

type fakeIndex struct {
	registered bool
	lookupErr  error
	submitErr  error
	healthy    bool
	queries    []nvi.ReferralQuery
	submitted  []nvi.CreateReferralRequest
}

func (f *fakeIndex) IsReferralRegistered(ctx context.Context, query nvi.ReferralQuery) (bool, error) {
	f.queries = append(f.queries, query)
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.registered, nil
}

func (f *fakeIndex) Submit(ctx context.Context, req nvi.CreateReferralRequest) (nvi.ReferralEntity, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nvi.ReferralEntity{}, f.submitErr
	}
	return nvi.ReferralEntity{
		ID:               "ref-1",
		UraNumber:        req.UraNumber,
		DataDomain:       req.DataDomain,
		OrganizationType: req.OrganizationType,
	}, nil
}

func (f *fakeIndex) ServerHealthy(ctx context.Context) bool { return f.healthy }

type fakePseudonyms struct {
	jwe       pseudonym.JWE
	evalErr   error
	legacy    string
	legacyErr error
	healthy   bool
	evals     []pseudonym.EvalRequest
	exchanged []identity.BSN
}

func (f *fakePseudonyms) Submit(ctx context.Context, req pseudonym.EvalRequest) (pseudonym.JWE, error) {
	f.evals = append(f.evals, req)
	if f.evalErr != nil {
		return "", f.evalErr
	}
	return f.jwe, nil
}

func (f *fakePseudonyms) Register(ctx context.Context, bsn identity.BSN) (string, error) {
	f.exchanged = append(f.exchanged, bsn)
	if f.legacyErr != nil {
		return "", f.legacyErr
	}
	return f.legacy, nil
}

func (f *fakePseudonyms) ServerHealthy(ctx context.Context) bool { return f.healthy }

func mustBSN(t *testing.T, value string) identity.BSN {
	t.Helper()
	bsn, err := identity.ParseBSN(value)
	if err != nil {
		t.Fatalf("parse bsn: %v", err)
	}
	return bsn
}

func mustURA(t *testing.T, value string) identity.UraNumber {
	t.Helper()
	ura, err := identity.ParseUraNumber(value)
	if err != nil {
		t.Fatalf("parse ura: %v", err)
	}
	return ura
}

func mustDomain(t *testing.T, value string) identity.DataDomain {
	t.Helper()
	domain, err := identity.NewDataDomain(value)
	if err != nil {
		t.Fatalf("new data domain: %v", err)
	}
	return domain
}

func newTestService(t *testing.T, index *fakeIndex, pseudonyms *fakePseudonyms, legacy bool) *Service {
	t.Helper()
	return NewService(
		index,
		pseudonyms,
		mustURA(t, "13873620"),
		mustURA(t, "12345678"),
		"hospital",
		legacy,
		zerolog.Nop(),
	)
}

func TestRegister_CreatesNewReferral(t *testing.T) {
	index := &fakeIndex{}
	pseudonyms := &fakePseudonyms{jwe: "some-jwe"}
	svc := newTestService(t, index, pseudonyms, false)

	entity, err := svc.Register(context.Background(), mustBSN(t, "200060429"), mustDomain(t, "ImagingStudy"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if entity == nil {
		t.Fatal("expected a created entity")
	}
	if entity.ID != "ref-1" {
		t.Errorf("expected entity ref-1, got %s", entity.ID)
	}

	if len(pseudonyms.evals) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(pseudonyms.evals))
	}
	eval := pseudonyms.evals[0]
	if eval.RecipientOrganization != "ura:12345678" {
		t.Errorf("expected recipient ura:12345678, got %s", eval.RecipientOrganization)
	}
	if eval.RecipientScope != "nationale-verwijsindex" {
		t.Errorf("expected index scope, got %s", eval.RecipientScope)
	}
	if eval.EncryptedPersonalID == "" {
		t.Error("expected a blinded input")
	}

	if len(index.queries) != 1 {
		t.Fatalf("expected one existence check, got %d", len(index.queries))
	}
	query := index.queries[0]
	if query.OprfJWE != "some-jwe" {
		t.Errorf("expected query to carry the evaluated jwe, got %s", query.OprfJWE)
	}
	if query.BlindFactor == "" {
		t.Error("expected query to carry the blind factor")
	}
	if query.UraNumber.String() != "13873620" {
		t.Errorf("expected own ura in query, got %s", query.UraNumber)
	}

	if len(index.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(index.submitted))
	}
	created := index.submitted[0]
	if created.OprfJWE != query.OprfJWE || created.BlindFactor != query.BlindFactor {
		t.Error("expected submission to reuse the looked-up pseudonym pair")
	}
	if created.UraNumber.String() != "13873620" {
		t.Errorf("expected own ura in submission, got %s", created.UraNumber)
	}
	if created.OrganizationType != "hospital" {
		t.Errorf("expected default organization type, got %s", created.OrganizationType)
	}
}

func TestRegister_ExistingReferralReturnsNil(t *testing.T) {
	index := &fakeIndex{registered: true}
	pseudonyms := &fakePseudonyms{jwe: "some-jwe"}
	svc := newTestService(t, index, pseudonyms, false)

	entity, err := svc.Register(context.Background(), mustBSN(t, "200060429"), mustDomain(t, "ImagingStudy"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if entity != nil {
		t.Errorf("expected nil entity for an already registered referral, got %+v", entity)
	}
	if len(index.submitted) != 0 {
		t.Errorf("expected no submission, got %d", len(index.submitted))
	}
}

func TestRegister_LookupErrorAborts(t *testing.T) {
	index := &fakeIndex{lookupErr: errors.New("boom")}
	pseudonyms := &fakePseudonyms{jwe: "some-jwe"}
	svc := newTestService(t, index, pseudonyms, false)

	_, err := svc.Register(context.Background(), mustBSN(t, "200060429"), mustDomain(t, "ImagingStudy"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(index.submitted) != 0 {
		t.Errorf("expected no submission after a failed lookup, got %d", len(index.submitted))
	}
}

func TestRegister_PseudonymErrorAborts(t *testing.T) {
	index := &fakeIndex{}
	pseudonyms := &fakePseudonyms{evalErr: pseudonym.ErrPseudonym}
	svc := newTestService(t, index, pseudonyms, false)

	_, err := svc.Register(context.Background(), mustBSN(t, "200060429"), mustDomain(t, "ImagingStudy"))
	if !errors.Is(err, pseudonym.ErrPseudonym) {
		t.Fatalf("expected pseudonym error, got %v", err)
	}
	if len(index.queries) != 0 {
		t.Errorf("expected no existence check without a pseudonym, got %d", len(index.queries))
	}
}

func TestRegister_LegacyExchange(t *testing.T) {
	index := &fakeIndex{}
	pseudonyms := &fakePseudonyms{legacy: "legacy-pseudonym"}
	svc := newTestService(t, index, pseudonyms, true)

	bsn := mustBSN(t, "200060429")
	entity, err := svc.Register(context.Background(), bsn, mustDomain(t, "ImagingStudy"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if entity == nil {
		t.Fatal("expected a created entity")
	}

	if len(pseudonyms.evals) != 0 {
		t.Errorf("expected no oprf evaluation in legacy mode, got %d", len(pseudonyms.evals))
	}
	if len(pseudonyms.exchanged) != 1 {
		t.Fatalf("expected one legacy exchange, got %d", len(pseudonyms.exchanged))
	}

	query := index.queries[0]
	if query.OprfJWE != "legacy-pseudonym" {
		t.Errorf("expected legacy pseudonym as subject, got %s", query.OprfJWE)
	}
	if query.BlindFactor != bsn.Hash() {
		t.Errorf("expected bsn hash as key material, got %s", query.BlindFactor)
	}
}

func TestHealthPassthrough(t *testing.T) {
	index := &fakeIndex{healthy: true}
	pseudonyms := &fakePseudonyms{healthy: false}
	svc := newTestService(t, index, pseudonyms, false)

	if !svc.IndexHealthy(context.Background()) {
		t.Error("expected index to report healthy")
	}
	if svc.PseudonymServiceHealthy(context.Background()) {
		t.Error("expected pseudonym service to report unhealthy")
	}
}
