package pseudonym

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

func newTestBootstrap(t *testing.T, handler http.Handler, mock bool) *Bootstrap {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ura, err := identity.ParseUraNumber("13873620")
	if err != nil {
		t.Fatalf("parse ura: %v", err)
	}
	cfg := config.PseudonymAPI{Endpoint: config.Endpoint{Endpoint: srv.URL, Timeout: 5, Mock: mock}}
	b, err := NewBootstrap(cfg, ura, zerolog.Nop())
	if err != nil {
		t.Fatalf("new bootstrap: %v", err)
	}
	return b
}

func TestEnsureRegistered_RegistersOrgAndCertificate(t *testing.T) {
	var paths []string
	var orgBody map[string]string
	var certBody map[string][]string
	b := newTestBootstrap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/orgs":
			if err := json.NewDecoder(r.Body).Decode(&orgBody); err != nil {
				t.Errorf("decode org body: %v", err)
			}
		case "/register/certificate":
			if err := json.NewDecoder(r.Body).Decode(&certBody); err != nil {
				t.Errorf("decode certificate body: %v", err)
			}
		}
		w.WriteHeader(http.StatusCreated)
	}), false)

	if err := b.EnsureRegistered(context.Background()); err != nil {
		t.Fatalf("ensure registered: %v", err)
	}

	if len(paths) != 2 || paths[0] != "/orgs" || paths[1] != "/register/certificate" {
		t.Errorf("unexpected calls: %v", paths)
	}
	if orgBody["ura"] != "13873620" ||
		orgBody["name"] != "nationale-verwijsindex-registratie-service" ||
		orgBody["max_key_usage"] != "rp" {
		t.Errorf("unexpected org body: %v", orgBody)
	}
	if len(certBody["scope"]) != 1 || certBody["scope"][0] != "nationale-verwijsindex-registratie-service" {
		t.Errorf("unexpected certificate body: %v", certBody)
	}
}

func TestEnsureRegistered_ToleratesRegisteredOrganization(t *testing.T) {
	var calls int
	b := newTestBootstrap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/orgs" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}), false)

	if err := b.EnsureRegistered(context.Background()); err != nil {
		t.Fatalf("ensure registered: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected both endpoints to be called, got %d calls", calls)
	}
}

func TestEnsureRegistered_ToleratesRegisteredCertificate(t *testing.T) {
	b := newTestBootstrap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/register/certificate" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}), false)

	if err := b.EnsureRegistered(context.Background()); err != nil {
		t.Fatalf("ensure registered: %v", err)
	}
}

func TestEnsureRegistered_FailureIsPseudonymError(t *testing.T) {
	var calls int
	b := newTestBootstrap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}), false)

	err := b.EnsureRegistered(context.Background())
	if !errors.Is(err, ErrPseudonym) {
		t.Fatalf("expected pseudonym error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected registration to stop after the first failure, got %d calls", calls)
	}
}

func TestEnsureRegistered_MockModeSkips(t *testing.T) {
	var calls int
	b := newTestBootstrap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}), true)

	if err := b.EnsureRegistered(context.Background()); err != nil {
		t.Fatalf("ensure registered: %v", err)
	}
	if calls != 0 {
		t.Errorf("mock mode must not call the prs, got %d calls", calls)
	}
}
