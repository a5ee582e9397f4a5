package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nhle/classroom/internal/credential"
	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

func TestOpenDemoWhenUnconfigured(t *testing.T) {
	tests := []model.BackendConfig{
		{Driver: model.DriverREST},
		{Driver: model.DriverREST, URL: "https://your_supabase_url.supabase.co", AnonKey: "k"},
		{Driver: model.DriverSQLite},
	}
	for _, cfg := range tests {
		b, err := Open(context.Background(), cfg, credential.NewMemory())
		if err != nil {
			t.Fatalf("Open(%+v): %v", cfg, err)
		}
		if b.Mode() != gateway.ModeDemo {
			t.Errorf("Open(%+v).Mode() = %q, want demo", cfg, b.Mode())
		}
		s, err := b.Restore(context.Background())
		if err != nil || s.User.ID != model.DemoUserID {
			t.Errorf("Restore = %+v, %v", s, err)
		}
	}
}

func TestOpenSQLite(t *testing.T) {
	b, err := Open(context.Background(), model.BackendConfig{Driver: model.DriverSQLite, DSN: ":memory:", UserID: "s1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if b.Mode() != gateway.ModeDirect {
		t.Errorf("Mode = %q", b.Mode())
	}
	s, err := b.Restore(context.Background())
	if err != nil || s.User.ID != "s1" {
		t.Errorf("Restore = %+v, %v", s, err)
	}
}

func TestOpenRESTUsesKeyringKey(t *testing.T) {
	var sawKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawKey = r.Header.Get("apikey")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	creds := credential.NewMemory()
	_ = creds.Set(credential.KeyAnonKey, "from-keyring")

	b, err := Open(context.Background(), model.BackendConfig{Driver: model.DriverREST, URL: srv.URL, TimeoutSec: 5, RequestsPerSec: 100}, creds)
	if err != nil {
		t.Fatal(err)
	}
	if b.Mode() != gateway.ModeRemote {
		t.Fatalf("Mode = %q, want remote", b.Mode())
	}
	if _, err := b.Gateway.ListCourses(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sawKey != "from-keyring" {
		t.Errorf("apikey = %q", sawKey)
	}

	if _, err := b.Restore(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Restore without token = %v, want ErrNoSession", err)
	}
}

func TestRestoreDropsRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`)
	}))
	defer srv.Close()

	creds := credential.NewMemory()
	_ = creds.Set(credential.KeyRefreshToken, "stale")

	b, err := Open(context.Background(), model.BackendConfig{Driver: model.DriverREST, URL: srv.URL, AnonKey: "k", TimeoutSec: 5, RequestsPerSec: 100}, creds)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Restore(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Restore = %v, want ErrNoSession", err)
	}
	if _, err := creds.Get(credential.KeyRefreshToken); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("stale refresh token kept: %v", err)
	}
}
