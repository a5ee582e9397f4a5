// Package backend selects the gateway implementation from configuration
// and persists the signed-in session.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/classroom/internal/credential"
	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/gateway/rest"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/store"
)

// ErrNoSession means no stored session could be restored.
var ErrNoSession = errors.New("not signed in")

// localUserID is used by the SQL drivers when no user id is configured.
const localUserID = "local"

// Backend bundles the data gateway with its authenticator.
type Backend struct {
	Gateway gateway.Gateway
	Auth    gateway.Authenticator

	creds credential.Store
	close func() error
}

// Open builds the backend described by cfg. The anon key falls back to
// the credential store when the config leaves it empty; a backend whose
// credentials are still missing opens in demo mode.
func Open(ctx context.Context, cfg model.BackendConfig, creds credential.Store) (*Backend, error) {
	if creds == nil {
		creds = credential.NewMemory()
	}
	if cfg.Driver == model.DriverREST && cfg.AnonKey == "" {
		if key, err := creds.Get(credential.KeyAnonKey); err == nil {
			cfg.AnonKey = key
		} else if !errors.Is(err, credential.ErrNotFound) {
			logging.Warn().Err(err).Msg("reading anon key from keyring")
		}
	}

	if cfg.IsDemo() {
		logging.Info().Str("driver", cfg.Driver).Msg("backend not configured, running in demo mode")
		return &Backend{
			Gateway: gateway.Unconfigured{},
			Auth:    gateway.Unconfigured{},
			creds:   creds,
			close:   func() error { return nil },
		}, nil
	}

	switch cfg.Driver {
	case model.DriverSQLite, model.DriverPostgres:
		s, err := store.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening %s backend: %w", cfg.Driver, err)
		}
		userID := cfg.UserID
		if userID == "" {
			userID = localUserID
		}
		logging.Info().Str("driver", cfg.Driver).Str("user", userID).Msg("direct SQL backend opened")
		return &Backend{
			Gateway: s,
			Auth:    gateway.StaticAuth{User: model.User{ID: userID, Role: model.RoleStudent}},
			creds:   creds,
			close:   s.Close,
		}, nil

	default:
		c := rest.New(cfg.URL, cfg.AnonKey, rest.Options{
			Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
			RequestsPerSec: cfg.RequestsPerSec,
		})
		logging.Info().Str("url", cfg.URL).Msg("hosted backend configured")
		return &Backend{
			Gateway: c,
			Auth:    c,
			creds:   creds,
			close:   func() error { return nil },
		}, nil
	}
}

// Mode reports which implementation backs the gateway.
func (b *Backend) Mode() gateway.Mode {
	return b.Gateway.Mode()
}

// Close releases database handles.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Restore resumes the previous session. The hosted backend exchanges the
// stored refresh token; the other modes need no credentials.
func (b *Backend) Restore(ctx context.Context) (*model.Session, error) {
	if b.Mode() != gateway.ModeRemote {
		return b.Auth.Refresh(ctx, "")
	}

	token, err := b.creds.Get(credential.KeyRefreshToken)
	if errors.Is(err, credential.ErrNotFound) || token == "" {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("reading refresh token: %w", err)
	}

	s, err := b.Auth.Refresh(ctx, token)
	if err != nil {
		if gateway.IsAuthError(err) {
			_ = b.creds.Delete(credential.KeyRefreshToken)
			return nil, ErrNoSession
		}
		return nil, err
	}
	if err := b.Remember(s); err != nil {
		logging.Warn().Err(err).Msg("storing refreshed token")
	}
	return s, nil
}

// Remember stores the refresh token of s for the next start.
func (b *Backend) Remember(s *model.Session) error {
	if s == nil || s.RefreshToken == "" {
		return nil
	}
	return b.creds.Set(credential.KeyRefreshToken, s.RefreshToken)
}

// Forget signs out and drops the stored refresh token.
func (b *Backend) Forget(ctx context.Context, s *model.Session) error {
	signOutErr := b.Auth.SignOut(ctx, s)
	if err := b.creds.Delete(credential.KeyRefreshToken); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return signOutErr
}
