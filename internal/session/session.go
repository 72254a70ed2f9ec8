// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session implements C2: acquiring, verifying, and durably
// persisting the credential that every remote call carries.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/model"
	netprecheck "github.com/kaelmedia/vidharvest/internal/platform/net"
	"github.com/kaelmedia/vidharvest/internal/remote"
)

// Credential is the opaque session token set persisted to disk and
// attached as headers to every outbound request.
type Credential struct {
	Fields    map[string]string `json:"fields"`
	SavedAt   time.Time         `json:"saved_at"`
}

// AuthHeaders implements remote.SessionSource.
func (c *Credential) AuthHeaders() map[string]string {
	if c == nil {
		return nil
	}
	return c.Fields
}

// Authenticator performs the out-of-band interactive login this core
// delegates to an external collaborator (spec §1's explicit out-of-scope
// item): given a context, it returns a fresh Credential or an error.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Credential, error)
}

// Verifier issues a lightweight authenticated probe through C1.
type Verifier interface {
	Verify(ctx context.Context, cred *Credential) (*remote.Identity, error)
}

// Manager implements C2's login/verify/save/load operations.
type Manager struct {
	path           string
	auth           Authenticator
	verify         Verifier
	precheckHosts  []string
	precheckTimeout time.Duration
	maxRetries     int
}

// Config configures a Manager.
type Config struct {
	CredentialPath  string
	PrecheckHosts   []string
	PrecheckTimeout time.Duration
	MaxRetries      int
}

// New constructs a session Manager.
func New(cfg Config, auth Authenticator, verify Verifier) *Manager {
	return &Manager{
		path:            cfg.CredentialPath,
		auth:            auth,
		verify:          verify,
		precheckHosts:   cfg.PrecheckHosts,
		precheckTimeout: cfg.PrecheckTimeout,
		maxRetries:      cfg.MaxRetries,
	}
}

// Login implements spec §4.2's login(force) operation: absent force, it
// tries the persisted credential first; otherwise — and on its failure —
// it falls back to interactive authentication, retried with exponential
// spacing up to MaxRetries times.
func (m *Manager) Login(ctx context.Context, force bool) (*Credential, error) {
	if len(m.precheckHosts) > 0 {
		if err := netprecheck.PrecheckHosts(ctx, m.precheckHosts, m.precheckTimeout); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrNetworkUnavailable, err)
		}
	}

	if !force {
		if cred, err := m.Load(); err == nil && cred != nil {
			if ok, vErr := m.Verify(ctx, cred); ok && vErr == nil {
				return cred, nil
			}
			log.L().Warn().Msg("session: persisted credential failed verification, discarding")
		}
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries+1; attempt++ {
		cred, err := m.auth.Authenticate(ctx)
		if err == nil {
			if saveErr := m.Save(cred); saveErr != nil {
				log.L().Warn().Err(saveErr).Msg("session: failed to persist new credential")
			}
			return cred, nil
		}
		lastErr = err
		log.L().Warn().Err(err).Int("attempt", attempt).Msg("session: interactive login failed")
		if attempt <= m.maxRetries {
			if !sleepCtx(ctx, time.Duration(1<<(attempt-1))*time.Second) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("session: login failed after %d attempts: %w", m.maxRetries+1, lastErr)
}

// Verify issues a lightweight authenticated probe and reports whether the
// credential is still accepted by the remote service.
func (m *Manager) Verify(ctx context.Context, cred *Credential) (bool, error) {
	identity, err := m.verify.Verify(ctx, cred)
	if err != nil {
		if errors.Is(err, model.ErrAuthExpired) {
			return false, nil
		}
		return false, err
	}
	return identity != nil, nil
}

// Save atomically persists cred to the configured path.
func (m *Manager) Save(cred *Credential) error {
	cred.SavedAt = time.Now()
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode credential: %w", err)
	}

	pending, err := renameio.NewPendingFile(m.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("session: create pending credential file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("session: write credential: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("session: commit credential file: %w", err)
	}
	return nil
}

// Load reads the persisted credential, if any. A missing file is not an
// error: it returns (nil, nil).
func (m *Manager) Load() (*Credential, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read credential: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("session: decode credential: %w", err)
	}
	return &cred, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
