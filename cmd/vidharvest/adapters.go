// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/remote"
	"github.com/kaelmedia/vidharvest/internal/session"
)

// credHolder is the remote.SessionSource this CLI hands to the transport
// client at construction time, before a credential exists. Login fills
// it in once interactive authentication (or a cached credential)
// succeeds; every subsequent request picks up the current value.
type credHolder struct {
	mu   sync.Mutex
	cred *session.Credential
}

func (h *credHolder) AuthHeaders() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cred == nil {
		return nil
	}
	return h.cred.AuthHeaders()
}

func (h *credHolder) set(cred *session.Credential) {
	h.mu.Lock()
	h.cred = cred
	h.mu.Unlock()
}

// envAuthenticator is the out-of-band interactive login the core delegates
// to an external collaborator (spec §1). This CLI is deliberately thin:
// it reads a pre-obtained session document from VIDHARVEST_SESSION_JSON
// (a file path) rather than driving an interactive flow itself.
type envAuthenticator struct{}

func newEnvAuthenticator() *envAuthenticator { return &envAuthenticator{} }

func (a *envAuthenticator) Authenticate(ctx context.Context) (*session.Credential, error) {
	path := os.Getenv("VIDHARVEST_SESSION_JSON")
	if path == "" {
		return nil, errors.New("interactive authentication is not implemented by this CLI; set VIDHARVEST_SESSION_JSON to a credential file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &session.Credential{Fields: fields}, nil
}

// identityVerifier issues the lightweight authenticated probe C2 needs,
// reusing the already-constructed transport client.
type identityVerifier struct {
	client *remote.Client
	holder *credHolder
}

func newIdentityVerifier(client *remote.Client, holder *credHolder) *identityVerifier {
	return &identityVerifier{client: client, holder: holder}
}

func (v *identityVerifier) Verify(ctx context.Context, cred *session.Credential) (*remote.Identity, error) {
	v.holder.set(cred)
	var identity remote.Identity
	if err := v.client.Request(ctx, "GET", "/user/identity", nil, nil, &identity); err != nil {
		if errors.Is(err, model.ErrAuthExpired) {
			return nil, model.ErrAuthExpired
		}
		return nil, err
	}
	return &identity, nil
}
