// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeHost(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain host", in: "Example.com.", want: "example.com"},
		{name: "ip literal", in: "192.0.2.10", want: "192.0.2.10"},
		{name: "scheme rejected", in: "https://example.com", wantErr: true},
		{name: "path rejected", in: "example.com/path", wantErr: true},
		{name: "userinfo rejected", in: "user@example.com", wantErr: true},
		{name: "port rejected", in: "example.com:443", wantErr: true},
		{name: "empty rejected", in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeHost(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NormalizeHost(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("NormalizeHost(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveHostIPsLiteral(t *testing.T) {
	ips, err := ResolveHostIPs(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.ParseIP("127.0.0.1")) {
		t.Errorf("unexpected ips: %v", ips)
	}
}

func TestPrecheckHostReportsUnreachableLoopback443(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, _, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}

	// A direct TCP dial against the test server's port isn't exercised by
	// PrecheckHost (which hardcodes 443), so this only validates that a
	// malformed / unreachable host surfaces ErrHostUnreachable.
	err = PrecheckHost(context.Background(), host, 50*time.Millisecond)
	if err == nil {
		t.Skip("loopback 443 happened to be reachable in this sandbox")
	}
	if _, ok := err.(*ErrHostUnreachable); !ok {
		t.Errorf("expected ErrHostUnreachable, got %T: %v", err, err)
	}
}

func TestPrecheckHostsAllUnreachable(t *testing.T) {
	err := PrecheckHosts(context.Background(), []string{"invalid..host"}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected error when all hosts are unreachable")
	}
}

func TestPrecheckHostsEmptyList(t *testing.T) {
	if err := PrecheckHosts(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for empty host list")
	}
}
