package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vyrodovalexey/itemtracker/internal/auth"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	// Arrange
	id := &auth.Identity{Scheme: auth.SchemeAPIKey, Subject: "dashboard", ReadOnly: true}

	// Act
	ctx := auth.WithIdentity(context.Background(), id)
	got, ok := auth.FromContext(ctx)

	// Assert
	if !ok || got != id {
		t.Fatalf("FromContext() = %v, %v, want stored identity", got, ok)
	}
}

func TestFromContext_Missing(t *testing.T) {
	t.Parallel()

	if _, ok := auth.FromContext(context.Background()); ok {
		t.Error("FromContext() ok = true on empty context")
	}
}

func TestIdentity_CanEdit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   *auth.Identity
		want bool
	}{
		{name: "no identity", id: nil, want: true},
		{name: "editor", id: &auth.Identity{Subject: "alice"}, want: true},
		{name: "viewer", id: &auth.Identity{Subject: "tv", ReadOnly: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.id.CanEdit(); got != tt.want {
				t.Errorf("CanEdit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       string
		basicUsers string
		apiKeys    string
		wantNil    bool
		wantScheme auth.Scheme
		wantErr    error
		anyErr     bool
	}{
		{name: "none", mode: "none", wantNil: true},
		{name: "empty mode", mode: "", wantNil: true},
		{name: "basic", mode: "basic", basicUsers: "alice:hash", wantScheme: auth.SchemeBasic},
		{name: "apikey", mode: "apikey", apiKeys: "k1:svc", wantScheme: auth.SchemeAPIKey},
		{name: "multi", mode: "multi", basicUsers: "alice:hash", apiKeys: "k1:svc", wantScheme: auth.SchemeMulti},
		{name: "multi with keys only", mode: "multi", apiKeys: "k1:svc", wantScheme: auth.SchemeMulti},
		{name: "multi without config", mode: "multi", anyErr: true},
		{name: "basic without users", mode: "basic", anyErr: true},
		{name: "unknown", mode: "oidc", wantErr: auth.ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			a, err := auth.New(tt.mode, tt.basicUsers, tt.apiKeys)

			// Assert
			if tt.anyErr || tt.wantErr != nil {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if tt.wantNil {
				if a != nil {
					t.Errorf("New() = %v, want nil", a)
				}
				return
			}
			if a.Scheme() != tt.wantScheme {
				t.Errorf("Scheme() = %s, want %s", a.Scheme(), tt.wantScheme)
			}
		})
	}
}
