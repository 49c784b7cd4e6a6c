package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/module-gw/gproxy/internal/config"
	"github.com/module-gw/gproxy/internal/oauth"
	"github.com/module-gw/gproxy/internal/storage/boltstore"
)

func TestBuildGatewayAssignsFirstProviderPerProtocol(t *testing.T) {
	cfg := &config.Config{Providers: []config.ProviderConfig{
		{Name: "anthropic", Kind: "claude_code"},
		{Name: "anthropic-2", Kind: "claude_code"},
		{Name: "openai", Kind: "openai_compat"},
	}}
	gw, routes := buildGateway(cfg)

	if routes.Claude != "anthropic" {
		t.Errorf("routes.Claude = %q, want the first configured claude_code provider", routes.Claude)
	}
	if routes.OpenAIChat != "openai" {
		t.Errorf("routes.OpenAIChat = %q, want openai", routes.OpenAIChat)
	}
	if _, ok := gw.Route("anthropic-2"); !ok {
		t.Error("expected the second claude_code provider to still be registered as its own route")
	}
}

func TestBuildGatewaySkipsUnknownProviderKind(t *testing.T) {
	cfg := &config.Config{Providers: []config.ProviderConfig{
		{Name: "mystery", Kind: "does-not-exist"},
	}}
	gw, routes := buildGateway(cfg)

	if routes.Claude != "" || routes.OpenAIChat != "" {
		t.Errorf("routes = %+v, want no routes assigned for an unrecognized kind", routes)
	}
	if _, ok := gw.Route("mystery"); ok {
		t.Error("expected the unrecognized provider to not be registered")
	}
}

func TestBuildGatewayDefaultsZeroWeightToOne(t *testing.T) {
	cfg := &config.Config{Providers: []config.ProviderConfig{
		{Name: "anthropic", Kind: "claude_code", Credentials: []config.CredentialConfig{{ID: "c1", Weight: 0}}},
	}}
	gw, _ := buildGateway(cfg)
	route, ok := gw.Route("anthropic")
	if !ok {
		t.Fatal("expected the anthropic route to be registered")
	}
	entries := route.Pool.Snapshot().Entries
	if len(entries) != 1 || entries[0].Weight != 1 {
		t.Errorf("entries = %+v, want a single entry defaulted to weight 1", entries)
	}
}

func TestStateTTLDefaultsWhenUnset(t *testing.T) {
	if got := stateTTL(&config.Config{}); got != 10*time.Minute {
		t.Errorf("stateTTL = %v, want the 10 minute default", got)
	}
}

func TestStateTTLUsesConfiguredSeconds(t *testing.T) {
	cfg := &config.Config{OAuth: config.OAuthConfig{StateTTLSeconds: 30}}
	if got := stateTTL(cfg); got != 30*time.Second {
		t.Errorf("stateTTL = %v, want 30s", got)
	}
}

func TestPersistTokenAddsCredentialToRouteAndStorage(t *testing.T) {
	cfg := &config.Config{Providers: []config.ProviderConfig{
		{Name: "anthropic", Kind: "claude_code"},
	}}
	gw, _ := buildGateway(cfg)

	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("boltstore.Open: %v", err)
	}
	defer store.Close()

	persistToken(store, gw, "anthropic", oauth.Token{AccessToken: "abcdef1234567890"})

	route, _ := gw.Route("anthropic")
	entries := route.Pool.Snapshot().Entries
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want the fresh oauth credential appended", entries)
	}
	if entries[0].Metadata["access_token"] != "abcdef1234567890" {
		t.Errorf("entries[0].Metadata = %+v", entries[0].Metadata)
	}

	creds, err := store.ListCredentials()
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(creds) != 1 {
		t.Errorf("stored credentials = %+v, want one persisted row", creds)
	}
}

func TestPersistTokenDiscardsUnknownProvider(t *testing.T) {
	gw, _ := buildGateway(&config.Config{})
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("boltstore.Open: %v", err)
	}
	defer store.Close()

	persistToken(store, gw, "unknown", oauth.Token{AccessToken: "tok"})

	if _, ok := gw.Route("unknown"); ok {
		t.Error("expected no route to have been created for persistToken's unknown provider")
	}
}
