// Package main is the entry point for the gproxy gateway server: it loads
// configuration, wires logging/storage/credential pools/providers/OAuth,
// and serves the three inbound protocol surfaces over one gin.Engine.
// Grounded on the teacher's cmd/server/main.go flag-parsing and
// config-driven bootstrap shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/module-gw/gproxy/internal/api"
	"github.com/module-gw/gproxy/internal/config"
	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/logging"
	"github.com/module-gw/gproxy/internal/oauth"
	"github.com/module-gw/gproxy/internal/provider/claudecode"
	"github.com/module-gw/gproxy/internal/provider/codex"
	"github.com/module-gw/gproxy/internal/provider/geminicli"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/provider/openaicompat"
	"github.com/module-gw/gproxy/internal/provider/vertex"
	"github.com/module-gw/gproxy/internal/storage"
	"github.com/module-gw/gproxy/internal/storage/boltstore"
	"github.com/module-gw/gproxy/internal/upstream"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gproxy: %v\n", err)
		os.Exit(1)
	}

	logHandle, err := logging.Setup(cfg.LogFile, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gproxy: logging setup: %v\n", err)
		os.Exit(1)
	}
	defer logHandle.Close()

	store, err := boltstore.Open(cfg.StoragePath)
	if err != nil {
		log.Fatalf("gproxy: open storage: %v", err)
	}
	defer store.Close()

	if cfg.AdminAPIKey != "" {
		if err := store.EnsureAdminUser(cfg.AdminAPIKey); err != nil {
			log.Fatalf("gproxy: ensure admin user: %v", err)
		}
	}

	gw, routes := buildGateway(cfg)

	states := oauth.NewStateStore(stateTTL(cfg))
	orch := oauth.NewOrchestrator(states)
	for _, c := range cfg.OAuth.Clients {
		orch.Register(oauth.ProviderConfig{
			Name:            c.Provider,
			ClientID:        c.ClientID,
			ClientSecret:    c.ClientSecret,
			AuthURL:         c.AuthURL,
			TokenURL:        c.TokenURL,
			RedirectURL:     c.RedirectURL,
			Scopes:          c.Scopes,
			DeviceAuthURL:   c.DeviceAuthURL,
			ExtraAuthParams: c.ExtraParams,
		})
	}

	tokenSink := func(provider string, tok oauth.Token) {
		persistToken(store, gw, provider, tok)
	}

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		log.Infof("config changed, rebuilding gateway routes")
		newGw, _ := buildGateway(next)
		*gw = *newGw
	})
	if err != nil {
		log.Warnf("gproxy: config watcher disabled: %v", err)
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	srv := api.NewServer(cfg.Port, cfg.Debug, gw, routes, cfg.AdminAPIKey, orch, tokenSink)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("gproxy: server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("gproxy: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Errorf("gproxy: shutdown: %v", err)
	}
}

func stateTTL(cfg *config.Config) time.Duration {
	if cfg.OAuth.StateTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(cfg.OAuth.StateTTLSeconds) * time.Second
}

// buildGateway constructs one gateway.Route per configured provider and
// returns the gateway plus the route names api.Server binds its protocol
// surfaces to (the first configured provider of each native protocol
// family wins each surface).
func buildGateway(cfg *config.Config) (*gateway.Gateway, api.Routes) {
	gw := gateway.New()
	var routes api.Routes

	if cfg.ProxyURL != "" {
		transport, err := httputil.SOCKS5Transport(cfg.ProxyURL)
		if err != nil {
			log.Warnf("gproxy: proxy-url %q disabled: %v", cfg.ProxyURL, err)
		} else {
			gw.Transport = transport
		}
	}

	for _, pc := range cfg.Providers {
		var up upstream.Provider
		var proto constant.Protocol
		var kind credential.Kind
		switch pc.Kind {
		case "claude_code":
			up, proto, kind = claudecode.New(), constant.Claude, credential.KindClaudeCode
		case "codex":
			up, proto, kind = codex.New(), constant.OpenAIResponse, credential.KindCodex
		case "gemini_cli":
			up, proto, kind = geminicli.New(), constant.Gemini, credential.KindGeminiCLI
		case "vertex":
			up, proto, kind = vertex.New(), constant.Gemini, credential.KindVertex
		case "openai_compat":
			up, proto, kind = openaicompat.New(), constant.OpenAIChat, credential.KindOpenAICompat
		default:
			log.Warnf("gproxy: unknown provider kind %q for %q, skipping", pc.Kind, pc.Name)
			continue
		}

		entries := make([]*credential.Entry, 0, len(pc.Credentials))
		for _, cc := range pc.Credentials {
			weight := cc.Weight
			if weight <= 0 {
				weight = 1
			}
			entries = append(entries, &credential.Entry{
				ID:         cc.ID,
				Provider:   up.Identifier(),
				Kind:       kind,
				Enabled:    cc.EnabledOrDefault(),
				Weight:     weight,
				Attributes: cc.Attributes,
				Metadata:   map[string]any{},
			})
		}
		pool := credential.NewPool(entries)

		table := dispatch.NativeTable(proto)
		gw.Register(&gateway.Route{Name: pc.Name, Protocol: proto, Table: &table, Pool: pool, Upstream: up})

		switch proto {
		case constant.Claude:
			if routes.Claude == "" {
				routes.Claude = pc.Name
			}
		case constant.Gemini:
			if routes.Gemini == "" {
				routes.Gemini = pc.Name
			}
		case constant.OpenAIChat:
			if routes.OpenAIChat == "" {
				routes.OpenAIChat = pc.Name
			}
		case constant.OpenAIResponse:
			if routes.OpenAIResp == "" {
				routes.OpenAIResp = pc.Name
			}
		}
	}

	return gw, routes
}

// persistToken stores a freshly completed OAuth login as both a storage
// row (durable) and a live credential pool entry (immediately usable),
// matching provider by name against the routes the gateway already knows.
func persistToken(store storage.Store, gw *gateway.Gateway, provider string, tok oauth.Token) {
	route, ok := gw.Route(provider)
	if !ok {
		log.Warnf("gproxy: oauth token for unknown provider %q discarded", provider)
		return
	}
	metadata := map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_at":    tok.ExpiresAt,
	}
	for k, v := range tok.IDClaims {
		metadata[k] = v
	}
	entry := &credential.Entry{
		ID:       provider + "-" + tok.AccessToken[:min(8, len(tok.AccessToken))],
		Provider: route.Upstream.Identifier(),
		Enabled:  true,
		Metadata: metadata,
		Weight:   1,
	}
	route.Pool.Update(func(entries []*credential.Entry) []*credential.Entry {
		return append(entries, entry)
	})

	if _, err := store.UpsertCredential(storage.AdminCredentialInput{Metadata: metadata, Weight: 1}); err != nil {
		log.Errorf("gproxy: persist oauth credential: %v", err)
	}
}
