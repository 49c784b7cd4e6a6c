package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"
)

// ErrMissingState means the callback's state_id didn't resolve to a
// pending login, either because none was supplied and none could be
// inferred or because the one supplied has already expired/been used.
var ErrMissingState = errors.New("oauth: missing or expired state")

// ErrAmbiguousState means the callback supplied no state_id and more than
// one authorization-code login is currently in flight, so a single-pending
// fallback can't pick one.
var ErrAmbiguousState = errors.New("oauth: ambiguous_state")

// ProviderConfig is one OAuth-gated upstream's client registration, the
// fields oauth2.Config needs plus the device-auth endpoint when the
// provider supports it (codex does; claude_code and gemini_cli use the
// authorization-code+PKCE flow only).
type ProviderConfig struct {
	Name             string
	ClientID         string
	ClientSecret     string
	AuthURL          string
	TokenURL         string
	RedirectURL      string
	Scopes           []string
	DeviceAuthURL    string // empty if the provider has no device flow
	ExtraAuthParams  map[string]string
}

func (c ProviderConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL},
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
	}
}

// Token is the subset of an OAuth token response this gateway persists
// into a credential.Entry's Metadata map.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	IDClaims     map[string]any // unverified JWT payload claims, e.g. account id
}

// Orchestrator drives the login/refresh lifecycle for every OAuth-gated
// provider registered with it.
type Orchestrator struct {
	states    *StateStore
	providers map[string]ProviderConfig
}

func NewOrchestrator(states *StateStore) *Orchestrator {
	return &Orchestrator{states: states, providers: make(map[string]ProviderConfig)}
}

func (o *Orchestrator) Register(cfg ProviderConfig) {
	o.providers[cfg.Name] = cfg
}

// StartAuthorizationCode begins a PKCE login for provider, returning the
// URL the caller should redirect the user's browser to.
func (o *Orchestrator) StartAuthorizationCode(provider string) (authorizeURL string, stateID string, err error) {
	cfg, ok := o.providers[provider]
	if !ok {
		return "", "", fmt.Errorf("oauth: unknown provider %q", provider)
	}
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", "", err
	}
	pending := o.states.Start(provider, FlowAuthorizationCode, pkce)

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	for k, v := range cfg.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	url := cfg.oauth2Config().AuthCodeURL(pending.StateID, opts...)
	return url, pending.StateID, nil
}

// OpenBrowser launches the system browser at url. The HTTP login routes
// in internal/api do not call it.
func OpenBrowser(url string) error {
	return open.Run(url)
}

// ResolveState returns the state_id a callback should proceed with:
// explicitState verbatim when non-empty, else the sole authorization-code
// login currently pending. It returns ErrAmbiguousState when explicitState
// is empty and more than one login is pending, or ErrMissingState when
// none are.
func (o *Orchestrator) ResolveState(explicitState string) (string, error) {
	if explicitState != "" {
		return explicitState, nil
	}
	pending := o.states.PendingAuthorizationCodeStates()
	switch len(pending) {
	case 0:
		return "", ErrMissingState
	case 1:
		return pending[0].StateID, nil
	default:
		return "", ErrAmbiguousState
	}
}

// Callback completes a pending authorization-code login: looks up
// stateID, exchanges code for a token using the stored PKCE verifier, and
// returns the resulting Token.
func (o *Orchestrator) Callback(ctx context.Context, stateID, code string) (string, Token, error) {
	pending, ok := o.states.Take(stateID)
	if !ok {
		return "", Token{}, fmt.Errorf("oauth: unknown or expired state %q: %w", stateID, ErrMissingState)
	}
	cfg, ok := o.providers[pending.Provider]
	if !ok {
		return "", Token{}, fmt.Errorf("oauth: unknown provider %q", pending.Provider)
	}
	tok, err := cfg.oauth2Config().Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pending.PKCE.CodeVerifier))
	if err != nil {
		return pending.Provider, Token{}, fmt.Errorf("oauth: token exchange failed: %w", err)
	}
	return pending.Provider, tokenFromOAuth2(tok), nil
}

// DeviceAuthResult is returned to the caller so they can show a
// verification URL + user code to the person logging in.
type DeviceAuthResult struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresIn       time.Duration
}

// StartDevice begins the device-authorization flow (codex), returning the
// code the caller displays and polls with.
func (o *Orchestrator) StartDevice(ctx context.Context, provider string) (DeviceAuthResult, error) {
	cfg, ok := o.providers[provider]
	if !ok || cfg.DeviceAuthURL == "" {
		return DeviceAuthResult{}, fmt.Errorf("oauth: provider %q has no device flow", provider)
	}
	var resp struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		Interval        int    `json:"interval"`
		ExpiresIn       int    `json:"expires_in"`
	}
	if err := postForm(ctx, cfg.DeviceAuthURL, map[string]string{
		"client_id": cfg.ClientID,
		"scope":     strings.Join(cfg.Scopes, " "),
	}, &resp); err != nil {
		return DeviceAuthResult{}, err
	}
	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	o.states.StartDevice(provider, resp.DeviceCode, interval)
	return DeviceAuthResult{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Interval:        interval,
		ExpiresIn:       time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// ErrDevicePending is returned by PollDevice while the user has not yet
// completed the browser step; callers should wait the returned
// RetryAfter before polling again, per SPEC_FULL.md §12's carried-over
// "poll-pending 409 carries a retry_after hint" feature.
type ErrDevicePending struct {
	RetryAfter time.Duration
}

func (e ErrDevicePending) Error() string { return "oauth: device authorization pending" }

// PollDevice checks whether the user has completed a device-auth login.
func (o *Orchestrator) PollDevice(ctx context.Context, provider, deviceCode string) (Token, error) {
	pending, ok := o.states.Peek(deviceCode)
	if !ok {
		return Token{}, fmt.Errorf("oauth: unknown or expired device code")
	}
	cfg, ok := o.providers[provider]
	if !ok {
		return Token{}, fmt.Errorf("oauth: unknown provider %q", provider)
	}
	var resp struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int    `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	err := postForm(ctx, cfg.TokenURL, map[string]string{
		"client_id":   cfg.ClientID,
		"device_code": deviceCode,
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
	}, &resp)
	if err != nil {
		return Token{}, err
	}
	if resp.Error == "authorization_pending" || resp.Error == "slow_down" {
		return Token{}, ErrDevicePending{RetryAfter: pending.PollInterval}
	}
	if resp.Error != "" {
		o.states.Complete(deviceCode)
		return Token{}, fmt.Errorf("oauth: device poll failed: %s: %s", resp.Error, resp.ErrorDescription)
	}
	o.states.Complete(deviceCode)
	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// Refresh exchanges a refresh token for a fresh access token.
func (o *Orchestrator) Refresh(ctx context.Context, provider, refreshToken string) (Token, error) {
	cfg, ok := o.providers[provider]
	if !ok {
		return Token{}, fmt.Errorf("oauth: unknown provider %q", provider)
	}
	src := cfg.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Token{}, fmt.Errorf("oauth: refresh failed: %w", err)
	}
	return tokenFromOAuth2(tok), nil
}

func tokenFromOAuth2(tok *oauth2.Token) Token {
	out := Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresAt: tok.Expiry}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		out.IDClaims = decodeJWTClaimsUnverified(idToken)
	}
	return out
}

// decodeJWTClaimsUnverified reads an ID token's payload segment without
// verifying its signature — this gateway trusts the TLS channel the
// token arrived over, the same posture the teacher's claude/codex OAuth
// clients take (neither verifies id_token signatures either).
func decodeJWTClaimsUnverified(idToken string) map[string]any {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return claims
}

func postForm(ctx context.Context, url string, fields map[string]string, out any) error {
	form := make(map[string][]string, len(fields))
	for k, v := range fields {
		form[k] = []string{v}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(encodeForm(fields)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func encodeForm(fields map[string]string) string {
	var b strings.Builder
	first := true
	for k, v := range fields {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(v, " ", "%20"))
	}
	return b.String()
}
