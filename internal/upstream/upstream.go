package upstream

import (
	"context"
	"strconv"
	"time"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/transform/wire"
)

// Request is the normalized outbound call: a wire-format request body
// already encoded for the provider's native protocol, plus the routing
// fields a Provider needs to address it.
type Request struct {
	Model   string
	Payload []byte
	Stream  bool
}

// Response is one complete (non-streaming) upstream response.
type Response struct {
	Payload []byte
	Usage   wire.Usage
}

// StreamHandler receives one raw upstream SSE data line at a time; a
// Provider calls it for every event instead of buffering, so long-running
// streams never hold the whole body in memory.
type StreamHandler func(raw []byte) error

// Provider is one upstream backend's execution surface. Concrete
// implementations live under internal/provider/*, one package per backend
// family (claudecode, codex, geminicli, vertex, openaicompat), grounded on
// the teacher's per-provider *Executor structs.
//
// A Provider may additionally implement AuthFailureHandler,
// UnavailableDecider, CredentialUpgrader, and SuccessHook; Attempt and
// AttemptStream check for each via a type assertion and fall back to the
// package defaults when a provider doesn't. This mirrors how the rest of
// this package extends behavior through optional interfaces rather than
// growing the required method set (see HTTPStatus/statusHinter below).
type Provider interface {
	Identifier() string
	Execute(ctx context.Context, entry *credential.Entry, req Request) (Response, error)
	ExecuteStream(ctx context.Context, entry *credential.Entry, req Request, handle StreamHandler) (wire.Usage, error)
	// Refresh renews entry's credentials (e.g. OAuth access token) and
	// returns the updated attributes/metadata to persist, or an error if
	// the credential cannot be refreshed and should be marked dead.
	Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error)
}

// AuthRetryKind tags the outcome of running a provider's on-auth-failure
// hook against a 401 or 403.
type AuthRetryKind int

const (
	// AuthRetryNone means the hook declined; fall through to the default
	// failure classification (credential marked dead).
	AuthRetryNone AuthRetryKind = iota
	// AuthRetryRetrySame means retry the same credential immediately
	// without marking it unavailable or reselecting.
	AuthRetryRetrySame
	// AuthRetryUpdateCredential means the credential was refreshed in
	// place; install Updated into the pool and retry with it.
	AuthRetryUpdateCredential
)

// AuthRetryAction is the result of a provider's on-auth-failure hook.
type AuthRetryAction struct {
	Kind    AuthRetryKind
	Updated *credential.Entry // set only when Kind == AuthRetryUpdateCredential
}

// AuthFailureHandler is the optional on-auth-failure hook. Providers that
// need RetrySame semantics, or a refresh path different from Refresh,
// implement this directly; everything else gets defaultAuthFailure's
// Refresh-based mapping.
type AuthFailureHandler interface {
	OnAuthFailure(ctx context.Context, entry *credential.Entry, failure error) (AuthRetryAction, error)
}

// UnavailableDecider is the optional failure-classification override.
// Providers with a non-default table (e.g. a backend whose 404 really does
// mean the credential itself is gone) implement this; everything else gets
// the package-level Classify table.
type UnavailableDecider interface {
	DecideUnavailable(err error) (FailureClass, time.Duration)
}

// CredentialUpgrader is the optional per-attempt credential hook, called
// after selection and before Execute so a provider can swap in a
// per-request variant (e.g. a region-pinned Vertex entry) without the pool
// itself ever holding that variant.
type CredentialUpgrader interface {
	UpgradeCredential(entry *credential.Entry) *credential.Entry
}

// SuccessHook is the optional on-upstream-success hook, called after every
// successful Execute/ExecuteStream so a provider can fold response-derived
// state (e.g. a capability flag learned from the response) back into the
// credential that served the request.
type SuccessHook interface {
	OnUpstreamSuccess(entry *credential.Entry, resp Response) *credential.Entry
}

// FailureClass is the outcome of classifying an upstream error.
type FailureClass int

const (
	// FailureRetry means try the next credential, this one is untouched.
	FailureRetry FailureClass = iota
	// FailureCooldown means disallow this credential for a bounded time
	// before retrying the next candidate.
	FailureCooldown
	// FailureDead means disallow this credential indefinitely.
	FailureDead
	// FailureTerminal means stop the whole attempt loop and surface the
	// error to the caller (e.g. a 400 the client itself caused).
	FailureTerminal
)

// Classify is the default failure classification table (SPEC_FULL.md
// §4.3's decide_unavailable default). 401 and 403 are handled earlier in
// Attempt/AttemptStream via the auth-failure hook and only reach this
// table when that hook declines, in which case the credential is dead.
func Classify(err error) (class FailureClass, cooldown time.Duration) {
	type statusHinter interface{ HTTPStatus() int }
	h, ok := err.(statusHinter)
	if !ok {
		return FailureRetry, 0
	}
	switch h.HTTPStatus() {
	case 401, 403:
		return FailureDead, 0
	case 404:
		return FailureTerminal, 0
	case 408:
		return FailureRetry, 0
	case 429:
		return FailureCooldown, retryAfterOrDefault(err, 30*time.Second)
	case 400, 413, 422:
		return FailureTerminal, 0
	default:
		if h.HTTPStatus() >= 500 {
			return FailureCooldown, 10 * time.Second
		}
		return FailureRetry, 0
	}
}

// retryAfterOrDefault reads a Retry-After header (seconds) off err if it
// carries one, falling back to fallback otherwise.
func retryAfterOrDefault(err error, fallback time.Duration) time.Duration {
	type headerHinter interface{ Header(key string) string }
	h, ok := err.(headerHinter)
	if !ok {
		return fallback
	}
	v := h.Header("Retry-After")
	if v == "" {
		return fallback
	}
	secs, convErr := strconv.Atoi(v)
	if convErr != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// classifyFor runs provider's UnavailableDecider override if it implements
// one, else the package default Classify table.
func classifyFor(provider Provider, err error) (FailureClass, time.Duration) {
	if d, ok := provider.(UnavailableDecider); ok {
		return d.DecideUnavailable(err)
	}
	return Classify(err)
}

// defaultAuthFailure is the fallback on-auth-failure hook: attempt
// Provider.Refresh and turn success into an UpdateCredential action.
func defaultAuthFailure(ctx context.Context, provider Provider, entry *credential.Entry) AuthRetryAction {
	refreshed, err := provider.Refresh(ctx, entry)
	if err != nil {
		return AuthRetryAction{Kind: AuthRetryNone}
	}
	return AuthRetryAction{Kind: AuthRetryUpdateCredential, Updated: refreshed}
}

// runAuthFailure dispatches to provider's AuthFailureHandler if present,
// else defaultAuthFailure.
func runAuthFailure(ctx context.Context, provider Provider, entry *credential.Entry, failure error) AuthRetryAction {
	if h, ok := provider.(AuthFailureHandler); ok {
		action, err := h.OnAuthFailure(ctx, entry, failure)
		if err != nil {
			return AuthRetryAction{Kind: AuthRetryNone}
		}
		return action
	}
	return defaultAuthFailure(ctx, provider, entry)
}

// isAuthFailure reports whether err carries the 401 or 403 status that
// triggers the auth-failure hook ahead of ordinary classification.
func isAuthFailure(err error) bool {
	status := HTTPStatus(err)
	return status == 401 || status == 403
}

func upgradeFor(provider Provider, entry *credential.Entry) *credential.Entry {
	if u, ok := provider.(CredentialUpgrader); ok {
		if upgraded := u.UpgradeCredential(entry); upgraded != nil {
			return upgraded
		}
	}
	return entry
}

// MaxAttempts bounds the number of credentials tried for one inbound
// request before giving up and surfacing the last failure.
const MaxAttempts = 4

// Attempt drives req to completion against pool, selecting a credential
// per try via pool.Select(provider, req.Model), classifying failures, and
// retrying up to MaxAttempts times.
func Attempt(ctx context.Context, pool *credential.Pool, provider Provider, req Request) (Response, error) {
	var lastErr error
	entry, ok := pool.Select(provider.Identifier(), req.Model)
	for i := 0; i < MaxAttempts; i++ {
		if !ok {
			if lastErr != nil {
				return Response{}, lastErr
			}
			return Response{}, StatusError{Code: 503, Body: "no credential available"}
		}
		entry = upgradeFor(provider, entry)

		resp, err := provider.Execute(ctx, entry, req)
		if err == nil {
			if h, hok := provider.(SuccessHook); hok {
				if updated := h.OnUpstreamSuccess(entry, resp); updated != nil {
					pool.ReplaceCredential(entry.ID, updated.Attributes, updated.Metadata)
				}
			}
			return resp, nil
		}
		lastErr = err

		if isAuthFailure(err) {
			action := runAuthFailure(ctx, provider, entry, err)
			switch action.Kind {
			case AuthRetryUpdateCredential:
				pool.ReplaceCredential(entry.ID, action.Updated.Attributes, action.Updated.Metadata)
				entry = action.Updated
				continue
			case AuthRetryRetrySame:
				continue
			case AuthRetryNone:
				// fall through to default classification below
			}
		}

		class, cooldown := classifyFor(provider, err)
		switch class {
		case FailureTerminal:
			return Response{}, err
		case FailureDead:
			pool.MarkUnavailable(entry.ID, credential.DisallowScope{Kind: credential.ScopeAllModels}, time.Time{}, err.Error())
		case FailureCooldown:
			pool.MarkUnavailable(entry.ID, credential.DisallowScope{Kind: credential.ScopeModel, Value: req.Model}, time.Now().Add(cooldown), err.Error())
		case FailureRetry:
			// leave the credential untouched, just try the next one
		}
		entry, ok = pool.Select(provider.Identifier(), req.Model)
	}
	return Response{}, lastErr
}

// AttemptStream is Attempt's streaming counterpart: handle is invoked for
// every upstream SSE data line of whichever credential ultimately
// succeeds, never replayed across retries (a retry only happens before the
// first byte of a successful attempt has been handed to handle).
func AttemptStream(ctx context.Context, pool *credential.Pool, provider Provider, req Request, handle StreamHandler) (wire.Usage, error) {
	var lastErr error
	entry, ok := pool.Select(provider.Identifier(), req.Model)
	for i := 0; i < MaxAttempts; i++ {
		if !ok {
			if lastErr != nil {
				return wire.Usage{}, lastErr
			}
			return wire.Usage{}, StatusError{Code: 503, Body: "no credential available"}
		}
		entry = upgradeFor(provider, entry)

		usage, err := provider.ExecuteStream(ctx, entry, req, handle)
		if err == nil {
			if h, hok := provider.(SuccessHook); hok {
				if updated := h.OnUpstreamSuccess(entry, Response{Usage: usage}); updated != nil {
					pool.ReplaceCredential(entry.ID, updated.Attributes, updated.Metadata)
				}
			}
			return usage, nil
		}
		lastErr = err

		if isAuthFailure(err) {
			action := runAuthFailure(ctx, provider, entry, err)
			switch action.Kind {
			case AuthRetryUpdateCredential:
				pool.ReplaceCredential(entry.ID, action.Updated.Attributes, action.Updated.Metadata)
				entry = action.Updated
				continue
			case AuthRetryRetrySame:
				continue
			case AuthRetryNone:
			}
		}

		class, cooldown := classifyFor(provider, err)
		switch class {
		case FailureTerminal:
			return wire.Usage{}, err
		case FailureDead:
			pool.MarkUnavailable(entry.ID, credential.DisallowScope{Kind: credential.ScopeAllModels}, time.Time{}, err.Error())
		case FailureCooldown:
			pool.MarkUnavailable(entry.ID, credential.DisallowScope{Kind: credential.ScopeModel, Value: req.Model}, time.Now().Add(cooldown), err.Error())
		case FailureRetry:
		}
		entry, ok = pool.Select(provider.Identifier(), req.Model)
	}
	return wire.Usage{}, lastErr
}
