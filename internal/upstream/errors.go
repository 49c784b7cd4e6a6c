// Package upstream implements the attempt pipeline that drives one
// inbound request to completion against a credential.Pool: select a
// credential, hand it and the request to an UpstreamProvider, classify
// failures into retry/cooldown/dead decisions, and retry against the next
// candidate up to a fixed attempt cap.
//
// Grounded on the teacher's internal/runtime/executor package: the
// Execute(ctx, auth, req, opts) signature of every *Executor struct there
// (claude_executor.go, codex_executor.go, gemini_executor.go, ...) and its
// statusErr type (openai_compat_executor.go) for carrying an HTTP status
// code alongside a response body through a plain error value.
package upstream

import (
	"fmt"
	"net/http"
)

// StatusError is a closed error type carrying the HTTP status an upstream
// call failed with, so failure classification never has to re-parse an
// error string. Grounded on the teacher's statusErr
// (internal/runtime/executor/openai_compat_executor.go).
type StatusError struct {
	Code    int
	Body    string
	Headers http.Header // response headers, notably Retry-After
}

func (e StatusError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("status %d", e.Code)
}

// HTTPStatus implements the status-hint interface spec §7 requires of
// every error type that crosses the upstream/dispatch boundary.
func (e StatusError) HTTPStatus() int { return e.Code }

// Header implements the header-hint interface Classify uses to read
// Retry-After off a 429 without caring which concrete error type produced
// it (httputil's statusError carries the same method).
func (e StatusError) Header(key string) string { return e.Headers.Get(key) }

// HTTPStatus extracts the status-hint from err if it carries one,
// defaulting to 502 (the caller never invented the failure, the upstream
// did) when it doesn't.
func HTTPStatus(err error) int {
	type statusHinter interface{ HTTPStatus() int }
	if h, ok := err.(statusHinter); ok {
		return h.HTTPStatus()
	}
	return 502
}
