// Package claudecode implements the Claude Code OAuth-backed upstream: the
// same api.anthropic.com/v1/messages endpoint a first-party API key would
// hit, but authenticated with the Claude Code OAuth token and carrying the
// Claude Code client's exact header fingerprint, which the upstream
// requires to accept the (otherwise unentitled) OAuth token.
//
// Grounded on internal/runtime/executor/claude_executor.go's
// applyClaudeHeaders and its ClaudeCodeInstructions system-prompt
// injection, kept here as one of the supplemented features named in
// SPEC_FULL.md §12. This package injects the instructions into every
// request, whatever the model.
package claudecode

import (
	"bytes"
	"context"
	"net/http"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SystemInstructions is prepended to every request's system prompt the
// same way the teacher's misc.ClaudeCodeInstructions is: the upstream
// checks for it to authorize traffic from the OAuth-scoped Claude Code
// token rather than a billed API key.
const SystemInstructions = "You are Claude Code, Anthropic's official CLI for Claude."

const defaultBaseURL = "https://api.anthropic.com"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Identifier() string { return "claude_code" }

func (p *Provider) buildRequest(ctx context.Context, entry *credential.Entry, req upstream.Request, stream bool) (*http.Request, error) {
	baseURL := entry.Attributes["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	body := bytes.Clone(req.Payload)
	system := gjson.GetBytes(body, "system")
	if system.IsArray() {
		block, _ := sjson.Set(`{"type":"text"}`, "text", SystemInstructions)
		merged := "[" + block
		for _, b := range system.Array() {
			merged += "," + b.Raw
		}
		body, _ = sjson.SetRawBytes(body, "system", []byte(merged+"]"))
	} else {
		body, _ = sjson.SetBytes(body, "system", SystemInstructions+"\n"+system.String())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages?beta=true", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyHeaders(httpReq, entry.Metadata["access_token"].(string), stream)
	return httpReq, nil
}

func applyHeaders(r *http.Request, accessToken string, stream bool) {
	r.Header.Set("Authorization", "Bearer "+accessToken)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Anthropic-Version", "2023-06-01")
	r.Header.Set("Anthropic-Dangerous-Direct-Browser-Access", "true")
	r.Header.Set("Anthropic-Beta", "claude-code-20250219,oauth-2025-04-20,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14")
	r.Header.Set("X-App", "cli")
	r.Header.Set("User-Agent", "claude-cli/1.0.83 (external, cli)")
	if stream {
		r.Header.Set("Accept", "text/event-stream")
	} else {
		r.Header.Set("Accept", "application/json")
	}
}

func (p *Provider) Execute(ctx context.Context, entry *credential.Entry, req upstream.Request) (upstream.Response, error) {
	httpReq, err := p.buildRequest(ctx, entry, req, false)
	if err != nil {
		return upstream.Response{}, err
	}
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return upstream.Response{}, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return upstream.Response{}, err
	}
	ir := wire.DecodeClaudeResponse(body)
	return upstream.Response{Payload: body, Usage: ir.Usage}, nil
}

func (p *Provider) ExecuteStream(ctx context.Context, entry *credential.Entry, req upstream.Request, handle upstream.StreamHandler) (wire.Usage, error) {
	httpReq, err := p.buildRequest(ctx, entry, req, true)
	if err != nil {
		return wire.Usage{}, err
	}
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return wire.Usage{}, err
	}
	var usage wire.Usage
	err = httputil.ScanLines(resp, func(line []byte) error {
		if bytes.HasPrefix(line, []byte("data:")) {
			if u, ok := parseUsageEvent(line); ok {
				usage = u
			}
		}
		return handle(line)
	})
	return usage, err
}

func parseUsageEvent(line []byte) (wire.Usage, bool) {
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(payload) == 0 {
		return wire.Usage{}, false
	}
	resp := wire.DecodeClaudeResponse(payload)
	if resp.Usage.InputTokens == nil && resp.Usage.OutputTokens == nil {
		return wire.Usage{}, false
	}
	return resp.Usage, true
}

// Refresh is implemented by internal/oauth; claudecode's provider only
// executes requests, it never mints tokens itself.
func (p *Provider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}
