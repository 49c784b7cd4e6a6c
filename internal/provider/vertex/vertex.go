// Package vertex implements the Vertex AI Gemini-compatible upstream:
// Google service-account credentials against
// aiplatform.googleapis.com/.../publishers/google/models/{model}:{op}
// instead of the generativelanguage.googleapis.com API-key surface plain
// Gemini credentials use. The request/response body shape is the same
// Gemini wire format, only the path and bearer token differ.
//
// Grounded on internal/runtime/executor/gemini_executor.go's
// project/location-qualified Vertex path construction, generalized per
// SPEC_FULL.md §12's Vertex publisher-models catalog support.
package vertex

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
)

const defaultHost = "aiplatform.googleapis.com"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Identifier() string { return "vertex" }

func basePath(entry *credential.Entry) string {
	host := entry.Attributes["host"]
	if host == "" {
		host = defaultHost
	}
	project := entry.Attributes["project_id"]
	location := entry.Attributes["location"]
	if location == "" {
		location = "us-central1"
	}
	return fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/publishers/google/models", host, project, location)
}

func (p *Provider) buildRequest(ctx context.Context, entry *credential.Entry, req upstream.Request, stream bool) (*http.Request, error) {
	op := "generateContent"
	if stream {
		op = "streamGenerateContent?alt=sse"
	}
	url := fmt.Sprintf("%s/%s:%s", basePath(entry), req.Model, op)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, err
	}
	accessToken, _ := entry.Metadata["access_token"].(string)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

// ListPublisherModels fetches the flattened Vertex model catalog, the
// supplemented feature internal/transform/catalog.DecodeVertexPublisherModels
// parses into registry.ModelInfo values.
func (p *Provider) ListPublisherModels(ctx context.Context, entry *credential.Entry) ([]byte, error) {
	url := fmt.Sprintf("%s?view=PUBLISHER_MODEL_VIEW_BASIC", basePath(entry))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	accessToken, _ := entry.Metadata["access_token"].(string)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	return httputil.ReadBody(resp)
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
	ir := wire.DecodeGeminiResponse(body, req.Model)
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
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 {
			return nil
		}
		ir := wire.DecodeGeminiResponse(payload, req.Model)
		if ir.Usage.TotalTokens != nil {
			usage = ir.Usage
		}
		return handle(payload)
	})
	return usage, err
}

func (p *Provider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}
