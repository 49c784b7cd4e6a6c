// Package gateway wires the dispatch engine, protocol transform library,
// upstream execution core, and streaming engine into the single
// HandleRequest/HandleStream entry point internal/api's HTTP handlers
// call. It is the "single attempt" control flow spec §2 describes:
// inbound typed request -> DispatchPlan -> transform -> pool selects
// credential -> provider sends -> classify -> response-transform or
// stream-translate.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/stream"
	"github.com/module-gw/gproxy/internal/transform/catalog"
	"github.com/module-gw/gproxy/internal/transform/counttokens"
	"github.com/module-gw/gproxy/internal/transform/generate"
	"github.com/module-gw/gproxy/internal/upstream"
)

// Route binds one configured provider to its dispatch table, credential
// pool, and upstream.Provider implementation.
type Route struct {
	Name     string
	Protocol constant.Protocol
	Table    *dispatch.Table
	Pool     *credential.Pool
	Upstream upstream.Provider
}

// Gateway holds every configured Route, keyed by name, plus the default
// route an inbound request is dispatched to when the caller doesn't pin
// one explicitly (the common case: one gateway typically fronts one
// provider per listen port/path prefix).
type Gateway struct {
	routes  map[string]*Route
	Default string

	// Transport, when set, overrides the default outbound transport for
	// every provider call this gateway drives (e.g. a SOCKS5 proxy dialer
	// built from config.Config.ProxyURL). nil means the default transport.
	Transport http.RoundTripper
}

func New() *Gateway {
	return &Gateway{routes: make(map[string]*Route)}
}

// withTransport attaches g.Transport to ctx under httputil.RoundTripperKey
// so every internal/provider/* backend's Client(ctx, ...) call picks it up
// without needing to know a proxy is in play.
func (g *Gateway) withTransport(ctx context.Context) context.Context {
	if g.Transport == nil {
		return ctx
	}
	return context.WithValue(ctx, httputil.RoundTripperKey, g.Transport)
}

func (g *Gateway) Register(r *Route) {
	g.routes[r.Name] = r
	if g.Default == "" {
		g.Default = r.Name
	}
}

func (g *Gateway) Route(name string) (*Route, bool) {
	if name == "" {
		name = g.Default
	}
	r, ok := g.routes[name]
	return r, ok
}

// HandleRequest drives one non-streaming inbound request to completion
// against route, per the dispatch -> transform -> attempt -> transform
// pipeline.
func (g *Gateway) HandleRequest(ctx context.Context, route *Route, op constant.Op, model string, raw []byte) ([]byte, error) {
	ctx = g.withTransport(ctx)
	plan := dispatch.Build(dispatch.Request{Op: op, Model: model, Payload: raw}, route.Table)

	switch plan.Kind {
	case dispatch.KindUnsupported:
		return nil, upstream.StatusError{Code: 501, Body: plan.Reason}
	case dispatch.KindNative:
		return g.attemptNative(ctx, route, model, raw, op)
	case dispatch.KindTransform:
		return g.attemptTransform(ctx, route, model, raw, plan)
	default:
		return nil, fmt.Errorf("gateway: unknown plan kind")
	}
}

func (g *Gateway) attemptNative(ctx context.Context, route *Route, model string, raw []byte, op constant.Op) ([]byte, error) {
	req := upstream.Request{Model: model, Payload: raw, Stream: op.IsStream()}
	resp, err := upstream.Attempt(ctx, route.Pool, route.Upstream, req)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (g *Gateway) attemptTransform(ctx context.Context, route *Route, model string, raw []byte, plan dispatch.Plan) ([]byte, error) {
	var upstreamPayload []byte
	switch plan.Transform.Family {
	case dispatch.FamilyGenerateContent:
		upstreamPayload = generate.TransformRequest(plan.Transform.Source, plan.Transform.Target, raw, model)
	case dispatch.FamilyCountTokens:
		upstreamPayload = counttokens.TransformRequest(plan.Transform.Source, plan.Transform.Target, raw, model)
	case dispatch.FamilyModelsList, dispatch.FamilyModelsGet:
		// catalog requests carry no body to transform; upstream list/get
		// calls are built straight from the route, so the raw payload
		// (empty) flows through unchanged.
		upstreamPayload = raw
	default:
		return nil, upstream.StatusError{Code: 501, Body: "unsupported transform family"}
	}

	req := upstream.Request{Model: model, Payload: upstreamPayload, Stream: false}
	resp, err := upstream.Attempt(ctx, route.Pool, route.Upstream, req)
	if err != nil {
		return nil, err
	}

	switch plan.Transform.Family {
	case dispatch.FamilyGenerateContent:
		return generate.TransformResponse(plan.Transform.Target, plan.Transform.Source, resp.Payload, model), nil
	case dispatch.FamilyCountTokens:
		return counttokens.TransformResponse(plan.Transform.Target, plan.Transform.Source, resp.Payload), nil
	case dispatch.FamilyModelsList:
		models := catalog.DecodeList(resp.Payload, plan.Transform.Target)
		return catalog.EncodeList(models, plan.Transform.Source), nil
	case dispatch.FamilyModelsGet:
		models := catalog.DecodeList(resp.Payload, plan.Transform.Target)
		if len(models) == 0 {
			return nil, upstream.StatusError{Code: 404, Body: "model not found"}
		}
		return catalog.EncodeGet(models[0], plan.Transform.Source), nil
	default:
		return resp.Payload, nil
	}
}

// StreamSink receives each downstream SSE-framed chunk as it's produced.
type StreamSink func(chunk stream.Chunk) error

// HandleStream drives one streaming inbound request to completion,
// invoking sink for every downstream frame emitted (one-for-one with
// upstream events when native, re-framed through a stream.Translator when
// a cross-protocol transform is required).
func (g *Gateway) HandleStream(ctx context.Context, route *Route, op constant.Op, model string, raw []byte, sink StreamSink) error {
	ctx = g.withTransport(ctx)
	plan := dispatch.Build(dispatch.Request{Op: op, Model: model, Payload: raw}, route.Table)

	switch plan.Kind {
	case dispatch.KindUnsupported:
		return upstream.StatusError{Code: 501, Body: plan.Reason}
	case dispatch.KindNative:
		return g.streamNative(ctx, route, model, raw, sink)
	case dispatch.KindTransform:
		return g.streamTransform(ctx, route, model, raw, plan, sink)
	default:
		return fmt.Errorf("gateway: unknown plan kind")
	}
}

func (g *Gateway) streamNative(ctx context.Context, route *Route, model string, raw []byte, sink StreamSink) error {
	req := upstream.Request{Model: model, Payload: raw, Stream: true}
	_, err := upstream.AttemptStream(ctx, route.Pool, route.Upstream, req, func(line []byte) error {
		return sink(stream.Chunk{Data: string(line)})
	})
	return err
}

func (g *Gateway) streamTransform(ctx context.Context, route *Route, model string, raw []byte, plan dispatch.Plan, sink StreamSink) error {
	upstreamPayload := generate.TransformRequest(plan.Transform.Source, plan.Transform.Target, raw, model)
	translator := stream.New(plan.Transform.Target, plan.Transform.Source)

	req := upstream.Request{Model: model, Payload: upstreamPayload, Stream: true}
	_, err := upstream.AttemptStream(ctx, route.Pool, route.Upstream, req, func(line []byte) error {
		for _, chunk := range translator.Push(line) {
			if err := sink(chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, chunk := range translator.Close() {
		if err := sink(chunk); err != nil {
			return err
		}
	}
	return nil
}
