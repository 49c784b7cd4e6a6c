// Package httputil is the shared HTTP plumbing every internal/provider/*
// backend uses to call upstream: a context-attached round tripper override
// (so the gateway's configured SOCKS5 proxy can override the default
// transport without a provider needing to know how), the zstd response decoding the
// teacher's executors each reimplement per file, and a buffered SSE line
// scanner.
//
// Grounded on internal/runtime/executor/claude_executor.go and
// openai_compat_executor.go, which both carry (byte-for-byte duplicated
// across the two files) the same roundtripper-from-context lookup, zstd
// decoder setup, and bufio.Scanner-with-1MB-buffer pattern; factored here
// for the same reason internal/transform/wire factors the translator
// package's repeated per-pair logic.
package httputil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/proxy"
)

// RoundTripperKey is the context key a caller stores a per-request
// http.RoundTripper under (e.g. the SOCKS5Transport built from
// config.Config.ProxyURL); absent means the default transport.
type roundTripperKeyType struct{}

var RoundTripperKey = roundTripperKeyType{}

// Client returns an *http.Client using ctx's round tripper override if
// present.
func Client(ctx context.Context, timeout int) *http.Client {
	c := &http.Client{}
	if rt, ok := ctx.Value(RoundTripperKey).(http.RoundTripper); ok && rt != nil {
		c.Transport = rt
	}
	return c
}

// SOCKS5Transport builds an http.RoundTripper that dials every outbound
// connection through a SOCKS5 proxy (config.Config.ProxyURL), for
// deployments where outbound access to the provider's API is only
// reachable that way. The returned transport is meant to be stored under
// RoundTripperKey once at startup and shared across requests.
func SOCKS5Transport(proxyURL string) (http.RoundTripper, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("httputil: parse proxy url: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("httputil: unsupported proxy scheme %q, want socks5", u.Scheme)
	}
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("httputil: socks5 dialer: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("httputil: socks5 dialer does not support context dialing")
	}
	return &http.Transport{DialContext: ctxDialer.DialContext}, nil
}

// Do issues req and, if the response is outside the 2xx range, returns
// this package's statusError (exposing HTTPStatus and Header), the body
// already drained into the error so callers never need a second read.
func Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := Client(ctx, 0).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, statusError{code: resp.StatusCode, body: string(b), headers: resp.Header}
	}
	return resp, nil
}

type statusError struct {
	code    int
	body    string
	headers http.Header
}

func (e statusError) Error() string {
	if e.body != "" {
		return e.body
	}
	return fmt.Sprintf("status %d", e.code)
}
func (e statusError) HTTPStatus() int { return e.code }

// Header implements the header-hint interface internal/upstream.Classify
// uses to read Retry-After off a 429 response.
func (e statusError) Header(key string) string { return e.headers.Get(key) }

// ReadBody drains resp.Body, transparently undoing zstd content-encoding
// (several providers behind this gateway compress responses that way even
// though the inbound clients never ask for it).
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "zstd" {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		defer dec.Close()
		reader = dec
	}
	return io.ReadAll(reader)
}

// ScanLines reads resp.Body line by line (undoing zstd the same way
// ReadBody does) and calls handle for every non-empty line, matching the
// teacher's bufio.Scanner-with-1MB-buffer convention for SSE bodies whose
// individual events can exceed the scanner's 64KB default.
func ScanLines(resp *http.Response, handle func([]byte) error) error {
	defer resp.Body.Close()
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "zstd" {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		defer dec.Close()
		reader = dec
	}
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := handle(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
