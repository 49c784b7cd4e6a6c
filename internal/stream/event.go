// Package stream implements the stateful streaming translators between the
// four wire protocols' Server-Sent Events formats. Grounded on the
// teacher's internal/translator/codex/claude/codex_claude_response.go
// ConvertCodexResponseToClaude: a single-owner state machine, keyed by
// content-block index, that consumes one upstream SSE data line at a time
// and emits zero or more downstream SSE frames, carrying a small bool/int
// accumulator (hasToolCall, current index) across calls instead of
// buffering the whole stream.
//
// Each directed pair composes a per-source Decoder (raw SSE bytes ->
// neutral Events) with a per-target Encoder (Events -> SSE frames), the
// same decode/encode split internal/transform/wire uses for non-streaming
// bodies, so the twelve directed pairs come from the four decoders and four
// encoders rather than twelve hand-written state machines.
package stream

import "github.com/module-gw/gproxy/internal/transform/wire"

// EventKind enumerates the neutral streaming events every protocol's SSE
// format can be decomposed into.
type EventKind int

const (
	EvMessageStart EventKind = iota
	EvTextDelta
	EvThinkingDelta
	EvToolStart
	EvToolDelta
	EvToolStop
	EvContentStop
	EvMessageStop
	EvPing
)

// Event is one neutral streaming event. Only the fields relevant to Kind
// are populated; Index addresses a content block the way every protocol's
// streaming format already does (Claude's content_block index, the
// Responses API's output_index).
type Event struct {
	Kind        EventKind
	Index       int
	Text        string // EvTextDelta, EvThinkingDelta
	ToolID      string // EvToolStart
	ToolName    string // EvToolStart
	PartialJSON string // EvToolDelta, partial/complete arguments fragment
	StopReason  wire.StopReason
	Usage       wire.Usage
	Model       string
	ID          string
}

// Chunk is one rendered SSE frame ready to write to the response body.
type Chunk struct {
	Event string // SSE "event:" line; empty means data-only (OpenAI's convention)
	Data  string // SSE "data:" line payload (without the "data: " prefix)
}

// Decoder turns one upstream SSE data line into zero or more neutral
// events, maintaining whatever per-stream state its protocol's format
// requires.
type Decoder interface {
	Decode(raw []byte) []Event
}

// Encoder renders neutral events into downstream SSE frames, maintaining
// open-content-block bookkeeping so every content_block_start/stop (or
// equivalent) is emitted exactly once.
type Encoder interface {
	Encode(ev Event) []Chunk
	// Finalize flushes any frames owed at stream end beyond the last
	// observed event (e.g. closing a content block the source protocol
	// never explicitly closed).
	Finalize() []Chunk
}
