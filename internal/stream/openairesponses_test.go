package stream

import (
	"testing"

	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
)

func TestOpenAIResponsesDecoderCreatedEmitsMessageStart(t *testing.T) {
	d := NewOpenAIResponsesDecoder()
	evs := d.Decode([]byte(`{"type":"response.created","response":{"id":"resp_1","model":"gpt-5"}}`))
	if len(evs) != 1 || evs[0].Kind != EvMessageStart || evs[0].ID != "resp_1" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestOpenAIResponsesDecoderFunctionCallLifecycle(t *testing.T) {
	d := NewOpenAIResponsesDecoder()
	start := d.Decode([]byte(`{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","call_id":"c1","name":"search"}}`))
	if len(start) != 1 || start[0].Kind != EvToolStart || start[0].ToolID != "c1" {
		t.Fatalf("start events = %+v", start)
	}
	delta := d.Decode([]byte(`{"type":"response.function_call_arguments.delta","output_index":0,"delta":"{}"}`))
	if len(delta) != 1 || delta[0].Kind != EvToolDelta {
		t.Fatalf("delta events = %+v", delta)
	}
	done := d.Decode([]byte(`{"type":"response.output_item.done","output_index":0,"item":{"type":"function_call"}}`))
	if len(done) != 1 || done[0].Kind != EvToolStop {
		t.Fatalf("done events = %+v", done)
	}
}

func TestOpenAIResponsesDecoderTextDelta(t *testing.T) {
	d := NewOpenAIResponsesDecoder()
	evs := d.Decode([]byte(`{"type":"response.output_text.delta","output_index":0,"delta":"hi"}`))
	if len(evs) != 1 || evs[0].Kind != EvTextDelta || evs[0].Text != "hi" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestOpenAIResponsesDecoderCompletedReflectsToolUse(t *testing.T) {
	d := NewOpenAIResponsesDecoder()
	d.Decode([]byte(`{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","call_id":"c1","name":"search"}}`))
	evs := d.Decode([]byte(`{"type":"response.completed","response":{"usage":{"input_tokens":1,"output_tokens":2}}}`))
	if len(evs) != 1 || evs[0].Kind != EvMessageStop || evs[0].StopReason != wire.StopToolUse {
		t.Fatalf("events = %+v", evs)
	}
}

func TestOpenAIResponsesEncoderTextDeltaAddsItemOnce(t *testing.T) {
	e := NewOpenAIResponsesEncoder()
	first := e.Encode(Event{Kind: EvTextDelta, Index: 0, Text: "hi"})
	second := e.Encode(Event{Kind: EvTextDelta, Index: 0, Text: " there"})
	if len(first) != 2 {
		t.Fatalf("expected item.added + delta on first text event, got %d chunks", len(first))
	}
	if len(second) != 1 {
		t.Fatalf("expected only a delta on the second text event, got %d chunks", len(second))
	}
}

func TestOpenAIResponsesEncoderMessageStopIncompleteOnMaxTokens(t *testing.T) {
	e := NewOpenAIResponsesEncoder()
	chunks := e.Encode(Event{Kind: EvMessageStop})
	if gjson.Get(chunks[0].Data, "response.status").String() != "completed" {
		t.Errorf("status = %q, want completed", gjson.Get(chunks[0].Data, "response.status").String())
	}
	maxed := NewOpenAIResponsesEncoder().Encode(Event{Kind: EvMessageStop, StopReason: wire.StopMaxTokens})
	if gjson.Get(maxed[0].Data, "response.status").String() != "incomplete" {
		t.Errorf("status = %q, want incomplete", gjson.Get(maxed[0].Data, "response.status").String())
	}
}

func TestOpenAIResponsesEncoderToolStartThenDone(t *testing.T) {
	e := NewOpenAIResponsesEncoder()
	startChunks := e.Encode(Event{Kind: EvToolStart, Index: 1, ToolID: "c1", ToolName: "search"})
	if gjson.Get(startChunks[0].Data, "item.call_id").String() != "c1" {
		t.Errorf("call_id = %q, want c1", gjson.Get(startChunks[0].Data, "item.call_id").String())
	}
	doneChunks := e.Encode(Event{Kind: EvToolStop, Index: 1})
	if gjson.Get(doneChunks[0].Data, "item.type").String() != "function_call" {
		t.Errorf("item.type = %q, want function_call", gjson.Get(doneChunks[0].Data, "item.type").String())
	}
}
