package wire

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestDecodeGeminiRequestModelTravelsFromPath(t *testing.T) {
	raw := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	req := DecodeGeminiRequest(raw, "gemini-2.5-pro")
	if req.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q, want gemini-2.5-pro", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("Messages = %+v", req.Messages)
	}
}

func TestDecodeGeminiRequestModelRoleMapsToAssistant(t *testing.T) {
	raw := []byte(`{"contents":[{"role":"model","parts":[{"text":"hi"}]}]}`)
	req := DecodeGeminiRequest(raw, "m")
	if req.Messages[0].Role != "assistant" {
		t.Errorf("Role = %q, want assistant", req.Messages[0].Role)
	}
}

func TestDecodeGeminiRequestFunctionCallAndResponse(t *testing.T) {
	raw := []byte(`{
		"contents": [
			{"role":"model","parts":[{"functionCall":{"name":"search","args":{"q":"go"}}}]},
			{"role":"user","parts":[{"functionResponse":{"name":"search","response":{"output":"result"}}}]}
		]
	}`)
	req := DecodeGeminiRequest(raw, "m")
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	call := req.Messages[0].Parts[0]
	if call.Kind != PartToolUse || call.ToolName != "search" {
		t.Errorf("functionCall part = %+v", call)
	}
	resp := req.Messages[1].Parts[0]
	if resp.Kind != PartToolResult || resp.ToolResultText != "result" {
		t.Errorf("functionResponse part = %+v", resp)
	}
}

func TestDecodeGeminiRequestThinkingConfig(t *testing.T) {
	raw := []byte(`{"contents":[],"generationConfig":{"thinkingConfig":{"thinkingLevel":"High"}}}`)
	req := DecodeGeminiRequest(raw, "m")
	if req.Reasoning == nil || req.Reasoning.Effort != "high" {
		t.Errorf("Reasoning = %+v, want effort=high", req.Reasoning)
	}
}

func TestEncodeGeminiRequestSystemInstructionAndGenerationConfig(t *testing.T) {
	temp := 0.7
	req := Request{
		Model:        "m",
		System:       "be helpful",
		Temperature:  &temp,
		HasMaxTokens: true,
		MaxTokens:    512,
		Messages:     []Message{{Role: "assistant", Parts: []Part{{Kind: PartText, Text: "ok"}}}},
	}
	raw := EncodeGeminiRequest(req)
	parsed := gjson.ParseBytes(raw)
	if parsed.Get("systemInstruction.parts.0.text").String() != "be helpful" {
		t.Errorf("systemInstruction = %s", parsed.Get("systemInstruction").Raw)
	}
	if parsed.Get("generationConfig.temperature").Float() != 0.7 {
		t.Errorf("temperature = %v, want 0.7", parsed.Get("generationConfig.temperature").Float())
	}
	if parsed.Get("generationConfig.maxOutputTokens").Int() != 512 {
		t.Errorf("maxOutputTokens = %d, want 512", parsed.Get("generationConfig.maxOutputTokens").Int())
	}
	if parsed.Get("contents.0.role").String() != "model" {
		t.Errorf("contents.0.role = %q, want model (assistant maps to model)", parsed.Get("contents.0.role").String())
	}
}

func TestDecodeGeminiResponseFinishReasonAndUsage(t *testing.T) {
	raw := []byte(`{
		"candidates": [{"content":{"role":"model","parts":[{"text":"hi"}]},"finishReason":"MAX_TOKENS"}],
		"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 4, "totalTokenCount": 7}
	}`)
	resp := DecodeGeminiResponse(raw, "gemini-2.5-pro")
	if resp.StopReason != StopMaxTokens {
		t.Errorf("StopReason = %v, want StopMaxTokens", resp.StopReason)
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %v, want 7", resp.Usage.TotalTokens)
	}
	if len(resp.Parts) != 1 || resp.Parts[0].Text != "hi" {
		t.Errorf("Parts = %+v", resp.Parts)
	}
}

func TestDecodeGeminiResponseThoughtPart(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true}]}}]}`)
	resp := DecodeGeminiResponse(raw, "m")
	if len(resp.Parts) != 1 || resp.Parts[0].Kind != PartThinking {
		t.Errorf("expected a single PartThinking, got %+v", resp.Parts)
	}
}

func TestEncodeGeminiResponseRoundTrip(t *testing.T) {
	in, out := int64(2), int64(3)
	resp := Response{
		Parts:      []Part{{Kind: PartText, Text: "hello"}},
		StopReason: StopContentFilter,
		Usage:      Usage{InputTokens: &in, OutputTokens: &out},
	}
	raw := EncodeGeminiResponse(resp)
	parsed := gjson.ParseBytes(raw)
	if parsed.Get("candidates.0.finishReason").String() != "SAFETY" {
		t.Errorf("finishReason = %q, want SAFETY", parsed.Get("candidates.0.finishReason").String())
	}
	if parsed.Get("usageMetadata.totalTokenCount").Int() != 5 {
		t.Errorf("totalTokenCount = %d, want 5 (derived)", parsed.Get("usageMetadata.totalTokenCount").Int())
	}
}
