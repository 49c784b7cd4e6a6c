package wire

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DecodeGeminiRequest parses a Gemini generateContent request into the IR.
// model is threaded in separately since it travels in the URL path
// (models/<id>:generateContent), not the request body.
func DecodeGeminiRequest(raw []byte, model string) Request {
	root := gjson.ParseBytes(raw)
	req := Request{Model: model}

	if sys := root.Get("systemInstruction"); sys.Exists() {
		var parts []string
		sys.Get("parts").ForEach(func(_, p gjson.Result) bool {
			if t := p.Get("text"); t.Exists() {
				parts = append(parts, t.String())
			}
			return true
		})
		req.System = strings.Join(parts, "\n")
	}

	root.Get("contents").ForEach(func(_, c gjson.Result) bool {
		role := c.Get("role").String()
		if role == "model" {
			role = "assistant"
		} else {
			role = "user"
		}
		msg := Message{Role: role}
		c.Get("parts").ForEach(func(_, p gjson.Result) bool {
			switch {
			case p.Get("text").Exists():
				msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: p.Get("text").String()})
			case p.Get("inlineData").Exists():
				msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: Image{
					Base64: p.Get("inlineData.data").String(),
					Mime:   p.Get("inlineData.mimeType").String(),
				}})
			case p.Get("fileData").Exists():
				msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: Image{
					URL:  p.Get("fileData.fileUri").String(),
					Mime: p.Get("fileData.mimeType").String(),
				}})
			case p.Get("functionCall").Exists():
				msg.Parts = append(msg.Parts, Part{
					Kind:         PartToolUse,
					ToolUseID:    p.Get("functionCall.name").String(),
					ToolName:     p.Get("functionCall.name").String(),
					ToolArgsJSON: p.Get("functionCall.args").Raw,
				})
			case p.Get("functionResponse").Exists():
				resp := p.Get("functionResponse.response")
				text := resp.Raw
				if out := resp.Get("output"); out.Exists() {
					text = out.String()
				}
				msg.Parts = append(msg.Parts, Part{
					Kind:           PartToolResult,
					ToolUseID:      p.Get("functionResponse.name").String(),
					ToolResultText: text,
				})
			}
			return true
		})
		req.Messages = append(req.Messages, msg)
		return true
	})

	root.Get("tools").ForEach(func(_, t gjson.Result) bool {
		t.Get("functionDeclarations").ForEach(func(_, fd gjson.Result) bool {
			req.Tools = append(req.Tools, ToolDef{
				Name:          fd.Get("name").String(),
				Description:   fd.Get("description").String(),
				ParametersRaw: fd.Get("parameters").Raw,
			})
			return true
		})
		for neutral, names := range builtinAliases {
			if wireName, ok := names[geminiProtocol]; ok && t.Get(camelToSnakeLookup(wireName)).Exists() {
				req.BuiltinTools = append(req.BuiltinTools, BuiltinTool{Name: neutral})
			}
		}
		return true
	})

	if tc := root.Get("toolConfig.functionCallingConfig"); tc.Exists() {
		choice := &ToolChoice{}
		switch tc.Get("mode").String() {
		case "ANY":
			choice.Mode = ToolChoiceAny
		case "NONE":
			choice.Mode = ToolChoiceNone
		default:
			choice.Mode = ToolChoiceAuto
		}
		req.ToolChoice = choice
	}

	gc := root.Get("generationConfig")
	if v := gc.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := gc.Get("topP"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := gc.Get("topK"); v.Exists() {
		i := v.Int()
		req.TopK = &i
	}
	if v := gc.Get("maxOutputTokens"); v.Exists() {
		req.MaxTokens = v.Int()
		req.HasMaxTokens = true
	}
	gc.Get("stopSequences").ForEach(func(_, v gjson.Result) bool {
		req.StopSequences = append(req.StopSequences, v.String())
		return true
	})
	if schema := gc.Get("responseSchema"); schema.Exists() {
		req.ResponseFormat = &ResponseFormat{SchemaRaw: schema.Raw}
	}
	if thinking := gc.Get("thinkingConfig"); thinking.Exists() {
		r := &Reasoning{}
		switch thinking.Get("thinkingLevel").String() {
		case "High":
			r.Effort = "high"
		case "Low":
			r.Effort = "low"
		case "Medium", "":
			r.Effort = "medium"
		}
		if thinking.Get("thinkingBudget").Int() == 0 && thinking.Get("thinkingBudget").Exists() {
			r.Effort = "none"
		}
		req.Reasoning = r
	}
	return req
}

// camelToSnakeLookup maps a builtin wire tool name to the Gemini request
// field that signals it ("google_search" -> "googleSearch"), since Gemini's
// tool entries key built-ins by bare JSON field rather than a "type" tag.
func camelToSnakeLookup(name string) string {
	switch name {
	case "google_search":
		return "googleSearch"
	case "code_execution":
		return "codeExecution"
	default:
		return name
	}
}

// EncodeGeminiRequest renders the IR into a Gemini generateContent request
// body (model travels in the URL path, not the body).
func EncodeGeminiRequest(r Request) []byte {
	out := `{"contents":[]}`
	if r.System != "" {
		out, _ = sjson.Set(out, "systemInstruction.parts.0.text", r.System)
	}

	contents := make([]any, 0, len(r.Messages))
	for _, m := range r.Messages {
		contents = append(contents, encodeGeminiContent(m))
	}
	out, _ = sjson.SetRaw(out, "contents", mustMarshal(contents))

	if len(r.Tools) > 0 {
		var decls []any
		for _, t := range r.Tools {
			decl := map[string]any{"name": t.Name, "description": t.Description}
			if t.ParametersRaw != "" {
				decl["parameters"] = rawJSON(t.ParametersRaw)
			}
			decls = append(decls, decl)
		}
		tools := []any{map[string]any{"functionDeclarations": decls}}
		for _, bt := range r.BuiltinTools {
			if wireName, ok := EncodeBuiltinToolName(bt.Name, geminiProtocol); ok {
				tools = append(tools, map[string]any{camelToSnakeLookup(wireName): map[string]any{}})
			}
		}
		out, _ = sjson.SetRaw(out, "tools", mustMarshal(tools))
	} else if len(r.BuiltinTools) > 0 {
		var tools []any
		for _, bt := range r.BuiltinTools {
			if wireName, ok := EncodeBuiltinToolName(bt.Name, geminiProtocol); ok {
				tools = append(tools, map[string]any{camelToSnakeLookup(wireName): map[string]any{}})
			}
		}
		if len(tools) > 0 {
			out, _ = sjson.SetRaw(out, "tools", mustMarshal(tools))
		}
	}

	if r.ToolChoice != nil {
		mode := "AUTO"
		switch r.ToolChoice.Mode {
		case ToolChoiceAny, ToolChoiceNamed:
			mode = "ANY"
		case ToolChoiceNone:
			mode = "NONE"
		}
		out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.mode", mode)
	}

	if r.Temperature != nil {
		out, _ = sjson.Set(out, "generationConfig.temperature", *r.Temperature)
	}
	if r.TopP != nil {
		out, _ = sjson.Set(out, "generationConfig.topP", *r.TopP)
	}
	if r.TopK != nil {
		out, _ = sjson.Set(out, "generationConfig.topK", *r.TopK)
	}
	if r.HasMaxTokens {
		out, _ = sjson.Set(out, "generationConfig.maxOutputTokens", r.MaxTokens)
	}
	if len(r.StopSequences) > 0 {
		out, _ = sjson.Set(out, "generationConfig.stopSequences", r.StopSequences)
	}
	if r.ResponseFormat != nil && r.ResponseFormat.SchemaRaw != "" {
		out, _ = sjson.Set(out, "generationConfig.responseMimeType", "application/json")
		out, _ = sjson.SetRaw(out, "generationConfig.responseSchema", r.ResponseFormat.SchemaRaw)
	}

	rt := ResolveReasoning(r.Reasoning)
	if rt.GeminiThinkingLevel != "" {
		out, _ = sjson.Set(out, "generationConfig.thinkingConfig.thinkingLevel", rt.GeminiThinkingLevel)
		out, _ = sjson.Set(out, "generationConfig.thinkingConfig.includeThoughts", rt.GeminiIncludeThoughts)
	} else if r.Reasoning != nil && r.Reasoning.Effort == "none" {
		out, _ = sjson.Set(out, "generationConfig.thinkingConfig.thinkingBudget", 0)
	}
	return []byte(out)
}

func encodeGeminiContent(m Message) map[string]any {
	role := "user"
	if m.Role == "assistant" {
		role = "model"
	}
	var parts []any
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText, PartThinking:
			parts = append(parts, map[string]any{"text": p.Text})
		case PartImage:
			if p.Image.Base64 != "" {
				parts = append(parts, map[string]any{"inlineData": map[string]any{"mimeType": p.Image.Mime, "data": p.Image.Base64}})
			} else if p.Image.URL != "" {
				parts = append(parts, map[string]any{"fileData": map[string]any{"fileUri": p.Image.URL, "mimeType": p.Image.Mime}})
			}
		case PartDocument:
			parts = append(parts, map[string]any{"text": "[document: " + p.DocumentName + "]"})
		case PartToolUse:
			args := rawJSONOr(p.ToolArgsJSON, map[string]any{})
			parts = append(parts, map[string]any{"functionCall": map[string]any{"name": p.ToolName, "args": args}})
		case PartToolResult:
			parts = append(parts, map[string]any{"functionResponse": map[string]any{
				"name":     p.ToolUseID,
				"response": map[string]any{"output": p.ToolResultText},
			}})
		}
	}
	if parts == nil {
		parts = []any{}
	}
	return map[string]any{"role": role, "parts": parts}
}

// DecodeGeminiResponse parses a Gemini generateContent response (the first
// candidate only; spec §3 models single-candidate responses).
func DecodeGeminiResponse(raw []byte, model string) Response {
	root := gjson.ParseBytes(raw)
	resp := Response{Model: model}
	cand := root.Get("candidates.0")
	cand.Get("content.parts").ForEach(func(_, p gjson.Result) bool {
		switch {
		case p.Get("text").Exists():
			kind := PartText
			if p.Get("thought").Bool() {
				kind = PartThinking
			}
			resp.Parts = append(resp.Parts, Part{Kind: kind, Text: p.Get("text").String()})
		case p.Get("functionCall").Exists():
			resp.Parts = append(resp.Parts, Part{
				Kind:         PartToolUse,
				ToolUseID:    p.Get("functionCall.name").String(),
				ToolName:     p.Get("functionCall.name").String(),
				ToolArgsJSON: p.Get("functionCall.args").Raw,
			})
		}
		return true
	})
	switch cand.Get("finishReason").String() {
	case "MAX_TOKENS":
		resp.StopReason = StopMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		resp.StopReason = StopContentFilter
		resp.Refusal = true
	default:
		if len(resp.Parts) > 0 {
			for _, p := range resp.Parts {
				if p.Kind == PartToolUse {
					resp.StopReason = StopToolUse
					break
				}
			}
		}
	}
	resp.Usage = decodeGeminiUsage(root.Get("usageMetadata"))
	return resp
}

func decodeGeminiUsage(u gjson.Result) Usage {
	var out Usage
	if v := u.Get("promptTokenCount"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("candidatesTokenCount"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	if v := u.Get("totalTokenCount"); v.Exists() {
		n := v.Int()
		out.TotalTokens = &n
	}
	if v := u.Get("cachedContentTokenCount"); v.Exists() {
		n := v.Int()
		out.CachedInputTokens = &n
	}
	if v := u.Get("thoughtsTokenCount"); v.Exists() {
		n := v.Int()
		out.ReasoningOutputTokens = &n
	}
	return out
}

// EncodeGeminiResponse renders the IR into a Gemini generateContent
// response body.
func EncodeGeminiResponse(r Response) []byte {
	out := `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP","index":0}]}`
	var parts []any
	for _, p := range r.Parts {
		switch p.Kind {
		case PartText:
			parts = append(parts, map[string]any{"text": p.Text})
		case PartThinking:
			parts = append(parts, map[string]any{"text": p.Text, "thought": true})
		case PartToolUse:
			args := rawJSONOr(p.ToolArgsJSON, map[string]any{})
			parts = append(parts, map[string]any{"functionCall": map[string]any{"name": p.ToolName, "args": args}})
		}
	}
	if parts == nil {
		parts = []any{}
	}
	out, _ = sjson.SetRaw(out, "candidates.0.content.parts", mustMarshal(parts))

	finish := "STOP"
	switch r.StopReason {
	case StopMaxTokens:
		finish = "MAX_TOKENS"
	case StopContentFilter:
		finish = "SAFETY"
	}
	out, _ = sjson.Set(out, "candidates.0.finishReason", finish)

	if r.Usage.InputTokens != nil {
		out, _ = sjson.Set(out, "usageMetadata.promptTokenCount", *r.Usage.InputTokens)
	}
	if r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usageMetadata.candidatesTokenCount", *r.Usage.OutputTokens)
	}
	if r.Usage.TotalTokens != nil {
		out, _ = sjson.Set(out, "usageMetadata.totalTokenCount", *r.Usage.TotalTokens)
	} else if r.Usage.InputTokens != nil && r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usageMetadata.totalTokenCount", *r.Usage.InputTokens+*r.Usage.OutputTokens)
	}
	if r.Usage.ReasoningOutputTokens != nil {
		out, _ = sjson.Set(out, "usageMetadata.thoughtsTokenCount", *r.Usage.ReasoningOutputTokens)
	}
	return []byte(out)
}
