package wire

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DecodeOpenAIChatRequest parses an OpenAI Chat Completions request.
func DecodeOpenAIChatRequest(raw []byte) Request {
	root := gjson.ParseBytes(raw)
	req := Request{Model: root.Get("model").String()}

	// A "tool" role message in Chat Completions carries only the result,
	// with the call itself recorded on a prior assistant message; each one
	// becomes a user message holding a single tool-result part.
	root.Get("messages").ForEach(func(_, m gjson.Result) bool {
		role := m.Get("role").String()
		if role == "system" || role == "developer" {
			var sb strings.Builder
			appendChatTextContent(&sb, m.Get("content"))
			if req.System != "" {
				req.System += "\n"
			}
			req.System += sb.String()
			return true
		}
		if role == "tool" {
			req.Messages = append(req.Messages, Message{Role: "user", Parts: []Part{{
				Kind:           PartToolResult,
				ToolUseID:      m.Get("tool_call_id").String(),
				ToolResultText: m.Get("content").String(),
			}}})
			return true
		}
		msg := Message{Role: role}
		content := m.Get("content")
		if content.Type == gjson.String && content.String() != "" {
			msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: content.String()})
		} else if content.IsArray() {
			content.ForEach(func(_, part gjson.Result) bool {
				switch part.Get("type").String() {
				case "text":
					msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: part.Get("text").String()})
				case "image_url":
					url := part.Get("image_url.url").String()
					if strings.HasPrefix(url, "data:") {
						msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: decodeDataURL(url)})
					} else {
						msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: Image{URL: url}})
					}
				}
				return true
			})
		}
		m.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			msg.Parts = append(msg.Parts, Part{
				Kind:         PartToolUse,
				ToolUseID:    tc.Get("id").String(),
				ToolName:     tc.Get("function.name").String(),
				ToolArgsJSON: tc.Get("function.arguments").String(),
			})
			return true
		})
		req.Messages = append(req.Messages, msg)
		return true
	})

	root.Get("tools").ForEach(func(_, t gjson.Result) bool {
		if t.Get("type").String() != "function" {
			if name, ok := DecodeBuiltinToolName(t.Get("type").String(), openAIChatProtocol); ok {
				req.BuiltinTools = append(req.BuiltinTools, BuiltinTool{Name: name})
			}
			return true
		}
		fn := t.Get("function")
		req.Tools = append(req.Tools, ToolDef{
			Name:          fn.Get("name").String(),
			Description:   fn.Get("description").String(),
			ParametersRaw: fn.Get("parameters").Raw,
		})
		return true
	})

	if tc := root.Get("tool_choice"); tc.Exists() {
		choice := &ToolChoice{}
		switch {
		case tc.Type == gjson.String && tc.String() == "none":
			choice.Mode = ToolChoiceNone
		case tc.Type == gjson.String && tc.String() == "required":
			choice.Mode = ToolChoiceAny
		case tc.Type == gjson.String:
			choice.Mode = ToolChoiceAuto
		default:
			choice.Mode = ToolChoiceNamed
			choice.Name = tc.Get("function.name").String()
		}
		req.ToolChoice = choice
	}

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("max_completion_tokens"); v.Exists() {
		req.MaxTokens = v.Int()
		req.HasMaxTokens = true
	} else if v := root.Get("max_tokens"); v.Exists() {
		req.MaxTokens = v.Int()
		req.HasMaxTokens = true
	}
	stop := root.Get("stop")
	if stop.Type == gjson.String {
		req.StopSequences = []string{stop.String()}
	} else if stop.IsArray() {
		stop.ForEach(func(_, v gjson.Result) bool {
			req.StopSequences = append(req.StopSequences, v.String())
			return true
		})
	}
	req.Stream = root.Get("stream").Bool()

	if effort := root.Get("reasoning_effort"); effort.Exists() {
		req.Reasoning = &Reasoning{Effort: effort.String()}
	}
	if rf := root.Get("response_format"); rf.Exists() && rf.Get("type").String() == "json_schema" {
		req.ResponseFormat = &ResponseFormat{
			Name:      rf.Get("json_schema.name").String(),
			SchemaRaw: rf.Get("json_schema.schema").Raw,
		}
	}
	return req
}

func appendChatTextContent(sb *strings.Builder, content gjson.Result) {
	if content.Type == gjson.String {
		sb.WriteString(content.String())
		return
	}
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
}

func decodeDataURL(url string) Image {
	rest := strings.TrimPrefix(url, "data:")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return Image{URL: url}
	}
	mime := strings.TrimSuffix(parts[0], ";base64")
	return Image{Base64: parts[1], Mime: mime}
}

// EncodeOpenAIChatRequest renders the IR into an OpenAI Chat Completions
// request.
func EncodeOpenAIChatRequest(r Request) []byte {
	out := `{"model":"","messages":[]}`
	out, _ = sjson.Set(out, "model", r.Model)

	var messages []any
	if r.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": r.System})
	}
	for _, m := range r.Messages {
		messages = append(messages, encodeChatMessages(m)...)
	}
	out, _ = sjson.SetRaw(out, "messages", mustMarshal(messages))

	if len(r.Tools) > 0 || len(r.BuiltinTools) > 0 {
		var tools []any
		for _, t := range r.Tools {
			fn := map[string]any{"name": t.Name, "description": t.Description}
			if t.ParametersRaw != "" {
				fn["parameters"] = rawJSON(t.ParametersRaw)
			} else {
				fn["parameters"] = map[string]any{"type": "object"}
			}
			tools = append(tools, map[string]any{"type": "function", "function": fn})
		}
		for _, bt := range r.BuiltinTools {
			if name, ok := EncodeBuiltinToolName(bt.Name, openAIChatProtocol); ok {
				tools = append(tools, map[string]any{"type": name})
			}
		}
		if len(tools) > 0 {
			out, _ = sjson.SetRaw(out, "tools", mustMarshal(tools))
		}
	}

	if r.ToolChoice != nil {
		switch r.ToolChoice.Mode {
		case ToolChoiceNone:
			out, _ = sjson.Set(out, "tool_choice", "none")
		case ToolChoiceAny:
			out, _ = sjson.Set(out, "tool_choice", "required")
		case ToolChoiceNamed:
			out, _ = sjson.SetRaw(out, "tool_choice", mustMarshal(map[string]any{
				"type":     "function",
				"function": map[string]any{"name": r.ToolChoice.Name},
			}))
		default:
			out, _ = sjson.Set(out, "tool_choice", "auto")
		}
	}

	if r.Temperature != nil {
		out, _ = sjson.Set(out, "temperature", *r.Temperature)
	}
	if r.TopP != nil {
		out, _ = sjson.Set(out, "top_p", *r.TopP)
	}
	if r.HasMaxTokens {
		out, _ = sjson.Set(out, "max_completion_tokens", r.MaxTokens)
	}
	if len(r.StopSequences) > 0 {
		out, _ = sjson.Set(out, "stop", r.StopSequences)
	}
	if r.Stream {
		out, _ = sjson.Set(out, "stream", true)
	}

	rt := ResolveReasoning(r.Reasoning)
	if rt.OpenAIChatEffort != "" {
		out, _ = sjson.Set(out, "reasoning_effort", rt.OpenAIChatEffort)
	}
	if r.ResponseFormat != nil && r.ResponseFormat.SchemaRaw != "" {
		out, _ = sjson.Set(out, "response_format.type", "json_schema")
		name := r.ResponseFormat.Name
		if name == "" {
			name = "response"
		}
		out, _ = sjson.Set(out, "response_format.json_schema.name", name)
		out, _ = sjson.SetRaw(out, "response_format.json_schema.schema", r.ResponseFormat.SchemaRaw)
	}
	return []byte(out)
}

// encodeChatMessages splits one IR message into possibly several Chat
// Completions messages, since tool_result parts must become standalone
// "tool"-role messages rather than array content entries.
func encodeChatMessages(m Message) []any {
	role := m.Role
	var content []any
	var toolCalls []any
	var out []any
	flush := func() {
		if len(content) == 0 && len(toolCalls) == 0 {
			return
		}
		msg := map[string]any{"role": role}
		if len(content) == 1 {
			if text, ok := content[0].(map[string]any); ok {
				if t, ok := text["type"]; ok && t == "text" {
					msg["content"] = text["text"]
				} else {
					msg["content"] = content
				}
			}
		} else if len(content) > 0 {
			msg["content"] = content
		} else {
			msg["content"] = nil
		}
		if len(toolCalls) > 0 {
			msg["tool_calls"] = toolCalls
		}
		out = append(out, msg)
		content, toolCalls = nil, nil
	}
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText, PartThinking:
			content = append(content, map[string]any{"type": "text", "text": p.Text})
		case PartImage:
			content = append(content, map[string]any{"type": "image_url", "image_url": map[string]any{"url": encodeImageURL(p.Image)}})
		case PartDocument:
			content = append(content, map[string]any{"type": "text", "text": "[document: " + p.DocumentName + "]"})
		case PartToolUse:
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   p.ToolUseID,
				"type": "function",
				"function": map[string]any{
					"name":      p.ToolName,
					"arguments": args,
				},
			})
		case PartToolResult:
			flush()
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": p.ToolUseID,
				"content":      p.ToolResultText,
			})
		}
	}
	flush()
	return out
}

func encodeImageURL(img Image) string {
	if img.URL != "" {
		return img.URL
	}
	if img.Base64 != "" {
		return "data:" + img.Mime + ";base64," + img.Base64
	}
	return ""
}

// DecodeOpenAIChatResponse parses an OpenAI Chat Completions response (the
// first choice only).
func DecodeOpenAIChatResponse(raw []byte) Response {
	root := gjson.ParseBytes(raw)
	resp := Response{Model: root.Get("model").String(), ID: root.Get("id").String()}
	choice := root.Get("choices.0")
	msg := choice.Get("message")
	if content := msg.Get("content"); content.Type == gjson.String && content.String() != "" {
		resp.Parts = append(resp.Parts, Part{Kind: PartText, Text: content.String()})
	}
	if reasoning := msg.Get("reasoning_content"); reasoning.Exists() {
		resp.Parts = append(resp.Parts, Part{Kind: PartThinking, Text: reasoning.String()})
	}
	msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		resp.Parts = append(resp.Parts, Part{
			Kind:         PartToolUse,
			ToolUseID:    tc.Get("id").String(),
			ToolName:     tc.Get("function.name").String(),
			ToolArgsJSON: tc.Get("function.arguments").String(),
		})
		return true
	})
	switch choice.Get("finish_reason").String() {
	case "length":
		resp.StopReason = StopMaxTokens
	case "tool_calls":
		resp.StopReason = StopToolUse
	case "content_filter":
		resp.StopReason = StopContentFilter
		resp.Refusal = true
	default:
		resp.StopReason = StopEndTurn
	}
	resp.Usage = decodeChatUsage(root.Get("usage"))
	return resp
}

func decodeChatUsage(u gjson.Result) Usage {
	var out Usage
	if v := u.Get("prompt_tokens"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("completion_tokens"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	if v := u.Get("total_tokens"); v.Exists() {
		n := v.Int()
		out.TotalTokens = &n
	}
	if v := u.Get("prompt_tokens_details.cached_tokens"); v.Exists() {
		n := v.Int()
		out.CachedInputTokens = &n
	}
	if v := u.Get("completion_tokens_details.reasoning_tokens"); v.Exists() {
		n := v.Int()
		out.ReasoningOutputTokens = &n
	}
	return out
}

// EncodeOpenAIChatResponse renders the IR into an OpenAI Chat Completions
// response.
func EncodeOpenAIChatResponse(r Response) []byte {
	out := `{"id":"","object":"chat.completion","model":"","choices":[{"index":0,"message":{"role":"assistant","content":null},"finish_reason":"stop"}]}`
	out, _ = sjson.Set(out, "id", r.ID)
	out, _ = sjson.Set(out, "model", r.Model)

	var text strings.Builder
	var toolCalls []any
	for _, p := range r.Parts {
		switch p.Kind {
		case PartText:
			text.WriteString(p.Text)
		case PartThinking:
			out, _ = sjson.Set(out, "choices.0.message.reasoning_content", p.Text)
		case PartToolUse:
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   p.ToolUseID,
				"type": "function",
				"function": map[string]any{
					"name":      p.ToolName,
					"arguments": args,
				},
			})
		}
	}
	if text.Len() > 0 {
		out, _ = sjson.Set(out, "choices.0.message.content", text.String())
	}
	if len(toolCalls) > 0 {
		out, _ = sjson.SetRaw(out, "choices.0.message.tool_calls", mustMarshal(toolCalls))
	}

	finish := "stop"
	switch r.StopReason {
	case StopMaxTokens:
		finish = "length"
	case StopToolUse:
		finish = "tool_calls"
	case StopContentFilter:
		finish = "content_filter"
	}
	out, _ = sjson.Set(out, "choices.0.finish_reason", finish)

	if r.Usage.InputTokens != nil {
		out, _ = sjson.Set(out, "usage.prompt_tokens", *r.Usage.InputTokens)
	}
	if r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usage.completion_tokens", *r.Usage.OutputTokens)
	}
	if r.Usage.TotalTokens != nil {
		out, _ = sjson.Set(out, "usage.total_tokens", *r.Usage.TotalTokens)
	} else if r.Usage.InputTokens != nil && r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usage.total_tokens", *r.Usage.InputTokens+*r.Usage.OutputTokens)
	}
	if r.Usage.CachedInputTokens != nil {
		out, _ = sjson.Set(out, "usage.prompt_tokens_details.cached_tokens", *r.Usage.CachedInputTokens)
	}
	if r.Usage.ReasoningOutputTokens != nil {
		out, _ = sjson.Set(out, "usage.completion_tokens_details.reasoning_tokens", *r.Usage.ReasoningOutputTokens)
	}
	return []byte(out)
}
