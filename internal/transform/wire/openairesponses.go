package wire

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DecodeOpenAIResponsesRequest parses an OpenAI Responses API request.
func DecodeOpenAIResponsesRequest(raw []byte) Request {
	root := gjson.ParseBytes(raw)
	req := Request{Model: root.Get("model").String()}
	req.System = root.Get("instructions").String()

	input := root.Get("input")
	if input.Type == gjson.String {
		if input.String() != "" {
			req.Messages = append(req.Messages, Message{Role: "user", Parts: []Part{{Kind: PartText, Text: input.String()}}})
		}
	} else {
		input.ForEach(func(_, item gjson.Result) bool {
			switch item.Get("type").String() {
			case "message", "":
				role := item.Get("role").String()
				if role == "" {
					role = "user"
				}
				msg := Message{Role: role}
				content := item.Get("content")
				if content.Type == gjson.String {
					msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: content.String()})
				} else {
					content.ForEach(func(_, part gjson.Result) bool {
						switch part.Get("type").String() {
						case "input_text", "output_text":
							msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: part.Get("text").String()})
						case "input_image":
							url := part.Get("image_url").String()
							if strings.HasPrefix(url, "data:") {
								msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: decodeDataURL(url)})
							} else {
								msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: Image{URL: url}})
							}
						case "input_file":
							msg.Parts = append(msg.Parts, Part{Kind: PartDocument, DocumentName: part.Get("filename").String()})
						}
						return true
					})
				}
				req.Messages = append(req.Messages, msg)
			case "function_call":
				req.Messages = append(req.Messages, Message{Role: "assistant", Parts: []Part{{
					Kind:         PartToolUse,
					ToolUseID:    item.Get("call_id").String(),
					ToolName:     item.Get("name").String(),
					ToolArgsJSON: item.Get("arguments").String(),
				}}})
			case "function_call_output":
				req.Messages = append(req.Messages, Message{Role: "user", Parts: []Part{{
					Kind:           PartToolResult,
					ToolUseID:      item.Get("call_id").String(),
					ToolResultText: item.Get("output").String(),
				}}})
			case "reasoning":
				var sb strings.Builder
				item.Get("summary").ForEach(func(_, s gjson.Result) bool {
					sb.WriteString(s.Get("text").String())
					return true
				})
				if sb.Len() > 0 {
					req.Messages = append(req.Messages, Message{Role: "assistant", Parts: []Part{{Kind: PartThinking, Text: sb.String()}}})
				}
			}
			return true
		})
	}

	root.Get("tools").ForEach(func(_, t gjson.Result) bool {
		typ := t.Get("type").String()
		if typ != "function" {
			if name, ok := DecodeBuiltinToolName(typ, openAIResponseProtocol); ok {
				req.BuiltinTools = append(req.BuiltinTools, BuiltinTool{Name: name})
			}
			return true
		}
		req.Tools = append(req.Tools, ToolDef{
			Name:          t.Get("name").String(),
			Description:   t.Get("description").String(),
			ParametersRaw: t.Get("parameters").Raw,
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
			choice.Name = tc.Get("name").String()
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
	if v := root.Get("max_output_tokens"); v.Exists() {
		req.MaxTokens = v.Int()
		req.HasMaxTokens = true
	}
	req.Stream = root.Get("stream").Bool()

	if effort := root.Get("reasoning.effort"); effort.Exists() {
		req.Reasoning = &Reasoning{Effort: effort.String()}
	}
	if schema := root.Get("text.format"); schema.Get("type").String() == "json_schema" {
		req.ResponseFormat = &ResponseFormat{
			Name:      schema.Get("name").String(),
			SchemaRaw: schema.Get("schema").Raw,
		}
	}
	return req
}

// EncodeOpenAIResponsesRequest renders the IR into an OpenAI Responses API
// request.
func EncodeOpenAIResponsesRequest(r Request) []byte {
	out := `{"model":"","input":[]}`
	out, _ = sjson.Set(out, "model", r.Model)
	if r.System != "" {
		out, _ = sjson.Set(out, "instructions", r.System)
	}

	var input []any
	for _, m := range r.Messages {
		input = append(input, encodeResponsesItems(m)...)
	}
	out, _ = sjson.SetRaw(out, "input", mustMarshal(input))

	if len(r.Tools) > 0 || len(r.BuiltinTools) > 0 {
		var tools []any
		for _, t := range r.Tools {
			tool := map[string]any{"type": "function", "name": t.Name, "description": t.Description}
			if t.ParametersRaw != "" {
				tool["parameters"] = rawJSON(t.ParametersRaw)
			} else {
				tool["parameters"] = map[string]any{"type": "object"}
			}
			tools = append(tools, tool)
		}
		for _, bt := range r.BuiltinTools {
			if name, ok := EncodeBuiltinToolName(bt.Name, openAIResponseProtocol); ok {
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
			out, _ = sjson.SetRaw(out, "tool_choice", mustMarshal(map[string]any{"type": "function", "name": r.ToolChoice.Name}))
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
		out, _ = sjson.Set(out, "max_output_tokens", r.MaxTokens)
	}
	if r.Stream {
		out, _ = sjson.Set(out, "stream", true)
	}

	rt := ResolveReasoning(r.Reasoning)
	if rt.OpenAIResponsesEffort != "" {
		out, _ = sjson.Set(out, "reasoning.effort", rt.OpenAIResponsesEffort)
	}
	if r.ResponseFormat != nil && r.ResponseFormat.SchemaRaw != "" {
		out, _ = sjson.Set(out, "text.format.type", "json_schema")
		name := r.ResponseFormat.Name
		if name == "" {
			name = "response"
		}
		out, _ = sjson.Set(out, "text.format.name", name)
		out, _ = sjson.SetRaw(out, "text.format.schema", r.ResponseFormat.SchemaRaw)
	}
	return []byte(out)
}

func encodeResponsesItems(m Message) []any {
	var out []any
	var content []any
	role := m.Role
	flushMessage := func() {
		if len(content) == 0 {
			return
		}
		out = append(out, map[string]any{"role": role, "content": content})
		content = nil
	}
	textType := "input_text"
	if role == "assistant" {
		textType = "output_text"
	}
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			content = append(content, map[string]any{"type": textType, "text": p.Text})
		case PartImage:
			content = append(content, map[string]any{"type": "input_image", "image_url": encodeImageURL(p.Image)})
		case PartDocument:
			content = append(content, map[string]any{"type": "input_text", "text": "[document: " + p.DocumentName + "]"})
		case PartThinking:
			flushMessage()
			out = append(out, map[string]any{"type": "reasoning", "summary": []any{map[string]any{"type": "summary_text", "text": p.Text}}})
		case PartToolUse:
			flushMessage()
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			out = append(out, map[string]any{"type": "function_call", "call_id": p.ToolUseID, "name": p.ToolName, "arguments": args})
		case PartToolResult:
			flushMessage()
			out = append(out, map[string]any{"type": "function_call_output", "call_id": p.ToolUseID, "output": p.ToolResultText})
		}
	}
	flushMessage()
	return out
}

// DecodeOpenAIResponsesResponse parses an OpenAI Responses API response.
func DecodeOpenAIResponsesResponse(raw []byte) Response {
	root := gjson.ParseBytes(raw)
	resp := Response{Model: root.Get("model").String(), ID: root.Get("id").String()}
	root.Get("output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "message":
			item.Get("content").ForEach(func(_, part gjson.Result) bool {
				if part.Get("type").String() == "output_text" {
					resp.Parts = append(resp.Parts, Part{Kind: PartText, Text: part.Get("text").String()})
				}
				return true
			})
		case "function_call":
			resp.Parts = append(resp.Parts, Part{
				Kind:         PartToolUse,
				ToolUseID:    item.Get("call_id").String(),
				ToolName:     item.Get("name").String(),
				ToolArgsJSON: item.Get("arguments").String(),
			})
		case "reasoning":
			var sb strings.Builder
			item.Get("summary").ForEach(func(_, s gjson.Result) bool {
				sb.WriteString(s.Get("text").String())
				return true
			})
			if sb.Len() > 0 {
				resp.Parts = append(resp.Parts, Part{Kind: PartThinking, Text: sb.String()})
			}
		}
		return true
	})
	switch root.Get("status").String() {
	case "incomplete":
		if root.Get("incomplete_details.reason").String() == "max_output_tokens" {
			resp.StopReason = StopMaxTokens
		}
	default:
		resp.StopReason = StopEndTurn
		for _, p := range resp.Parts {
			if p.Kind == PartToolUse {
				resp.StopReason = StopToolUse
				break
			}
		}
	}
	resp.Usage = decodeResponsesUsage(root.Get("usage"))
	return resp
}

func decodeResponsesUsage(u gjson.Result) Usage {
	var out Usage
	if v := u.Get("input_tokens"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("output_tokens"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	if v := u.Get("total_tokens"); v.Exists() {
		n := v.Int()
		out.TotalTokens = &n
	}
	if v := u.Get("input_tokens_details.cached_tokens"); v.Exists() {
		n := v.Int()
		out.CachedInputTokens = &n
	}
	if v := u.Get("output_tokens_details.reasoning_tokens"); v.Exists() {
		n := v.Int()
		out.ReasoningOutputTokens = &n
	}
	return out
}

// EncodeOpenAIResponsesResponse renders the IR into an OpenAI Responses API
// response.
func EncodeOpenAIResponsesResponse(r Response) []byte {
	out := `{"id":"","object":"response","model":"","status":"completed","output":[]}`
	out, _ = sjson.Set(out, "id", r.ID)
	out, _ = sjson.Set(out, "model", r.Model)

	var output []any
	var content []any
	flush := func() {
		if len(content) == 0 {
			return
		}
		output = append(output, map[string]any{"type": "message", "role": "assistant", "status": "completed", "content": content})
		content = nil
	}
	for _, p := range r.Parts {
		switch p.Kind {
		case PartText:
			content = append(content, map[string]any{"type": "output_text", "text": p.Text})
		case PartThinking:
			flush()
			output = append(output, map[string]any{"type": "reasoning", "summary": []any{map[string]any{"type": "summary_text", "text": p.Text}}})
		case PartToolUse:
			flush()
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			output = append(output, map[string]any{"type": "function_call", "call_id": p.ToolUseID, "name": p.ToolName, "arguments": args})
		}
	}
	flush()
	out, _ = sjson.SetRaw(out, "output", mustMarshal(output))

	status := "completed"
	if r.StopReason == StopMaxTokens {
		status = "incomplete"
		out, _ = sjson.Set(out, "incomplete_details.reason", "max_output_tokens")
	}
	out, _ = sjson.Set(out, "status", status)

	if r.Usage.InputTokens != nil {
		out, _ = sjson.Set(out, "usage.input_tokens", *r.Usage.InputTokens)
	}
	if r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usage.output_tokens", *r.Usage.OutputTokens)
	}
	if r.Usage.TotalTokens != nil {
		out, _ = sjson.Set(out, "usage.total_tokens", *r.Usage.TotalTokens)
	} else if r.Usage.InputTokens != nil && r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usage.total_tokens", *r.Usage.InputTokens+*r.Usage.OutputTokens)
	}
	if r.Usage.CachedInputTokens != nil {
		out, _ = sjson.Set(out, "usage.input_tokens_details.cached_tokens", *r.Usage.CachedInputTokens)
	}
	if r.Usage.ReasoningOutputTokens != nil {
		out, _ = sjson.Set(out, "usage.output_tokens_details.reasoning_tokens", *r.Usage.ReasoningOutputTokens)
	}
	return []byte(out)
}
