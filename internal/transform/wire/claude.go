package wire

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DecodeClaudeRequest parses an Anthropic Messages API request into the IR.
func DecodeClaudeRequest(raw []byte) Request {
	root := gjson.ParseBytes(raw)
	req := Request{Model: root.Get("model").String()}

	if sys := root.Get("system"); sys.Exists() {
		if sys.Type == gjson.String {
			req.System = sys.String()
		} else if sys.IsArray() {
			var parts []string
			sys.ForEach(func(_, v gjson.Result) bool {
				if v.Get("type").String() == "text" {
					parts = append(parts, v.Get("text").String())
				}
				return true
			})
			req.System = strings.Join(parts, "\n")
		}
	}

	root.Get("messages").ForEach(func(_, m gjson.Result) bool {
		req.Messages = append(req.Messages, decodeClaudeMessage(m))
		return true
	})

	root.Get("tools").ForEach(func(_, t gjson.Result) bool {
		builtinName := t.Get("type").String()
		if name, ok := DecodeBuiltinToolName(builtinName, claudeProtocol); ok {
			bt := BuiltinTool{Name: name}
			bt.ServerLabel = t.Get("server_label").String()
			bt.ServerURL = t.Get("server_url").String()
			bt.Authorization = t.Get("authorization").String()
			req.BuiltinTools = append(req.BuiltinTools, bt)
			return true
		}
		if t.Get("name").Exists() && t.Get("input_schema").Exists() {
			req.Tools = append(req.Tools, ToolDef{
				Name:          t.Get("name").String(),
				Description:   t.Get("description").String(),
				ParametersRaw: t.Get("input_schema").Raw,
			})
		}
		return true
	})

	if tc := root.Get("tool_choice"); tc.Exists() {
		choice := &ToolChoice{}
		switch tc.Get("type").String() {
		case "any":
			choice.Mode = ToolChoiceAny
		case "none":
			choice.Mode = ToolChoiceNone
		case "tool":
			choice.Mode = ToolChoiceNamed
			choice.Name = tc.Get("name").String()
		default:
			choice.Mode = ToolChoiceAuto
		}
		choice.DisableParallel = tc.Get("disable_parallel_tool_use").Bool()
		req.ToolChoice = choice
	}

	if mt := root.Get("max_tokens"); mt.Exists() {
		req.MaxTokens = mt.Int()
		req.HasMaxTokens = true
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("top_k"); v.Exists() {
		i := v.Int()
		req.TopK = &i
	}
	root.Get("stop_sequences").ForEach(func(_, v gjson.Result) bool {
		req.StopSequences = append(req.StopSequences, v.String())
		return true
	})
	req.Stream = root.Get("stream").Bool()

	if thinking := root.Get("thinking"); thinking.Exists() {
		r := &Reasoning{}
		if thinking.Get("type").String() == "disabled" {
			r.Effort = "none"
		} else {
			r.Effort = root.Get("output_config.effort").String()
			if r.Effort == "" {
				r.Effort = "medium"
			}
		}
		req.Reasoning = r
	}
	return req
}

func decodeClaudeMessage(m gjson.Result) Message {
	msg := Message{Role: m.Get("role").String()}
	content := m.Get("content")
	if content.Type == gjson.String {
		msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: content.String()})
		return msg
	}
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: part.Get("text").String()})
		case "thinking":
			msg.Parts = append(msg.Parts, Part{Kind: PartThinking, Text: part.Get("thinking").String()})
		case "image":
			src := part.Get("source")
			img := Image{}
			switch src.Get("type").String() {
			case "base64":
				img.Base64 = src.Get("data").String()
				img.Mime = src.Get("media_type").String()
			case "url":
				img.URL = src.Get("url").String()
			}
			msg.Parts = append(msg.Parts, Part{Kind: PartImage, Image: img})
		case "document":
			msg.Parts = append(msg.Parts, Part{Kind: PartDocument, DocumentName: part.Get("source.media_type").String()})
		case "tool_use":
			msg.Parts = append(msg.Parts, Part{
				Kind:         PartToolUse,
				ToolUseID:    part.Get("id").String(),
				ToolName:     part.Get("name").String(),
				ToolArgsJSON: part.Get("input").Raw,
			})
		case "tool_result":
			text := part.Get("content").String()
			if part.Get("content").IsArray() {
				var sb strings.Builder
				part.Get("content").ForEach(func(_, v gjson.Result) bool {
					if v.Get("type").String() == "text" {
						sb.WriteString(v.Get("text").String())
					}
					return true
				})
				text = sb.String()
			}
			msg.Parts = append(msg.Parts, Part{
				Kind:            PartToolResult,
				ToolUseID:       part.Get("tool_use_id").String(),
				ToolResultText:  text,
				ToolResultIsErr: part.Get("is_error").Bool(),
			})
		}
		return true
	})
	return msg
}

// EncodeClaudeRequest renders the IR into an Anthropic Messages API request.
func EncodeClaudeRequest(r Request) []byte {
	out := `{"model":"","max_tokens":32000,"messages":[]}`
	out, _ = sjson.Set(out, "model", r.Model)
	maxTokens := int64(32000)
	if r.HasMaxTokens {
		maxTokens = r.MaxTokens
	}
	out, _ = sjson.Set(out, "max_tokens", maxTokens)
	if r.System != "" {
		out, _ = sjson.Set(out, "system", r.System)
	}
	if r.Temperature != nil {
		out, _ = sjson.Set(out, "temperature", *r.Temperature)
	}
	if r.TopP != nil {
		out, _ = sjson.Set(out, "top_p", *r.TopP)
	}
	if r.TopK != nil {
		out, _ = sjson.Set(out, "top_k", *r.TopK)
	}
	if len(r.StopSequences) > 0 {
		out, _ = sjson.Set(out, "stop_sequences", r.StopSequences)
	}
	if r.Stream {
		out, _ = sjson.Set(out, "stream", true)
	}

	messages := make([]any, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, encodeClaudeMessage(m))
	}
	out, _ = sjson.SetRaw(out, "messages", mustMarshal(messages))

	if len(r.Tools) > 0 || len(r.BuiltinTools) > 0 {
		var tools []any
		for _, t := range r.Tools {
			tool := map[string]any{"name": t.Name, "description": t.Description}
			if t.ParametersRaw != "" {
				tool["input_schema"] = rawJSON(t.ParametersRaw)
			} else {
				tool["input_schema"] = map[string]any{"type": "object"}
			}
			tools = append(tools, tool)
		}
		for _, bt := range r.BuiltinTools {
			if name, ok := EncodeBuiltinToolName(bt.Name, claudeProtocol); ok {
				tool := map[string]any{"type": name, "name": name}
				if bt.ServerURL != "" {
					tool["server_url"] = bt.ServerURL
					tool["server_label"] = bt.ServerLabel
					tool["authorization"] = bt.Authorization
				}
				tools = append(tools, tool)
			}
		}
		if len(tools) > 0 {
			out, _ = sjson.SetRaw(out, "tools", mustMarshal(tools))
		}
	}

	if r.ToolChoice != nil {
		tc := map[string]any{}
		switch r.ToolChoice.Mode {
		case ToolChoiceAny:
			tc["type"] = "any"
		case ToolChoiceNone:
			tc["type"] = "none"
		case ToolChoiceNamed:
			tc["type"] = "tool"
			tc["name"] = r.ToolChoice.Name
		default:
			tc["type"] = "auto"
		}
		if r.ToolChoice.DisableParallel {
			tc["disable_parallel_tool_use"] = true
		}
		out, _ = sjson.SetRaw(out, "tool_choice", mustMarshal(tc))
	}

	rt := ResolveReasoning(r.Reasoning)
	if rt.ClaudeThinkingEnabled {
		out, _ = sjson.Set(out, "thinking.type", "enabled")
		out, _ = sjson.Set(out, "thinking.budget_tokens", rt.ClaudeThinkingBudget)
		if rt.ClaudeEffort != "" {
			out, _ = sjson.Set(out, "output_config.effort", rt.ClaudeEffort)
		}
	} else if r.Reasoning != nil {
		out, _ = sjson.Set(out, "thinking.type", "disabled")
	}

	if r.ResponseFormat != nil && r.ResponseFormat.SchemaRaw != "" {
		out, _ = sjson.SetRaw(out, "output_config.schema", r.ResponseFormat.SchemaRaw)
	}
	return []byte(out)
}

func encodeClaudeMessage(m Message) map[string]any {
	role := m.Role
	if role == "system" {
		role = "user"
	}
	var content []any
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			content = append(content, map[string]any{"type": "text", "text": p.Text})
		case PartThinking:
			content = append(content, map[string]any{"type": "thinking", "thinking": p.Text})
		case PartImage:
			content = append(content, encodeClaudeImage(p.Image))
		case PartDocument:
			content = append(content, map[string]any{"type": "text", "text": "[document: " + p.DocumentName + "]"})
		case PartToolUse:
			args := rawJSONOr(p.ToolArgsJSON, map[string]any{})
			content = append(content, map[string]any{"type": "tool_use", "id": p.ToolUseID, "name": p.ToolName, "input": args})
		case PartToolResult:
			item := map[string]any{"type": "tool_result", "tool_use_id": p.ToolUseID, "content": p.ToolResultText}
			if p.ToolResultIsErr {
				item["is_error"] = true
			}
			content = append(content, item)
		}
	}
	if content == nil {
		content = []any{}
	}
	return map[string]any{"role": role, "content": content}
}

func encodeClaudeImage(img Image) map[string]any {
	if img.Base64 != "" {
		return map[string]any{"type": "image", "source": map[string]any{"type": "base64", "media_type": img.Mime, "data": img.Base64}}
	}
	if img.URL != "" {
		return map[string]any{"type": "image", "source": map[string]any{"type": "url", "url": img.URL}}
	}
	return map[string]any{"type": "text", "text": "[image file_id: " + img.FileID + "]"}
}

// DecodeClaudeResponse parses an Anthropic Messages API response.
func DecodeClaudeResponse(raw []byte) Response {
	root := gjson.ParseBytes(raw)
	resp := Response{Model: root.Get("model").String(), ID: root.Get("id").String()}
	root.Get("content").ForEach(func(_, c gjson.Result) bool {
		switch c.Get("type").String() {
		case "text":
			resp.Parts = append(resp.Parts, Part{Kind: PartText, Text: c.Get("text").String()})
		case "thinking":
			resp.Parts = append(resp.Parts, Part{Kind: PartThinking, Text: c.Get("thinking").String()})
		case "tool_use":
			resp.Parts = append(resp.Parts, Part{Kind: PartToolUse, ToolUseID: c.Get("id").String(), ToolName: c.Get("name").String(), ToolArgsJSON: c.Get("input").Raw})
		}
		return true
	})
	switch root.Get("stop_reason").String() {
	case "max_tokens":
		resp.StopReason = StopMaxTokens
	case "tool_use":
		resp.StopReason = StopToolUse
	case "refusal":
		resp.StopReason = StopContentFilter
		resp.Refusal = true
	default:
		resp.StopReason = StopEndTurn
	}
	resp.Usage = decodeClaudeUsage(root.Get("usage"))
	return resp
}

func decodeClaudeUsage(u gjson.Result) Usage {
	var out Usage
	if v := u.Get("input_tokens"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("output_tokens"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	if v := u.Get("cache_creation_input_tokens"); v.Exists() {
		n := v.Int()
		out.CacheCreationInputTokens = &n
	}
	if v := u.Get("cache_read_input_tokens"); v.Exists() {
		n := v.Int()
		out.CacheReadInputTokens = &n
		out.CachedInputTokens = &n
	}
	if out.InputTokens != nil && out.OutputTokens != nil {
		total := *out.InputTokens + *out.OutputTokens
		out.TotalTokens = &total
	}
	return out
}

// EncodeClaudeResponse renders the IR into an Anthropic Messages API response.
func EncodeClaudeResponse(r Response) []byte {
	out := `{"id":"","type":"message","role":"assistant","model":"","content":[],"stop_reason":"end_turn","usage":{"input_tokens":0,"output_tokens":0}}`
	out, _ = sjson.Set(out, "id", r.ID)
	out, _ = sjson.Set(out, "model", r.Model)
	var content []any
	for _, p := range r.Parts {
		switch p.Kind {
		case PartText:
			content = append(content, map[string]any{"type": "text", "text": p.Text})
		case PartThinking:
			content = append(content, map[string]any{"type": "thinking", "thinking": p.Text})
		case PartToolUse:
			args := rawJSONOr(p.ToolArgsJSON, map[string]any{})
			content = append(content, map[string]any{"type": "tool_use", "id": p.ToolUseID, "name": p.ToolName, "input": args})
		}
	}
	if content == nil {
		content = []any{}
	}
	out, _ = sjson.SetRaw(out, "content", mustMarshal(content))

	stopReason := "end_turn"
	switch r.StopReason {
	case StopMaxTokens:
		stopReason = "max_tokens"
	case StopToolUse:
		stopReason = "tool_use"
	case StopContentFilter:
		stopReason = "refusal"
	case StopError:
		stopReason = "end_turn"
	}
	out, _ = sjson.Set(out, "stop_reason", stopReason)
	if r.Usage.InputTokens != nil {
		out, _ = sjson.Set(out, "usage.input_tokens", *r.Usage.InputTokens)
	}
	if r.Usage.OutputTokens != nil {
		out, _ = sjson.Set(out, "usage.output_tokens", *r.Usage.OutputTokens)
	}
	if r.Usage.CacheCreationInputTokens != nil {
		out, _ = sjson.Set(out, "usage.cache_creation_input_tokens", *r.Usage.CacheCreationInputTokens)
	}
	if r.Usage.CacheReadInputTokens != nil {
		out, _ = sjson.Set(out, "usage.cache_read_input_tokens", *r.Usage.CacheReadInputTokens)
	}
	return []byte(out)
}
