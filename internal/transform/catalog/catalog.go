// Package catalog translates model list/get bodies between the three
// inbound wire protocols, and flattens Vertex's publisherModels shape (see
// SPEC_FULL.md §12) into the normalized registry.ModelInfo list every
// other provider already produces.
package catalog

import (
	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/registry"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const variant = "catalog-ir"

func init() {
	protocols := []constant.Protocol{constant.Claude, constant.Gemini, constant.OpenAIChat, constant.OpenAIResponse}
	for _, source := range protocols {
		for _, target := range protocols {
			if source == target {
				continue
			}
			dispatch.RegisterPair(dispatch.FamilyModelsList, source, target, variant)
			dispatch.RegisterPair(dispatch.FamilyModelsGet, source, target, variant)
		}
	}
}

// DecodeList parses a models-list response body in source's wire shape
// into the normalized model catalog.
func DecodeList(raw []byte, source constant.Protocol) []registry.ModelInfo {
	var out []registry.ModelInfo
	switch source {
	case constant.Gemini:
		gjson.GetBytes(raw, "models").ForEach(func(_, m gjson.Result) bool {
			out = append(out, decodeGeminiModel(m))
			return true
		})
	case constant.Claude, constant.OpenAIChat, constant.OpenAIResponse:
		gjson.GetBytes(raw, "data").ForEach(func(_, m gjson.Result) bool {
			out = append(out, decodeFlatModel(m))
			return true
		})
	}
	return out
}

// DecodeVertexPublisherModels flattens a Vertex ListPublisherModels
// response (publisherModels:[{name,versionId,...}]) into the normalized
// catalog, per the spec's supplemented Vertex provider.
func DecodeVertexPublisherModels(raw []byte) []registry.ModelInfo {
	var out []registry.ModelInfo
	gjson.GetBytes(raw, "publisherModels").ForEach(func(_, m gjson.Result) bool {
		name := m.Get("name").String()
		id, version := registry.SplitVersionSuffix(name)
		if v := m.Get("versionId").String(); v != "" {
			version = v
		}
		out = append(out, registry.ModelInfo{
			ID:      id,
			Object:  "model",
			Name:    registry.NormalizeName(id),
			Version: version,
		})
		return true
	})
	return out
}

func decodeGeminiModel(m gjson.Result) registry.ModelInfo {
	name := m.Get("name").String()
	id := name
	if len(id) > 7 && id[:7] == "models/" {
		id = id[7:]
	}
	version := m.Get("version").String()
	if version == "" {
		_, version = registry.SplitVersionSuffix(id)
	}
	var methods []string
	m.Get("supportedGenerationMethods").ForEach(func(_, v gjson.Result) bool {
		methods = append(methods, v.String())
		return true
	})
	return registry.ModelInfo{
		ID:                         id,
		Object:                     "model",
		Name:                       registry.NormalizeName(id),
		Version:                    version,
		DisplayName:                m.Get("displayName").String(),
		Description:                m.Get("description").String(),
		InputTokenLimit:            int(m.Get("inputTokenLimit").Int()),
		OutputTokenLimit:           int(m.Get("outputTokenLimit").Int()),
		SupportedGenerationMethods: methods,
	}
}

func decodeFlatModel(m gjson.Result) registry.ModelInfo {
	id := m.Get("id").String()
	return registry.ModelInfo{
		ID:      id,
		Object:  "model",
		Created: m.Get("created").Int(),
		OwnedBy: m.Get("owned_by").String(),
		Name:    registry.NormalizeName(id),
	}
}

// EncodeList renders the normalized catalog into target's models-list
// wire shape.
func EncodeList(models []registry.ModelInfo, target constant.Protocol) []byte {
	switch target {
	case constant.Gemini:
		var items []any
		for _, m := range models {
			items = append(items, encodeGeminiModel(m))
		}
		if items == nil {
			items = []any{}
		}
		out, _ := sjson.SetRaw(`{}`, "models", mustMarshal(items))
		return []byte(out)
	default:
		var items []any
		for _, m := range models {
			items = append(items, encodeFlatModel(m))
		}
		if items == nil {
			items = []any{}
		}
		out := `{"object":"list"}`
		out, _ = sjson.SetRaw(out, "data", mustMarshal(items))
		return []byte(out)
	}
}

// EncodeGet renders one model into target's models-get wire shape.
func EncodeGet(m registry.ModelInfo, target constant.Protocol) []byte {
	switch target {
	case constant.Gemini:
		return mustMarshalBytes(encodeGeminiModel(m))
	default:
		return mustMarshalBytes(encodeFlatModel(m))
	}
}

func encodeGeminiModel(m registry.ModelInfo) map[string]any {
	out := map[string]any{
		"name":    registry.NormalizeName(m.ID),
		"version": m.Version,
	}
	if out["version"] == "" {
		out["version"] = "unknown"
	}
	if m.DisplayName != "" {
		out["displayName"] = m.DisplayName
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.InputTokenLimit != 0 {
		out["inputTokenLimit"] = m.InputTokenLimit
	}
	if m.OutputTokenLimit != 0 {
		out["outputTokenLimit"] = m.OutputTokenLimit
	}
	if len(m.SupportedGenerationMethods) > 0 {
		out["supportedGenerationMethods"] = m.SupportedGenerationMethods
	} else {
		out["supportedGenerationMethods"] = []string{"generateContent", "countTokens"}
	}
	return out
}

func encodeFlatModel(m registry.ModelInfo) map[string]any {
	ownedBy := m.OwnedBy
	if ownedBy == "" {
		ownedBy = "gproxy"
	}
	return map[string]any{
		"id":       m.ID,
		"object":   "model",
		"created":  m.Created,
		"owned_by": ownedBy,
	}
}
