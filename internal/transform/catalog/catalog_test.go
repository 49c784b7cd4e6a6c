package catalog

import (
	"testing"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/registry"
	"github.com/tidwall/gjson"
)

func TestDecodeListGemini(t *testing.T) {
	raw := []byte(`{"models":[{"name":"models/gemini-2.5-pro","displayName":"Gemini 2.5 Pro","inputTokenLimit":1000000}]}`)
	models := DecodeList(raw, constant.Gemini)
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	if models[0].ID != "gemini-2.5-pro" || models[0].DisplayName != "Gemini 2.5 Pro" {
		t.Errorf("model = %+v", models[0])
	}
	if models[0].InputTokenLimit != 1000000 {
		t.Errorf("InputTokenLimit = %d, want 1000000", models[0].InputTokenLimit)
	}
}

func TestDecodeListFlat(t *testing.T) {
	raw := []byte(`{"data":[{"id":"gpt-4o","created":123,"owned_by":"openai"}]}`)
	models := DecodeList(raw, constant.OpenAIChat)
	if len(models) != 1 || models[0].ID != "gpt-4o" || models[0].OwnedBy != "openai" {
		t.Errorf("models = %+v", models)
	}
}

func TestDecodeVertexPublisherModelsSplitsVersion(t *testing.T) {
	raw := []byte(`{"publisherModels":[{"name":"publishers/google/models/gemini-pro@001"}]}`)
	models := DecodeVertexPublisherModels(raw)
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	if models[0].ID != "publishers/google/models/gemini-pro" || models[0].Version != "001" {
		t.Errorf("model = %+v", models[0])
	}
}

func TestDecodeVertexPublisherModelsPrefersExplicitVersionID(t *testing.T) {
	raw := []byte(`{"publisherModels":[{"name":"gemini-pro@001","versionId":"002"}]}`)
	models := DecodeVertexPublisherModels(raw)
	if models[0].Version != "002" {
		t.Errorf("Version = %q, want 002 (explicit versionId wins over @ suffix)", models[0].Version)
	}
}

func TestEncodeListGeminiShape(t *testing.T) {
	raw := EncodeList([]registry.ModelInfo{{ID: "gemini-2.5-pro"}}, constant.Gemini)
	if gjson.GetBytes(raw, "models.0.name").String() != "models/gemini-2.5-pro" {
		t.Errorf("name = %q, want models/gemini-2.5-pro", gjson.GetBytes(raw, "models.0.name").String())
	}
	if gjson.GetBytes(raw, "models.0.version").String() != "unknown" {
		t.Errorf("version = %q, want unknown default", gjson.GetBytes(raw, "models.0.version").String())
	}
}

func TestEncodeListFlatShapeEmpty(t *testing.T) {
	raw := EncodeList(nil, constant.OpenAIChat)
	if gjson.GetBytes(raw, "object").String() != "list" {
		t.Errorf("object = %q, want list", gjson.GetBytes(raw, "object").String())
	}
	if arr := gjson.GetBytes(raw, "data").Array(); len(arr) != 0 {
		t.Errorf("expected empty data array, got %d items", len(arr))
	}
}

func TestEncodeGetFlatOwnedByDefault(t *testing.T) {
	raw := EncodeGet(registry.ModelInfo{ID: "gpt-4o"}, constant.OpenAIChat)
	if gjson.GetBytes(raw, "owned_by").String() != "gproxy" {
		t.Errorf("owned_by = %q, want gproxy default", gjson.GetBytes(raw, "owned_by").String())
	}
}

func TestEncodeGetGeminiIncludesDefaultGenerationMethods(t *testing.T) {
	raw := EncodeGet(registry.ModelInfo{ID: "gemini-2.5-pro"}, constant.Gemini)
	methods := gjson.GetBytes(raw, "supportedGenerationMethods").Array()
	if len(methods) != 2 {
		t.Fatalf("expected 2 default generation methods, got %d", len(methods))
	}
}
