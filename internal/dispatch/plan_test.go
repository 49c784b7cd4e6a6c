package dispatch

import (
	"testing"

	"github.com/module-gw/gproxy/internal/constant"
)

func TestNativeTableMarksOwnProtocolNative(t *testing.T) {
	table := NativeTable(constant.Claude)
	spec := table[constant.ClaudeMessages]
	if spec.Mode != ModeNative {
		t.Fatalf("ClaudeMessages on a Claude-native table: Mode = %v, want ModeNative", spec.Mode)
	}
	if spec.Usage != constant.UsageClaudeMessage {
		t.Errorf("Usage = %v, want UsageClaudeMessage", spec.Usage)
	}
}

func TestNativeTableOAuthAndUsageAlwaysNative(t *testing.T) {
	for _, proto := range []constant.Protocol{constant.Claude, constant.Gemini, constant.OpenAIChat, constant.OpenAIResponse} {
		table := NativeTable(proto)
		for _, op := range []constant.Op{constant.OAuthStart, constant.OAuthCallback, constant.Usage} {
			if table[op].Mode != ModeNative {
				t.Errorf("proto %s: op %s Mode = %v, want ModeNative", proto, op, table[op].Mode)
			}
		}
	}
}

func TestNativeTableTransformRequiresRegisteredPair(t *testing.T) {
	// Before any pair is registered for FamilyGenerateContent between
	// Gemini and Claude, a Claude-native table must mark Gemini's
	// generate op Unsupported.
	table := NativeTable(constant.Claude)
	if table[constant.GeminiGenerate].Mode != ModeUnsupported {
		t.Fatalf("expected GeminiGenerate unsupported on a Claude table with no registered pair, got %v", table[constant.GeminiGenerate].Mode)
	}

	RegisterPair(FamilyGenerateContent, constant.Gemini, constant.Claude, "gemini_to_claude")
	table = NativeTable(constant.Claude)
	spec := table[constant.GeminiGenerate]
	if spec.Mode != ModeTransform {
		t.Fatalf("after registering the pair, Mode = %v, want ModeTransform", spec.Mode)
	}
	if spec.Target != constant.Claude {
		t.Errorf("Target = %v, want Claude", spec.Target)
	}
}

func TestRegisterPairIgnoresIdentity(t *testing.T) {
	before := len(legalPairs)
	RegisterPair(FamilyCountTokens, constant.Claude, constant.Claude, "noop")
	if len(legalPairs) != before {
		t.Error("RegisterPair with source == target must not add an entry")
	}
}

func TestBuildUnsupportedOp(t *testing.T) {
	var table Table // zero value: every slot ModeUnsupported
	plan := Build(Request{Op: constant.ClaudeMessages}, &table)
	if plan.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want KindUnsupported", plan.Kind)
	}
}

func TestBuildNativePassesThrough(t *testing.T) {
	table := NativeTable(constant.OpenAIChat)
	plan := Build(Request{Op: constant.OpenAIChatOp, Model: "gpt-4o"}, &table)
	if plan.Kind != KindNative {
		t.Fatalf("Kind = %v, want KindNative", plan.Kind)
	}
	if plan.Request.Model != "gpt-4o" {
		t.Errorf("Request.Model = %q, want gpt-4o", plan.Request.Model)
	}
}

func TestBuildTransformSelectsRegisteredVariant(t *testing.T) {
	RegisterPair(FamilyGenerateContent, constant.OpenAIChat, constant.Claude, "openai_to_claude")
	table := NativeTable(constant.Claude)
	plan := Build(Request{Op: constant.OpenAIChatOp}, &table)
	if plan.Kind != KindTransform {
		t.Fatalf("Kind = %v, want KindTransform", plan.Kind)
	}
	if plan.Transform.Variant != "openai_to_claude" {
		t.Errorf("Transform.Variant = %q, want openai_to_claude", plan.Transform.Variant)
	}
	if plan.Transform.Source != constant.OpenAIChat || plan.Transform.Target != constant.Claude {
		t.Errorf("Transform source/target = %v/%v, want OpenAIChat/Claude", plan.Transform.Source, plan.Transform.Target)
	}
}
