package dispatch

import "github.com/module-gw/gproxy/internal/constant"

// usageKindFor returns the wire usage shape an Op's own protocol carries,
// used to populate OpSpec.Usage uniformly across every provider table
// instead of hand-listing it per provider.
func usageKindFor(op constant.Op) constant.UsageKind {
	switch op.Protocol() {
	case constant.Claude:
		return constant.UsageClaudeMessage
	case constant.Gemini:
		return constant.UsageGeminiGenerate
	case constant.OpenAIChat:
		return constant.UsageOpenAIChat
	case constant.OpenAIResponse:
		return constant.UsageOpenAIResponses
	default:
		return constant.UsageNone
	}
}

// NativeTable builds the dense DispatchTable for a provider whose native
// upstream protocol is proto: every Op already expressed in proto is
// Native, every Op belonging to a family with a registered legal pair
// into proto is Transform(proto), and everything else (an Op with no
// legal pair into this provider's protocol, e.g. a models.get variant the
// pack never wires) is Unsupported.
//
// Grounded on the teacher's one-struct-per-provider dispatch shown across
// internal/runtime/executor, generalized from "provider knows which ops
// it implements" into "provider is native in one protocol, everything
// else reaches it via the transform library."
func NativeTable(proto constant.Protocol) Table {
	var t Table
	for i := 0; i < constant.OpCount; i++ {
		op := constant.Op(i)
		switch op {
		case constant.OAuthStart, constant.OAuthCallback, constant.Usage:
			t[i] = OpSpec{Mode: ModeNative, Usage: constant.UsageNone}
			continue
		}
		if op.Protocol() == proto {
			t[i] = OpSpec{Mode: ModeNative, Usage: usageKindFor(op)}
			continue
		}
		family, ok := familyOf(op)
		if !ok {
			t[i] = OpSpec{Mode: ModeUnsupported}
			continue
		}
		if _, ok := legalPairs[pairKey{family, op.Protocol(), proto}]; ok {
			t[i] = OpSpec{Mode: ModeTransform, Target: proto, Usage: usageKindFor(op)}
			continue
		}
		t[i] = OpSpec{Mode: ModeUnsupported}
	}
	return t
}
