package dispatch

import (
	"fmt"

	"github.com/module-gw/gproxy/internal/constant"
)

// Request is the tagged variant carrying the typed inbound DTO for one Op.
// The payload is kept as raw wire bytes (the teacher's gjson/sjson
// convention never needs a parsed struct on the hot path) plus the
// minimal routing fields the dispatcher and pool need without touching
// the wire form.
type Request struct {
	Op      constant.Op
	Model   string
	Payload []byte
}

// Family identifies which of the five transform families a (source,
// target) pair belongs to; the dispatch engine picks a concrete
// implementation per family rather than per Op, since e.g. every
// *Stream Op in one protocol shares the same streaming translator.
type Family int

const (
	FamilyGenerateContent Family = iota
	FamilyStreamContent
	FamilyCountTokens
	FamilyModelsList
	FamilyModelsGet
)

func (o Family) String() string {
	switch o {
	case FamilyGenerateContent:
		return "generate_content"
	case FamilyStreamContent:
		return "stream_content"
	case FamilyCountTokens:
		return "count_tokens"
	case FamilyModelsList:
		return "models_list"
	case FamilyModelsGet:
		return "models_get"
	default:
		return "unknown"
	}
}

func familyOf(op constant.Op) (Family, bool) {
	switch op {
	case constant.ClaudeMessages, constant.GeminiGenerate, constant.OpenAIChatOp, constant.OpenAIResponses:
		return FamilyGenerateContent, true
	case constant.ClaudeMessagesStream, constant.GeminiGenerateStream, constant.OpenAIChatStream, constant.OpenAIResponsesStream:
		return FamilyStreamContent, true
	case constant.ClaudeCountTokens, constant.GeminiCountTokens:
		return FamilyCountTokens, true
	case constant.ClaudeModelsList, constant.GeminiModelsList, constant.OpenAIModelsList, constant.OpenAIResponsesModelsList:
		return FamilyModelsList, true
	case constant.ClaudeModelsGet, constant.GeminiModelsGet, constant.OpenAIModelsGet, constant.OpenAIResponsesModelsGet:
		return FamilyModelsGet, true
	default:
		return 0, false
	}
}

// pairKey identifies a directed (source, target) protocol pair within one
// family.
type pairKey struct {
	family Family
	source constant.Protocol
	target constant.Protocol
}

// legalPairs enumerates exactly the supported translations. An entry
// present here with a non-nil variant means the engine can build a
// TransformPlan; absence means Unsupported regardless of what the
// provider's table says. This mirrors spec §4.1: "the (source,target)
// pair table enumerates exactly the legal translations."
var legalPairs = map[pairKey]string{}

// RegisterPair records that a concrete transform variant exists for a
// (family, source, target) triple. Transform and stream packages call
// this from their init() so the legal-pair table is built by the same
// self-registration idiom the teacher's internal/translator packages use
// (translator.Register in every init.go).
func RegisterPair(family Family, source, target constant.Protocol, variant string) {
	if source == target {
		// identity is never a transform; Native handles it.
		return
	}
	legalPairs[pairKey{family, source, target}] = variant
}

// TransformPlan names the concrete transform variant chosen for one
// family across a directed protocol pair.
type TransformPlan struct {
	Family  Family
	Source  constant.Protocol
	Target  constant.Protocol
	Variant string
}

// PlanKind tags the three possible outcomes of Plan.
type PlanKind int

const (
	KindNative PlanKind = iota
	KindTransform
	KindUnsupported
)

// Plan is the result of classifying one inbound Request against a
// provider's DispatchTable.
type Plan struct {
	Kind      PlanKind
	Request   Request
	Usage     constant.UsageKind
	Transform TransformPlan
	Reason    string
}

// Build classifies req under table, selecting a TransformPlan when
// required. This is the whole of spec §4.1's algorithm: a constant-time
// array lookup plus, for Transform specs, one map lookup into the legal
// pair table.
func Build(req Request, table *Table) Plan {
	spec := table[req.Op]
	switch spec.Mode {
	case ModeNative:
		return Plan{Kind: KindNative, Request: req, Usage: spec.Usage}
	case ModeUnsupported:
		return Plan{Kind: KindUnsupported, Request: req, Reason: "unsupported operation"}
	case ModeTransform:
		family, ok := familyOf(req.Op)
		if !ok {
			return Plan{Kind: KindUnsupported, Request: req, Reason: "unsupported operation"}
		}
		source := req.Op.Protocol()
		variant, ok := legalPairs[pairKey{family, source, spec.Target}]
		if !ok {
			return Plan{Kind: KindUnsupported, Request: req, Reason: "unsupported transform"}
		}
		return Plan{
			Kind:  KindTransform,
			Request: req,
			Usage: spec.Usage,
			Transform: TransformPlan{
				Family:  family,
				Source:  source,
				Target:  spec.Target,
				Variant: variant,
			},
		}
	default:
		return Plan{Kind: KindUnsupported, Request: req, Reason: fmt.Sprintf("unknown dispatch mode %d", spec.Mode)}
	}
}
