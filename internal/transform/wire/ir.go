// Package wire defines a protocol-neutral intermediate representation for
// chat/completion requests and responses, plus one decoder/encoder pair
// per wire protocol. Every directed transform in internal/transform/generate
// composes decode(source) -> encode(target) instead of hand-rolling twelve
// direct pairwise conversions; this is the one place the teacher's
// per-pair gjson/sjson files (internal/translator/<src>/<dst>/*.go, which
// each re-derive the same image/tool-call mapping) are factored rather
// than copied, because the duplication across those files is the actual
// signal calling for a shared representation.
package wire

// PartKind enumerates the union of content parts every protocol can carry.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
	PartDocument
	PartToolUse
	PartToolResult
	PartThinking
)

// Image captures every form a source image part can take; an encoder picks
// whichever field the target protocol supports.
type Image struct {
	URL    string // direct URL, passed through as-is
	Base64 string // raw base64 payload (no data: prefix)
	Mime   string
	FileID string
}

// Part is one piece of message content.
type Part struct {
	Kind PartKind

	Text string // PartText, PartThinking

	Image Image // PartImage
	DocumentName string // PartDocument placeholder text label when no native file part exists

	ToolUseID   string // PartToolUse, PartToolResult
	ToolName    string // PartToolUse
	ToolArgsJSON string // PartToolUse, raw JSON object text

	ToolResultText  string // PartToolResult
	ToolResultIsErr bool
}

// Message is one role-tagged turn.
type Message struct {
	Role  string // "user" | "assistant"
	Parts []Part
}

// ToolChoiceMode enumerates the normalized tool_choice behaviors.
type ToolChoiceMode int

const (
	ToolChoiceAuto ToolChoiceMode = iota
	ToolChoiceAny
	ToolChoiceNone
	ToolChoiceNamed
)

// ToolChoice is the normalized tool_choice setting.
type ToolChoice struct {
	Mode            ToolChoiceMode
	Name            string // only when Mode == ToolChoiceNamed
	DisableParallel bool
}

// BuiltinTool is one of the provider built-in tools named in spec §4.2.3.
// Name is the protocol-neutral key (e.g. "web_search", "code_execution");
// per-protocol encoders map it to their own wire name or drop it.
type BuiltinTool struct {
	Name          string
	ServerLabel   string // MCP
	ServerURL     string // MCP
	Authorization string // MCP
	AllowedTools  []string // MCP
	DisplaySize   [2]int   // computer_use
}

// ToolDef is a custom function tool definition.
type ToolDef struct {
	Name          string
	Description   string
	ParametersRaw string // raw JSON schema object, passed through where supported
}

// Reasoning is the normalized effort/thinking configuration.
type Reasoning struct {
	// Effort is one of "", "none", "low", "medium", "high", "xhigh". Empty
	// means the source expressed no opinion.
	Effort string
}

// ResponseFormat is a normalized structured-output request.
type ResponseFormat struct {
	SchemaRaw string // raw JSON schema, empty if none requested
	Name      string
}

// Request is the protocol-neutral request IR.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	Tools         []ToolDef
	BuiltinTools  []BuiltinTool
	ToolChoice    *ToolChoice
	MaxTokens     int64
	HasMaxTokens  bool
	Temperature   *float64
	TopP          *float64
	TopK          *int64
	StopSequences []string
	Stream        bool
	Reasoning     *Reasoning
	ResponseFormat *ResponseFormat
	Metadata      map[string]string
}

// StopReason is the normalized terminal reason for a response.
type StopReason int

const (
	StopEndTurn StopReason = iota
	StopMaxTokens
	StopToolUse
	StopContentFilter
	StopError
)

// Usage is the union of every protocol's token counters; only populated
// fields are meaningful, matching spec §3.5 ("fields are optional").
type Usage struct {
	InputTokens            *int64
	OutputTokens           *int64
	TotalTokens            *int64
	CacheCreationInputTokens *int64
	CacheReadInputTokens     *int64
	CachedInputTokens        *int64
	ReasoningOutputTokens    *int64
}

// Response is the protocol-neutral response IR.
type Response struct {
	Model      string
	ID         string
	Parts      []Part
	StopReason StopReason
	Usage      Usage
	Refusal    bool
}
