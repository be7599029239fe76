// Package content defines the tagged data model shared across the agent
// loop, the subprocess wire codecs, and the tool executor: content blocks,
// messages, turn records, and prompt layers.
package content

// Block is a tagged variant over the content kinds a message may carry.
// Exactly one of the kind-specific fields is populated, selected by Kind.
type Block struct {
	Kind Kind `json:"kind"`

	// text
	Text string `json:"text,omitempty"`

	// image / document
	MediaType string `json:"media_type,omitempty"`
	Base64    string `json:"base64,omitempty"`

	// tool_use
	ToolUseID string         `json:"id,omitempty"`
	ToolName  string         `json:"name,omitempty"`
	ToolInput map[string]any `json:"input,omitempty"`

	// tool_result
	ToolResultForID string `json:"tool_use_id,omitempty"`
	ToolResultText  string `json:"content,omitempty"`
	IsError         bool   `json:"is_error,omitempty"`
}

// Kind discriminates Block's variant.
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindDocument   Kind = "document"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
)

func Text(text string) Block { return Block{Kind: KindText, Text: text} }

func Image(mediaType, base64Data string) Block {
	return Block{Kind: KindImage, MediaType: mediaType, Base64: base64Data}
}

func Document(mediaType, base64Data string) Block {
	return Block{Kind: KindDocument, MediaType: mediaType, Base64: base64Data}
}

func ToolUse(id, name string, input map[string]any) Block {
	return Block{Kind: KindToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

func ToolResult(toolUseID, text string, isError bool) Block {
	return Block{Kind: KindToolResult, ToolResultForID: toolUseID, ToolResultText: text, IsError: isError}
}

// Role is the message originator.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn's content, either a plain string (common for
// simple user turns) or an ordered sequence of blocks.
type Message struct {
	Role    Role    `json:"role"`
	Text    string  `json:"text,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// HasBlocks reports whether this message carries structured blocks rather
// than (or in addition to) plain text.
func (m Message) HasBlocks() bool { return len(m.Blocks) > 0 }

// StopReason classifies why a model turn ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage mirrors reported token accounting for a turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Turn is a single recorded step of the agent loop's history.
type Turn struct {
	TurnNumber int        `json:"turn_number"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Blocks     []Block    `json:"blocks,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// PromptLayer is one named, prioritized fragment of a composed system
// prompt. Priority 1 is never truncated; higher numbers are progressively
// more expendable.
type PromptLayer struct {
	Name     string
	Content  string
	Priority int
}
