// Package research drives the tool-calling session that runs one experiment.
package research

import "context"

// StopToolUse is the stop reason of a turn that requested tool calls.
const StopToolUse = "tool_use"

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolDefinition describes a tool that the model can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolOutput answers one ToolCall.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one conversation turn. Assistant turns carry Text, Thinking and
// ToolCalls; user turns carry Text or ToolOutputs.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	Thinking    string       `json:"thinking,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolOutputs []ToolOutput `json:"tool_outputs,omitempty"`
}

type Request struct {
	Model     string           `json:"model"`
	System    string           `json:"system"`
	Messages  []Message        `json:"messages"`
	Tools     []ToolDefinition `json:"tools"`
	MaxTokens int              `json:"max_tokens"`
}

// Usage captures token usage for one turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type Response struct {
	Text       string     `json:"text"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	// Model is the model that served the turn; empty means the requested one.
	Model string `json:"model,omitempty"`
}

// Client is the language-model collaborator. Implementations own retries and timeouts.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
