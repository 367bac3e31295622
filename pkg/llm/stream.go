package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"chartsmith/pkg/tools"
)

// ProviderStream adapts a Client into a ToolCallStream by threading the
// conversation: each Next call feeds the previous step's tool results
// back to the model and returns the next batch of tool calls.
type ProviderStream struct {
	client   Client
	messages []CompletionMessage
	tools    []tools.ToolDefinition
	lastStep *ToolStep
	done     bool
	maxTok   int
}

// NewProviderStream starts a tool-calling conversation with the given
// system and user prompts.
func NewProviderStream(client Client, systemPrompt, userPrompt string, defs []tools.ToolDefinition, maxTokens int) *ProviderStream {
	messages := []CompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, NewSystemMessage(systemPrompt))
	}
	messages = append(messages, NewUserMessage(userPrompt))

	return &ProviderStream{
		client:   client,
		messages: messages,
		tools:    defs,
		maxTok:   maxTokens,
	}
}

// Next implements ToolCallStream.
func (s *ProviderStream) Next(ctx context.Context, results []ToolResult) (*ToolStep, error) {
	if s.done {
		return nil, ErrStreamDone
	}

	// Thread the previous step and its results into the conversation.
	if s.lastStep != nil {
		s.messages = append(s.messages, CompletionMessage{
			Role:    RoleAssistant,
			Content: describeStep(s.lastStep),
		})
		s.messages = append(s.messages, CompletionMessage{
			Role:    RoleUser,
			Content: describeResults(results),
		})
	}

	resp, err := s.client.Complete(ctx, CompletionRequest{
		Messages:  s.messages,
		Tools:     s.tools,
		MaxTokens: s.maxTok,
	})
	if err != nil {
		return nil, fmt.Errorf("tool call stream: %w", err)
	}

	step := &ToolStep{
		ToolCalls: resp.ToolCalls,
		Content:   resp.Content,
	}
	s.lastStep = step

	// No tool calls means the model is finished.
	if len(resp.ToolCalls) == 0 {
		s.done = true
	}
	return step, nil
}

func describeStep(step *ToolStep) string {
	if len(step.ToolCalls) == 0 {
		return step.Content
	}
	out := step.Content
	for i := range step.ToolCalls {
		call := &step.ToolCalls[i]
		params, _ := json.Marshal(call.Parameters)
		out += fmt.Sprintf("\n[tool_call %s] %s(%s)", call.ID, call.Name, params)
	}
	return out
}

func describeResults(results []ToolResult) string {
	if len(results) == 0 {
		return "(no tool results)"
	}
	out := ""
	for i := range results {
		r := &results[i]
		status := "ok"
		if r.IsError {
			status = "error"
		}
		out += fmt.Sprintf("[tool_result %s %s] %s\n", r.ToolCallID, status, r.Content)
	}
	return out
}
