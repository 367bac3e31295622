package llm

import (
	"context"
	"fmt"
)

// MockClient provides a controllable implementation of Client for testing.
type MockClient struct {
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
}

// NewMockClient creates a new mock client with predefined responses.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName implements Client.
func (m *MockClient) GetModelName() string {
	return "mock"
}

// ScriptedStream replays a fixed sequence of tool steps, recording the
// tool results handed back between steps.
type ScriptedStream struct {
	Steps     []*ToolStep
	Errs      []error
	Received  [][]ToolResult
	stepIndex int
}

// Next implements ToolCallStream.
func (s *ScriptedStream) Next(_ context.Context, results []ToolResult) (*ToolStep, error) {
	// Callers may reuse the results slice between steps.
	recorded := make([]ToolResult, len(results))
	copy(recorded, results)
	s.Received = append(s.Received, recorded)

	if s.stepIndex < len(s.Errs) && s.Errs[s.stepIndex] != nil {
		err := s.Errs[s.stepIndex]
		s.stepIndex++
		return nil, err
	}

	if s.stepIndex >= len(s.Steps) {
		return nil, ErrStreamDone
	}

	step := s.Steps[s.stepIndex]
	s.stepIndex++
	return step, nil
}
