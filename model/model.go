// Package model abstracts the language model providers used by the
// model-driven planner and debate adapters. The interface is deliberately
// small: the pipeline only ever needs a single bounded completion per call,
// never streaming or tool use.
package model

import (
	"context"
	"fmt"
	"strings"
)

// Request is one completion request.
type Request struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// Response carries the completion text and token accounting.
type Response struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface the pipeline's model-driven components
// depend on.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are matched by prompt substring in registration order.
type MockModel struct {
	info      Info
	keys      []string
	responses map[string]string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for prompts containing key.
func (m *MockModel) AddResponse(key, response string) {
	if _, ok := m.responses[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.responses[key] = response
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	for _, key := range m.keys {
		if strings.Contains(req.Prompt, key) || strings.Contains(req.System, key) {
			return Response{Text: m.responses[key], TokensUsed: len(m.responses[key]) / 4}, nil
		}
	}
	return Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
