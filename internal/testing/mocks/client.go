// Package mocks provides controllable fakes shared by the agent tests.
package mocks

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"
)

// MockClient is a mock implementation of llm.Client for testing.
type MockClient struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	index     int

	// Calls records every request for assertion.
	Calls []Call
}

// Call is one recorded GenerateContent invocation.
type Call struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// GenerateContent returns queued responses in order, or delegates to
// GenerateContentFunc when set.
func (m *MockClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Model: model, Contents: contents, Config: config})
	m.mu.Unlock()

	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, model, contents, config)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.responses) {
		return nil, errors.New("no queued response")
	}
	resp := m.responses[m.index]
	m.index++
	return resp, nil
}

// WithResponse queues a prepared response.
func (m *MockClient) WithResponse(resp *genai.GenerateContentResponse) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// WithTextResponse queues a plain text response.
func (m *MockClient) WithTextResponse(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, TextResponse(text))
	return m
}

// TextResponse builds a single-candidate text response.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

// TokenProb is one candidate token with its log-probability.
type TokenProb struct {
	Token   string
	LogProb float32
}

// LogprobsResponse builds a one-token response carrying logprobs: the
// chosen token plus its top alternatives in rank order.
func LogprobsResponse(chosen string, chosenLogProb float32, top ...TokenProb) *genai.GenerateContentResponse {
	var alternatives []*genai.LogprobsResultCandidate
	for _, tp := range top {
		alternatives = append(alternatives, &genai.LogprobsResultCandidate{
			Token:          tp.Token,
			LogProbability: tp.LogProb,
		})
	}

	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: chosen}},
			},
			LogprobsResult: &genai.LogprobsResult{
				ChosenCandidates: []*genai.LogprobsResultCandidate{{
					Token:          chosen,
					LogProbability: chosenLogProb,
				}},
				TopCandidates: []*genai.LogprobsResultTopCandidates{{
					Candidates: alternatives,
				}},
			},
		}},
	}
}
