package llm

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/genai"
)

// Request describes one completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// TokenScore is the log-probability data for the first generated token.
type TokenScore struct {
	Token         string
	LogProb       float64
	TopCandidates []Candidate
}

// Candidate is one alternative token with its log-probability.
type Candidate struct {
	Token   string
	LogProb float64
}

// CompleteText runs a plain-text completion.
func CompleteText(ctx context.Context, c Client, req Request) (string, error) {
	resp, err := c.GenerateContent(ctx, req.Model, userContents(req.User), baseConfig(req))
	if err != nil {
		return "", &ClientError{Code: ErrorCodeTransport, Message: "classifier call failed", Underlying: err}
	}
	return responseText(resp)
}

// CompleteJSON runs a JSON-mode completion and unmarshals the response
// into out. A non-JSON response is surfaced as a ClientError echoing the
// raw content for diagnosis.
func CompleteJSON(ctx context.Context, c Client, req Request, out any) error {
	cfg := baseConfig(req)
	cfg.ResponseMIMEType = "application/json"

	resp, err := c.GenerateContent(ctx, req.Model, userContents(req.User), cfg)
	if err != nil {
		return &ClientError{Code: ErrorCodeTransport, Message: "classifier call failed", Underlying: err}
	}

	text, err := responseText(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &ClientError{
			Code:       ErrorCodeMalformed,
			Message:    "invalid JSON response",
			RawContent: text,
			Underlying: err,
		}
	}
	return nil
}

// CompleteWithLogprobs runs a single-token completion requesting the
// chosen token's log-probability and the top-2 candidate tokens.
func CompleteWithLogprobs(ctx context.Context, c Client, req Request) (*TokenScore, error) {
	cfg := baseConfig(req)
	cfg.MaxOutputTokens = 1
	cfg.ResponseLogprobs = true
	cfg.Logprobs = genai.Ptr(int32(2))

	resp, err := c.GenerateContent(ctx, req.Model, userContents(req.User), cfg)
	if err != nil {
		return nil, &ClientError{Code: ErrorCodeTransport, Message: "classifier call failed", Underlying: err}
	}
	if len(resp.Candidates) == 0 {
		return nil, &ClientError{Code: ErrorCodeEmpty, Message: ErrNoCandidates.Error(), Underlying: ErrNoCandidates}
	}

	lr := resp.Candidates[0].LogprobsResult
	if lr == nil || len(lr.ChosenCandidates) == 0 {
		return nil, &ClientError{Code: ErrorCodeEmpty, Message: ErrMissingLogprobs.Error(), Underlying: ErrMissingLogprobs}
	}

	chosen := lr.ChosenCandidates[0]
	score := &TokenScore{
		Token:   strings.TrimSpace(chosen.Token),
		LogProb: float64(chosen.LogProbability),
	}
	if len(lr.TopCandidates) > 0 {
		for _, cand := range lr.TopCandidates[0].Candidates {
			score.TopCandidates = append(score.TopCandidates, Candidate{
				Token:   strings.TrimSpace(cand.Token),
				LogProb: float64(cand.LogProbability),
			})
		}
	}
	return score, nil
}

func baseConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}
	return cfg
}

func userContents(text string) []*genai.Content {
	return []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(text)},
		},
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", &ClientError{Code: ErrorCodeEmpty, Message: ErrNoCandidates.Error(), Underlying: ErrNoCandidates}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", &ClientError{Code: ErrorCodeBlocked, Message: ErrBlocked.Error(), Underlying: ErrBlocked}
	}
	if candidate.Content == nil {
		return "", &ClientError{Code: ErrorCodeEmpty, Message: "empty candidate content"}
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return strings.TrimSpace(text), nil
}
