// Package confidence converts a single-token binary rule-violation
// verdict into a calibrated confidence value using the token
// log-probabilities the classifier returns alongside it.
package confidence

import (
	"context"
	"math"
	"strings"

	"modkeeper/internal/llm"
)

// Method selects the transform applied to the raw log-probabilities.
type Method string

const (
	// MethodLogOdds computes sigmoid(logP(Y) - logP(N)): the probability
	// mass on Y under the binary-only event space, independent of mass
	// the model placed on other tokens.
	MethodLogOdds Method = "log_odds"

	// MethodNormalizedDiff computes (p_top - p_second) / (p_top + p_second).
	MethodNormalizedDiff Method = "normalized_diff"
)

const systemPrompt = `You are a rule violation detection agent. You will receive exactly one rule and one target (post or comment) to evaluate.

Your task is to determine if the target violates the rule.

CRITICAL INSTRUCTIONS:
- You MUST respond with exactly one character: Y or N
- Y means the rule IS violated
- N means the rule is NOT violated
- Do not include any explanation, punctuation, or additional text
- Do not respond in JSON format
- Your entire response must be exactly one letter: Y or N`

// Result is the scored verdict for one rule/target pair.
type Result struct {
	Answer        string
	Confidence    float64
	RawLogProb    float64
	Token         string
	TopCandidates []llm.Candidate
}

// Scorer asks the classifier the strict binary question and transforms
// the returned log-probabilities.
type Scorer struct {
	client llm.Client
	model  string
	method Method
}

// NewScorer creates a Scorer. An unknown method falls back to log-odds.
func NewScorer(client llm.Client, model string, method Method) *Scorer {
	if method != MethodNormalizedDiff {
		method = MethodLogOdds
	}
	return &Scorer{client: client, model: model, method: method}
}

// Score evaluates whether target violates rule. Classifier failure or
// missing log-probability data is returned as an error; no panic ever
// escapes to the caller.
func (s *Scorer) Score(ctx context.Context, rule, target string) (Result, error) {
	user := "Rule: " + rule + "\n\nTarget to evaluate: " + target + "\n\nDoes the target violate the rule? Answer Y or N only."

	score, err := llm.CompleteWithLogprobs(ctx, s.client, llm.Request{
		Model:       s.model,
		System:      systemPrompt,
		User:        user,
		Temperature: 0,
		MaxTokens:   1,
	})
	if err != nil {
		return Result{}, err
	}
	return s.transform(score), nil
}

// transform applies the configured method to a token score.
func (s *Scorer) transform(score *llm.TokenScore) Result {
	var conf float64
	switch s.method {
	case MethodNormalizedDiff:
		conf = normalizedDiff(score)
	default:
		conf = logOdds(score)
	}

	return Result{
		Answer:        strings.ToUpper(score.Token),
		Confidence:    round4(conf),
		RawLogProb:    score.LogProb,
		Token:         score.Token,
		TopCandidates: score.TopCandidates,
	}
}

func logOdds(score *llm.TokenScore) float64 {
	if len(score.TopCandidates) < 2 {
		return math.Exp(score.LogProb)
	}

	var logY, logN *float64
	note := func(token string, lp float64) {
		switch strings.ToUpper(token) {
		case "Y":
			if logY == nil {
				logY = &lp
			}
		case "N":
			if logN == nil {
				logN = &lp
			}
		}
	}
	note(score.Token, score.LogProb)
	for _, c := range score.TopCandidates {
		note(c.Token, c.LogProb)
	}

	if logY == nil || logN == nil {
		return math.Exp(score.LogProb)
	}
	return 1 / (1 + math.Exp(-(*logY - *logN)))
}

func normalizedDiff(score *llm.TokenScore) float64 {
	if len(score.TopCandidates) < 2 {
		return math.Exp(score.LogProb)
	}
	pTop := math.Exp(score.LogProb)
	pSecond := math.Exp(score.TopCandidates[1].LogProb)
	return (pTop - pSecond) / (pTop + pSecond)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
