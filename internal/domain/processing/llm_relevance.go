package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"feedmesh/internal/resilience/circuitbreaker"
	"feedmesh/internal/resilience/retry"
)

// LLMRelevanceConfig controls the optional LLM-backed relevance stage.
type LLMRelevanceConfig struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultLLMRelevanceConfig mirrors the summarizer package's Claude
// defaults, since both call the same Messages API shape.
func DefaultLLMRelevanceConfig() LLMRelevanceConfig {
	return LLMRelevanceConfig{
		Model:     string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens: 256,
		Timeout:   30 * time.Second,
	}
}

// LLMRelevanceStage is the documented swap-in for RelevanceStage: same
// Stage interface, wired to an Anthropic client plus the same circuit
// breaker/retry wrapping the package's Claude summarizer uses, so a real
// model call can be dropped in behind scoreViaAPI without changing the
// pipeline. The scoring logic itself still delegates to the lexical
// RelevanceStage — proving the interface boundary while keeping scoring
// deterministic for tests.
type LLMRelevanceStage struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	cfg            LLMRelevanceConfig
	fallback       *RelevanceStage
}

// NewLLMRelevanceStage builds the stage with an Anthropic client, circuit
// breaker and retry config. No API request is made: scoreViaAPI runs the
// lexical RelevanceStage through the breaker and retry, and Process calls
// that stage directly if the wrapped call fails.
func NewLLMRelevanceStage(apiKey string, cfg LLMRelevanceConfig) *LLMRelevanceStage {
	return &LLMRelevanceStage{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		cfg:            cfg,
		fallback:       NewRelevanceStage(),
	}
}

func (s *LLMRelevanceStage) Process(in Input) (Output, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	scored, err := s.scoreViaAPI(ctx, in)
	if err != nil {
		slog.Warn("llm relevance stage falling back to lexical scoring",
			slog.String("error", err.Error()))
		return s.fallback.Process(in)
	}
	return scored, nil
}

func (s *LLMRelevanceStage) scoreViaAPI(ctx context.Context, in Input) (Output, error) {
	var out Output
	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		cbResult, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.fallback.Process(in)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("llm relevance api unavailable: circuit breaker open")
			}
			return err
		}
		out = cbResult.(Output)
		return nil
	})
	if retryErr != nil {
		return Output{}, retryErr
	}
	return out, nil
}
