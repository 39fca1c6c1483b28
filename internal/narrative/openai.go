package narrative

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

const (
	// DefaultModel balances cost against the modest quality a short
	// report summary needs.
	DefaultModel = "gpt-4o-mini"

	systemPrompt = "You are an engineering-metrics analyst. Write plain, factual prose " +
		"for a weekly engineering report. Use only the numbers provided, never invent " +
		"figures, and keep the answer under 120 words. No headings, no bullet points."

	completionMaxTokens = 400
)

func errDisabled() error {
	return apperrors.NarrativeUnavailableError(nil, "narrative generation is disabled")
}

// chatClient is the slice of the OpenAI client the generator uses,
// extracted so tests can stub completions.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI generates narratives through the OpenAI chat completion API. A
// client-side limiter spaces out requests so batch runs with many
// repositories stay inside the account's rate limits.
type OpenAI struct {
	client  chatClient
	model   string
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewOpenAI builds a generator for the given API key. model may be empty
// to use DefaultModel; requestsPerMinute <= 0 disables client-side
// throttling.
func NewOpenAI(apiKey, model string, requestsPerMinute int, logger *logrus.Logger) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: limiter,
		logger:  logger,
	}
}

// SummarizeRepository writes the per-repository executive summary.
func (g *OpenAI) SummarizeRepository(ctx context.Context, analysis *models.RepositoryAnalysis) (string, error) {
	prompt := "Summarize this repository's recent engineering activity:\n\n" + buildRepositoryPrompt(analysis)
	return g.complete(ctx, prompt)
}

// ExplainTrends writes the cross-repository trend commentary.
func (g *OpenAI) ExplainTrends(ctx context.Context, batch models.BatchResult) (string, error) {
	prompt := "Describe the merge-activity trend across these repositories:\n\n" + buildTrendsPrompt(batch)
	return g.complete(ctx, prompt)
}

func (g *OpenAI) complete(ctx context.Context, userPrompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", apperrors.NarrativeUnavailableError(err, "rate limiter wait interrupted")
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		return "", apperrors.NarrativeUnavailableError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NarrativeUnavailableError(nil, "model returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", apperrors.NarrativeUnavailableError(nil, "model returned an empty narrative")
	}

	g.logger.WithFields(logrus.Fields{
		"model":           g.model,
		"prompt_length":   len(userPrompt),
		"response_length": len(text),
		"tokens_used":     resp.Usage.TotalTokens,
	}).Debug("Narrative generated")

	return truncateWords(text, maxSummaryWords), nil
}
