package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const generatorSystemPrompt = "You write one short, warm outreach message to a user of a habit and " +
	"coaching app. Match the intent of the category. Do not mention scores, metrics, " +
	"or that the message was automated. Reply with the message text only."

// ChatCompleter is the part of the OpenAI client the generator needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator produces message text through a chat completion model.
type OpenAIGenerator struct {
	client  ChatCompleter
	cfg     OpenAIGeneratorConfig
	limiter *rate.Limiter
}

type OpenAIGeneratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// RequestsPerSecond caps completion calls across all dispatches. Zero
	// disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// NewOpenAIClient builds a client, honoring a custom base URL for
// compatible providers.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func NewOpenAIGenerator(client ChatCompleter, cfg OpenAIGeneratorConfig) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 160
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return &OpenAIGenerator{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
	}
}

// Generate returns the message text or fails. Retries are left to the caller.
func (g *OpenAIGenerator) Generate(ctx context.Context, req dispatch.GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt, err := buildPrompt(req)
	if err != nil {
		return "", err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for completion quota: %w", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty chat response")
	}
	return text, nil
}

func buildPrompt(req dispatch.GenerationRequest) (string, error) {
	ctxJSON, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", req.Category)
	fmt.Fprintf(&b, "Reason: %s\n", req.TriggerType)
	fmt.Fprintf(&b, "Urgency: %s\n", req.Urgency)
	fmt.Fprintf(&b, "Signals: %s\n", ctxJSON)
	return b.String(), nil
}
