// Package assist backs the dialog's "enhance prompt" action with an
// OpenAI-compatible chat model.
package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"clipforge/internal/config"
	"clipforge/internal/models"
	"clipforge/internal/prompts"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second
)

// Enhancer rewrites rough prompts into detailed ones through a chat
// completion call
type Enhancer struct {
	client      *openai.Client
	engine      *prompts.TemplateEngine
	model       string
	maxTokens   int
	temperature float32
}

// NewEnhancer builds the assistant from config. An empty api_key means
// the feature is disabled and the caller should not construct one.
func NewEnhancer(cfg config.AssistConfig) (*Enhancer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assist api key not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	engine := prompts.NewTemplateEngine()
	if err := engine.InitializeDefaultTemplates(); err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &Enhancer{
		client:      openai.NewClientWithConfig(clientConfig),
		engine:      engine,
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

// EnhancePrompt returns a reworked version of the prompt for the given
// generation type and target model
func (e *Enhancer) EnhancePrompt(ctx context.Context, prompt string, generationType models.GenerationType, targetModel string) (string, error) {
	templateName := prompts.TemplateForType(string(generationType))
	instruction, err := e.engine.Render(templateName, &prompts.EnhanceContext{
		UserPrompt:     prompt,
		GenerationType: string(generationType),
		Model:          targetModel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render enhancement template: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		enhanced, err := e.doCompletion(ctx, instruction)
		if err == nil {
			return enhanced, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return "", fmt.Errorf("prompt enhancement failed: %w", lastErr)
}

func (e *Enhancer) doCompletion(ctx context.Context, instruction string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: instruction,
			},
		},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	enhanced = strings.Trim(enhanced, `"`)
	if enhanced == "" {
		return "", fmt.Errorf("completion produced no text")
	}

	return enhanced, nil
}

// isRetryableError checks if an error is worth another attempt
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "503")
}
