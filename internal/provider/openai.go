package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"comic-server/internal/model"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

// Config holds the live adapter configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	Timeout    int // seconds
	MaxRetries int
}

// openaiClient is the live-mode adapter over an OpenAI-compatible API.
// Retries here are transport-level only; model fallback is the
// orchestrator's decision.
type openaiClient struct {
	client     *openai.Client
	imageModel string
	timeout    time.Duration
	maxRetries int
}

// NewOpenAI creates the live-mode adapter.
func NewOpenAI(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is not set")
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &openaiClient{
		client:     openai.NewClientWithConfig(config),
		imageModel: cfg.ImageModel,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *openaiClient) Degraded() bool { return false }

// CompleteText runs a chat completion with a bounded retry loop. A
// model-not-found rejection aborts immediately so the caller can switch to
// its fallback model without burning retries.
func (c *openaiClient) CompleteText(ctx context.Context, prompt, modelName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		req := openai.ChatCompletionRequest{
			Model: modelName,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.7,
			MaxTokens:   1500,
			TopP:        0.95,
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if classified := classify(err); IsModelNotFound(classified) {
				log.Warn().Str("model", modelName).Msg("Model rejected by provider")
				return "", classified
			}
			log.Error().Err(err).Int("attempt", attempts).Str("model", modelName).Msg("Chat completion failed")
			if attempts >= c.maxRetries {
				return "", classify(err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			log.Warn().Int("attempt", attempts).Msg("Empty completion from provider")
			if attempts >= c.maxRetries {
				return "", &Error{Code: ErrCodeUpstream, err: model.ErrProviderEmpty}
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	return "", &Error{Code: ErrCodeUpstream, err: errors.New("no completion after retries")}
}

// SynthesizeImage requests one image and returns its URL. The style category
// picks the aspect ratio: portrait panels for traditional palettes, square
// otherwise.
func (c *openaiClient) SynthesizeImage(ctx context.Context, prompt string, style model.StyleCategory) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size := openai.CreateImageSize1024x1024
	if style == model.StyleTraditional {
		size = openai.CreateImageSize1024x1792
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		log.Error().Err(err).Msg("Image synthesis failed")
		return "", classify(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &Error{Code: ErrCodeUpstream, err: model.ErrProviderEmpty}
	}

	return resp.Data[0].URL, nil
}

// Moderate classifies text via the provider's moderation endpoint.
func (c *openaiClient) Moderate(ctx context.Context, text string) (Moderation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: openai.ModerationOmniLatest,
	})
	if err != nil {
		return Moderation{}, classify(err)
	}
	if len(resp.Results) == 0 {
		return Moderation{}, &Error{Code: ErrCodeUpstream, err: model.ErrProviderEmpty}
	}

	result := resp.Results[0]
	mod := Moderation{Flagged: result.Flagged}
	if result.Flagged {
		cat := result.Categories
		for name, hit := range map[string]bool{
			"violence": cat.Violence || cat.ViolenceGraphic,
			"sexual":   cat.Sexual || cat.SexualMinors,
			"hate":     cat.Hate || cat.HateThreatening,
			"selfharm": cat.SelfHarm,
		} {
			if hit {
				mod.Categories = append(mod.Categories, name)
			}
		}
	}
	return mod, nil
}

// classify maps transport errors onto the typed provider error.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 404 || strings.Contains(strings.ToLower(apiErr.Message), "model") {
			return &Error{Code: ErrCodeModelNotFound, err: err}
		}
		return &Error{Code: ErrCodeUpstream, err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrCodeTimeout, err: err}
	}
	return &Error{Code: ErrCodeUpstream, err: err}
}
