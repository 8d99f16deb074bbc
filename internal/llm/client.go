package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/config"
	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/models"
)

// NoResponseText is returned in place of an empty completion.
const NoResponseText = "[No response text received]"

// Options configures the upstream chat completions API.
type Options struct {
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	AppURL   string
	AppTitle string
}

// Client sends one chat completion per call to an OpenAI-compatible API.
type Client struct {
	client openai.Client
	opts   Options
	log    *zap.Logger
}

func New(opts Options, log *zap.Logger) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		option.WithMaxRetries(0),
	}
	if opts.AppURL != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.AppURL))
	}
	if opts.AppTitle != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.AppTitle))
	}

	return &Client{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
		log:    log,
	}
}

// Chat sends message with the project's system prompt and returns the
// first reply.
func (c *Client) Chat(ctx context.Context, project *models.Project, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", &domain.ValidationError{Message: "Message is required"}
	}
	if c.opts.APIKey == "" {
		return "", &domain.ConfigError{Message: "OPENROUTER_API_KEY not configured on server"}
	}

	systemPrompt := project.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = config.DefaultSystemPrompt
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		fields := []zap.Field{
			zap.Int64("project_id", project.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.Int("upstream_status", apiErr.StatusCode))
		}
		c.log.Warn("chat completion failed", fields...)
		return "", &domain.UpstreamError{
			Message: fmt.Sprintf("LLM request failed: %v", err),
			Err:     err,
		}
	}

	c.log.Debug("chat completion",
		zap.Int64("project_id", project.ID),
		zap.String("model", resp.Model),
		zap.Duration("duration", time.Since(start)),
	)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return NoResponseText, nil
	}
	return resp.Choices[0].Message.Content, nil
}
