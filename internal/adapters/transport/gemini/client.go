package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/bnema/parley/internal/adapters/transport"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

const (
	DefaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 256
)

var errEmptyResponse = errors.New("gemini returned no text parts")

type Client struct {
	client    *genai.Client
	model     string
	maxTokens int32
	logger    *log.Logger
}

var _ ports.Transport = (*Client)(nil)

type config struct {
	model      string
	maxTokens  int32
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*config)

func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = int32(n)
		}
	}
}

func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	cfg := config{model: DefaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		client:    client,
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
		logger:    logger.Component(cfg.logger, "gemini"),
	}, nil
}

func (c *Client) Send(ctx context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	contents := []*genai.Content{genai.NewContentFromText(call.Prompt, genai.RoleUser)}
	generation := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(transport.SystemPrompt, genai.RoleUser),
		MaxOutputTokens:   c.maxTokens,
	}

	c.logger.Debug("generating content", "model", c.model, "request", call.RequestID, "agent", call.AgentID)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, generation)
	if err != nil {
		return domain.RawResponse{}, fmt.Errorf("gemini generate content: %w", err)
	}

	var text strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		// only the first candidate is spoken
		break
	}
	if strings.TrimSpace(text.String()) == "" {
		return domain.RawResponse{}, errEmptyResponse
	}

	var tokens int64
	if result.UsageMetadata != nil {
		tokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}
	return transport.Response(text.String(), tokens), nil
}
