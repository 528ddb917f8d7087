package composer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crmai/internal/config"
	"crmai/internal/costtracker"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// ChatClient is the part of the go-openai client the composer uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// headerTransport adds fixed headers (OpenRouter attribution) to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// NewOpenAIClient builds a chat client for an OpenAI-compatible endpoint.
// An empty baseURL means api.openai.com. referer and title become the
// HTTP-Referer and X-Title headers OpenRouter uses for attribution.
func NewOpenAIClient(apiKey, baseURL, referer, title string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{
		Timeout: 60 * time.Second,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: map[string]string{"HTTP-Referer": referer, "X-Title": title},
		},
	}
	return openai.NewClientWithConfig(cfg)
}

// LLMComposer implements Composer over a chat-completion API in JSON mode.
type LLMComposer struct {
	client      ChatClient
	provider    string
	model       string
	temperature float32
	maxTokens   int
	companyName string

	costTracker costtracker.CostTracker
	pricing     map[string]config.PricingInfo
}

// LLMOptions configures an LLMComposer.
type LLMOptions struct {
	Provider    string
	Model       string
	Temperature float32
	MaxTokens   int
	CompanyName string
	CostTracker costtracker.CostTracker
	Pricing     map[string]config.PricingInfo
}

// NewLLMComposer creates a composer. A nil client yields a composer whose
// Compose always fails, matching an unconfigured API key.
func NewLLMComposer(client ChatClient, opts LLMOptions) *LLMComposer {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 800
	}
	if opts.Provider == "" {
		opts.Provider = "openrouter"
	}
	return &LLMComposer{
		client:      client,
		provider:    opts.Provider,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		companyName: opts.CompanyName,
		costTracker: opts.CostTracker,
		pricing:     opts.Pricing,
	}
}

func (c *LLMComposer) Name() string      { return c.provider }
func (c *LLMComposer) ModelName() string { return c.model }

func (c *LLMComposer) Compose(ctx context.Context, req Request) (Draft, error) {
	if c.client == nil {
		return Draft{}, fmt.Errorf("%s composer is not initialized (missing API key)", c.provider)
	}
	log.Debugf("Calling %s chat completion (model: %s)", c.provider, c.model)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("%s chat completion failed: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return Draft{}, fmt.Errorf("no choices returned from %s", c.provider)
	}

	c.recordCost(ctx, req, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	draft, err := ParseDraft(resp.Choices[0].Message.Content, c.companyName)
	if err != nil {
		return Draft{}, err
	}
	draft.Provider = c.provider
	draft.Model = c.model
	draft.InputTokens = resp.Usage.PromptTokens
	draft.OutputTokens = resp.Usage.CompletionTokens
	return draft, nil
}

// --- Cost Tracking Instrumentation ---

func (c *LLMComposer) recordCost(ctx context.Context, req Request, inputTokens, outputTokens int) {
	recordUsage(ctx, c.costTracker, c.pricing, c.provider, c.model, req, inputTokens, outputTokens)
}

func recordUsage(ctx context.Context, tracker costtracker.CostTracker, pricing map[string]config.PricingInfo, provider, model string, req Request, inputTokens, outputTokens int) {
	if tracker == nil || inputTokens+outputTokens == 0 {
		return
	}
	cost, ok := costtracker.Price(pricing, model, inputTokens, outputTokens)
	if !ok {
		log.Warnf("Pricing info not found for model '%s'. Recording usage with zero cost.", model)
	}
	event := costtracker.CostEvent{
		Operation:    "email_generation",
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		AmountUSD:    cost,
		RelatedLead:  req.RelatedLead,
		RelatedJobID: req.RelatedJobID,
	}
	if err := tracker.RecordCost(ctx, event); err != nil {
		log.Errorf("Failed to record AI usage log for email generation: %v", err)
		return
	}
	log.Debugf("Recorded AI usage: Provider=%s, Model=%s, InputTokens=%d, OutputTokens=%d, Cost=%.8f",
		provider, model, inputTokens, outputTokens, cost)
}

var _ Composer = (*LLMComposer)(nil)
