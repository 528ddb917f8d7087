package composer

import (
	"context"
	"fmt"
	"strings"

	"crmai/internal/config"
	"crmai/internal/costtracker"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Generation is the raw output of one text-generation call.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TextGenerator produces text for a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (Generation, error)
}

// GenaiGenerator is a TextGenerator backed by the Gemini API.
type GenaiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGenaiGenerator creates a Gemini client for model.
func NewGenaiGenerator(ctx context.Context, apiKey, model string, temperature float32, maxTokens int) (*GenaiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not provided")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	log.Infof("Gemini generator initialized with model %s", model)
	return &GenaiGenerator{client: client, model: model, temperature: temperature, maxTokens: int32(maxTokens)}, nil
}

func (g *GenaiGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(g.maxTokens)
	}
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Generation{}, fmt.Errorf("Gemini API error generating content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Generation{}, fmt.Errorf("Gemini API returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	gen := Generation{Text: b.String()}
	if resp.UsageMetadata != nil {
		gen.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		gen.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

// Close releases the underlying client.
func (g *GenaiGenerator) Close() error {
	return g.client.Close()
}

// GeminiComposer implements Composer with a TextGenerator.
type GeminiComposer struct {
	gen         TextGenerator
	model       string
	companyName string
	costTracker costtracker.CostTracker
	pricing     map[string]config.PricingInfo
}

func NewGeminiComposer(gen TextGenerator, model, companyName string, tracker costtracker.CostTracker, pricing map[string]config.PricingInfo) *GeminiComposer {
	return &GeminiComposer{gen: gen, model: model, companyName: companyName, costTracker: tracker, pricing: pricing}
}

func (c *GeminiComposer) Name() string      { return "gemini" }
func (c *GeminiComposer) ModelName() string { return c.model }

func (c *GeminiComposer) Compose(ctx context.Context, req Request) (Draft, error) {
	if c.gen == nil {
		return Draft{}, fmt.Errorf("gemini composer is not initialized (missing API key)")
	}
	out, err := c.gen.Generate(ctx, SystemPrompt, req.Prompt)
	if err != nil {
		return Draft{}, err
	}
	recordUsage(ctx, c.costTracker, c.pricing, "gemini", c.model, req, out.InputTokens, out.OutputTokens)

	draft, err := ParseDraft(out.Text, c.companyName)
	if err != nil {
		return Draft{}, err
	}
	draft.Provider = "gemini"
	draft.Model = c.model
	draft.InputTokens = out.InputTokens
	draft.OutputTokens = out.OutputTokens
	return draft, nil
}

var _ Composer = (*GeminiComposer)(nil)
