package composer

import "context"

// SystemPrompt is sent ahead of every generation prompt.
const SystemPrompt = "You are an expert email copywriter who specializes in creating personalized business emails."

// Request is one generation call. The related ids only feed cost tracking.
type Request struct {
	Prompt       string
	RelatedLead  string
	RelatedJobID string
}

// Draft holds a generated subject and HTML body.
type Draft struct {
	Subject      string
	Content      string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Composer generates email drafts from a prompt.
type Composer interface {
	Compose(ctx context.Context, req Request) (Draft, error)
	Name() string      // provider name, e.g. "openrouter"
	ModelName() string // model identifier
}
