package composer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExcludedLeadFields are bookkeeping fields that never reach the prompt.
var ExcludedLeadFields = []string{
	"amended_from", "docstatus", "parent", "parentfield", "parenttype", "idx",
	"owner", "creation", "modified", "modified_by", "doctype", "_user_tags",
	"__islocal", "__unsaved",
}

// DefaultProductContext describes the product line when no context file is configured.
const DefaultProductContext = `Sinx Solutions offers:
- BUNDLR: AI-powered product bundling to maximize cart value
- PERSONALIZR: Real-time persona generation for precise marketing
- CATALOGR: Intelligent product categorization for better navigation
- REPORTR: Auto-generated visual insights for quick decision-making
- RECOMMENDR: Context-aware product recommendations
- AI CONSULTANCY: Custom AI solution development
- MY CAREER GROWTH: AI-driven personalized career guidance
- KNOWTICE: Real-time, AI-curated industry notifications`

// Tones maps each supported tone to its writing guideline.
var Tones = map[string]string{
	"professional": "Write in a clear, formal, and professional manner appropriate for business communication.",
	"friendly":     "Write in a warm, approachable tone while maintaining professionalism.",
	"formal":       "Write in a highly formal, somewhat conservative tone suitable for traditional industries.",
	"persuasive":   "Write in a compelling, benefit-focused tone that encourages action.",
}

// ToneGuideline returns the guideline for tone, falling back to professional.
func ToneGuideline(tone string) string {
	if g, ok := Tones[strings.ToLower(strings.TrimSpace(tone))]; ok {
		return g
	}
	return Tones["professional"]
}

// Sender is the person the email is written on behalf of.
type Sender struct {
	Name        string
	Email       string
	Designation string
	Phone       string
}

// PromptInput is everything BuildPrompt needs.
type PromptInput struct {
	LeadFields        map[string]interface{}
	Sender            Sender
	CompanyName       string
	ProductContext    string
	Tone              string
	AdditionalContext string
}

// FilterLeadFields returns a copy of fields without the excluded bookkeeping keys.
func FilterLeadFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, k := range ExcludedLeadFields {
		delete(out, k)
	}
	return out
}

func stringField(fields map[string]interface{}, key, fallback string) string {
	if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// BuildPrompt renders the generation prompt for one lead.
func BuildPrompt(in PromptInput) string {
	fields := FilterLeadFields(in.LeadFields)

	leadName := strings.TrimSpace(stringField(fields, "first_name", "") + " " + stringField(fields, "last_name", ""))
	organization := stringField(fields, "organization", "their organization")
	jobTitle := stringField(fields, "job_title", "professional")
	industry := stringField(fields, "industry", "")

	company := in.CompanyName
	if company == "" {
		company = "Sinx Solutions"
	}
	designation := in.Sender.Designation
	if designation == "" {
		designation = "Solutions Consultant"
	}
	productContext := strings.TrimSpace(in.ProductContext)
	if productContext == "" {
		productContext = DefaultProductContext
	}

	// Map keys are marshalled in sorted order, so the prompt is stable.
	leadJSON, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		leadJSON = []byte("{}")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a highly personalized email from %s (%s at %s) to %s who works at %s as a %s in the %s industry.\n\n",
		in.Sender.Name, designation, company, leadName, organization, jobTitle, industry)
	fmt.Fprintf(&b, "Lead Information:\n%s\n\n", leadJSON)
	fmt.Fprintf(&b, "Product Information:\n%s\n\n", productContext)
	fmt.Fprintf(&b, "Sender Information:\nName: %s\nTitle: %s\nEmail: %s\nPhone: %s\n\n",
		in.Sender.Name, designation, in.Sender.Email, in.Sender.Phone)
	b.WriteString("Instructions:\n")
	fmt.Fprintf(&b, "1. Create a personalized email that connects %s' products SPECIFICALLY to the lead's industry, role, company size, and other relevant attributes.\n", company)
	b.WriteString("2. ONLY suggest 2-3 products that are MOST relevant to this specific lead based on their data - don't mention all products.\n")
	b.WriteString("3. Explain specifically how those selected products would solve challenges common in their industry or role.\n")
	b.WriteString("4. Include specific, data-driven reasons why these solutions would benefit them - not generic benefits.\n")
	b.WriteString("5. DO NOT include ANY placeholder text like [Your Name] or [Your Position] - use the actual sender information provided.\n")
	b.WriteString("6. Start the email body directly with your introduction and value proposition.\n")
	b.WriteString("7. The email should be concise (200-300 words), direct, and focus on value proposition.\n")
	b.WriteString("8. Include your full signature details (name, title, email, phone) at the end of the email.\n")
	fmt.Fprintf(&b, "9. %s\n\n", ToneGuideline(in.Tone))
	fmt.Fprintf(&b, "Additional Context/Instructions:\n%s\n\n", strings.TrimSpace(in.AdditionalContext))
	b.WriteString("Format your response as JSON with a 'subject' field and 'content' field.\n")
	b.WriteString("The 'content' should be formatted as HTML with appropriate paragraph tags.\n")
	return b.String()
}
