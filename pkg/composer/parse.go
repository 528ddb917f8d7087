package composer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultContent is used when the model answers without a body.
const DefaultContent = "<p>Error parsing AI response.</p>"

const draftSchemaJSON = `{
	"type": "object",
	"properties": {
		"subject": {"type": "string"},
		"content": {"type": "string"}
	}
}`

var (
	draftSchemaOnce sync.Once
	draftSchema     *jsonschema.Schema
	draftSchemaErr  error
)

func compiledDraftSchema() (*jsonschema.Schema, error) {
	draftSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("draft.json", strings.NewReader(draftSchemaJSON)); err != nil {
			draftSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		draftSchema, draftSchemaErr = compiler.Compile("draft.json")
	})
	return draftSchema, draftSchemaErr
}

// stripCodeFence removes a ```json ... ``` wrapper some models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseDraft decodes and validates a model answer. Missing fields fall back
// to "Introduction from <company>" and DefaultContent.
func ParseDraft(raw, companyName string) (Draft, error) {
	content := stripCodeFence(raw)

	var v interface{}
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Draft{}, fmt.Errorf("failed to parse LLM response as JSON: %w\nResponse content: %s", err, content)
	}
	schema, err := compiledDraftSchema()
	if err != nil {
		return Draft{}, err
	}
	if err := schema.Validate(v); err != nil {
		return Draft{}, fmt.Errorf("LLM response does not match the draft schema: %w", err)
	}

	var parsed struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	if err := dec.Decode(&parsed); err != nil {
		return Draft{}, fmt.Errorf("failed to decode LLM draft: %w", err)
	}

	if companyName == "" {
		companyName = "Sinx Solutions"
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		parsed.Subject = "Introduction from " + companyName
	}
	if strings.TrimSpace(parsed.Content) == "" {
		parsed.Content = DefaultContent
	}
	return Draft{Subject: strings.TrimSpace(parsed.Subject), Content: parsed.Content}, nil
}
