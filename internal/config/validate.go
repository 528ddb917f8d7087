package config

import (
	"errors"
	"fmt"
)

// Validate checks the fields every command relies on. Provider keys are only
// required for the provider that is actually selected.
func (c *Config) Validate() error {
	if c.Database.Primary.DSN == "" {
		return errors.New("database.primary.DSN is required")
	}

	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	if len(c.Worker.Queues) == 0 {
		return errors.New("worker.queues must define at least one queue")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}
	if _, ok := c.Worker.Queues[c.Bulk.Queue]; !ok {
		return fmt.Errorf("bulk.queue '%s' is not served by worker.queues", c.Bulk.Queue)
	}

	switch c.LLM.Provider {
	case "openrouter", "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider '%s' is not supported (use openrouter, openai or gemini)", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}

	if c.Bulk.MaxLeads <= 0 {
		return errors.New("bulk.max_leads must be positive")
	}
	if c.Bulk.LeadDelay < 0 {
		return errors.New("bulk.lead_delay cannot be negative")
	}
	if c.Bulk.JobTTL <= 0 {
		return errors.New("bulk.job_ttl must be positive")
	}

	if c.Voice.APIKey != "" {
		if c.Voice.AssistantID == "" || c.Voice.PhoneNumberID == "" {
			return errors.New("voice.assistant_id and voice.phone_number_id are required when voice.api_key is set")
		}
		if c.Voice.PollInterval <= 0 || c.Voice.PollTimeout <= 0 {
			return errors.New("voice.poll_interval and voice.poll_timeout must be positive")
		}
	}

	for provider, models := range c.Pricing {
		for model, price := range models {
			if price.InputPerToken < 0 || price.OutputPerToken < 0 {
				return fmt.Errorf("pricing for provider '%s', model '%s' has negative token cost", provider, model)
			}
		}
	}

	return nil
}

// LLMKey returns the API key for the configured provider.
func (c *Config) LLMKey() string {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.OpenaiApiKey
	case "gemini":
		return c.LLM.GoogleApiKey
	default:
		return c.LLM.OpenRouterKey
	}
}
