package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// PricingInfo holds cost details per token for a specific model.
type PricingInfo struct {
	InputPerToken  float64 `mapstructure:"input_per_token"`
	OutputPerToken float64 `mapstructure:"output_per_token"`
}

// SMTPConfig describes the outgoing mail account used by the "smtp" channel.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// Configured reports whether an outgoing account is usable.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.From != ""
}

type Config struct {
	App struct {
		Site        string `mapstructure:"site"`
		DefaultUser string `mapstructure:"default_user"`
		LogFile     string `mapstructure:"log_file"`
		LogLevel    string `mapstructure:"log_level"`
		LogFormat   string `mapstructure:"log_format"` // "text" or "json"
	} `mapstructure:"app"`

	Company struct {
		Name                string `mapstructure:"name"`
		Website             string `mapstructure:"website"`
		FallbackSenderName  string `mapstructure:"fallback_sender_name"`
		FallbackSenderEmail string `mapstructure:"fallback_sender_email"`
		ProductContext      string `mapstructure:"product_context"` // path to the product description file
	} `mapstructure:"company"`

	Database struct {
		Primary struct {
			DSN string
		}
	}

	Redis struct {
		Address  string
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	}

	Server struct {
		Addr               string `mapstructure:"addr"`
		Port               string `mapstructure:"port"`
		CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`

	LLM struct {
		Provider      string  `mapstructure:"provider"` // "openrouter", "openai" or "gemini"
		Model         string  `mapstructure:"model"`
		BaseURL       string  `mapstructure:"base_url"`
		OpenRouterKey string  `mapstructure:"openrouter_key"`
		OpenaiApiKey  string  `mapstructure:"openai_api_key"`
		GoogleApiKey  string  `mapstructure:"google_api_key"`
		GeminiModel   string  `mapstructure:"gemini_model"`
		Temperature   float32 `mapstructure:"temperature"`
		MaxTokens     int     `mapstructure:"max_tokens"`
		Referer       string  `mapstructure:"referer"`
		Title         string  `mapstructure:"title"`
	} `mapstructure:"llm"`

	Email struct {
		ResendAPIKey  string     `mapstructure:"resend_api_key"`
		ResendFrom    string     `mapstructure:"resend_from"`
		SenderName    string     `mapstructure:"sender_name"`
		TestRecipient string     `mapstructure:"test_recipient"`
		SMTP          SMTPConfig `mapstructure:"smtp"`
	} `mapstructure:"email"`

	Bulk struct {
		MaxLeads      int           `mapstructure:"max_leads"`
		LeadDelay     time.Duration `mapstructure:"lead_delay"`
		Queue         string        `mapstructure:"queue"`
		Timeout       time.Duration `mapstructure:"timeout"`
		JobTTL        time.Duration `mapstructure:"job_ttl"`
		LeadsCacheTTL time.Duration `mapstructure:"leads_cache_ttl"`
	} `mapstructure:"bulk"`

	Voice struct {
		APIKey        string        `mapstructure:"api_key"`
		BaseURL       string        `mapstructure:"base_url"`
		AssistantID   string        `mapstructure:"assistant_id"`
		PhoneNumberID string        `mapstructure:"phone_number_id"`
		PollInterval  time.Duration `mapstructure:"poll_interval"`
		PollTimeout   time.Duration `mapstructure:"poll_timeout"`
		CallTTL       time.Duration `mapstructure:"call_ttl"`
	} `mapstructure:"voice"`

	// Pricing: map[provider][model] = struct{input_per_token, output_per_token}
	Pricing map[string]map[string]PricingInfo `mapstructure:"pricing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.site", "crm.localhost")
	v.SetDefault("app.default_user", "Administrator")
	v.SetDefault("app.log_file", "logs/ai_email.log")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")

	v.SetDefault("company.name", "Sinx Solutions")
	v.SetDefault("company.website", "https://sinxsolutions.ai")
	v.SetDefault("company.fallback_sender_name", "Sinx Team")
	v.SetDefault("company.fallback_sender_email", "info@sinxsolutions.ai")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"long": 3, "default": 2, "short": 1})

	v.SetDefault("server.addr", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allowed_origins", "http://localhost:8080")

	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.model", "openai/gpt-4o")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.gemini_model", "gemini-1.5-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 800)
	v.SetDefault("llm.referer", "https://sinxsolutions.ai")
	v.SetDefault("llm.title", "Sinx CRM - AI Email Generator")

	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)

	v.SetDefault("bulk.max_leads", 100)
	v.SetDefault("bulk.lead_delay", 500*time.Millisecond)
	v.SetDefault("bulk.queue", "long")
	v.SetDefault("bulk.timeout", time.Hour)
	v.SetDefault("bulk.job_ttl", 24*time.Hour)
	v.SetDefault("bulk.leads_cache_ttl", time.Hour)

	v.SetDefault("voice.base_url", "https://api.vapi.ai")
	v.SetDefault("voice.poll_interval", 15*time.Second)
	v.SetDefault("voice.poll_timeout", 300*time.Second)
	v.SetDefault("voice.call_ttl", time.Hour)
}

// envBindings maps config keys to the environment variable names the deployment already uses.
var envBindings = map[string]string{
	"database.primary.dsn":  "DATABASE_DSN",
	"redis.address":         "REDIS_ADDRESS",
	"redis.password":        "REDIS_PASSWORD",
	"llm.openrouter_key":    "OPENROUTER_KEY",
	"llm.openai_api_key":    "OPENAI_API_KEY",
	"llm.google_api_key":    "GOOGLE_API_KEY",
	"email.resend_api_key":  "RESEND_API_KEY",
	"email.resend_from":     "RESEND_DEFAULT_FROM",
	"email.sender_name":     "SENDER_NAME",
	"email.test_recipient":  "TEST_EMAIL_RECIPIENT",
	"email.smtp.host":       "SMTP_HOST",
	"email.smtp.username":   "SMTP_USERNAME",
	"email.smtp.password":   "SMTP_PASSWORD",
	"email.smtp.from":       "SMTP_FROM",
	"voice.api_key":         "VAPI_API_KEY",
	"voice.assistant_id":    "VAPI_ASSISTANT_ID",
	"voice.phone_number_id": "VAPI_PHONE_NUMBER_ID",
}

func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // Look for config.yaml in the current directory

	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist, we rely on defaults/env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
