package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crmai/internal/apihandlers"
	"crmai/internal/config"
	"crmai/internal/costtracker"
	"crmai/internal/realtime"
	"crmai/internal/services"
	"crmai/internal/store"
	"crmai/internal/store/jobstate"
	"crmai/internal/store/primary"
	"crmai/internal/voice"
	"crmai/internal/worker"
	"crmai/pkg/composer"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type App struct {
	Config *config.Config

	// --- Infrastructure ---
	Store       *primary.StoreImpl
	Redis       *redis.Client
	JobState    *jobstate.Store
	Realtime    *realtime.Publisher
	JobClient   store.JobClient
	Inspector   *asynq.Inspector
	CostTracker costtracker.CostTracker
	Composer    composer.Composer // nil when the selected LLM provider has no key
	VoiceClient *voice.Client     // nil when the voice API is not configured

	// --- Initialized Services ---
	EmailService *services.EmailService
	BulkService  *services.BulkService
	CallService  *services.CallService
	CostService  *services.CostService
	LeadService  *services.LeadService

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initPrimaryStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initRedis(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initJobClient(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initComposer(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initVoiceClient(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	app.initCoreServices()

	log.Info("Application initialization complete.")
	return app, nil
}

// RedisOpt is the asynq connection used by the client, inspector and worker server.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// WorkerDeps returns the handler dependencies for the asynq worker.
func (a *App) WorkerDeps() worker.Deps {
	deps := worker.Deps{
		Bulk:     a.BulkService,
		Email:    a.EmailService,
		JobStore: a.Store,
	}
	if a.VoiceClient != nil {
		deps.Calls = a.CallService
	}
	return deps
}

// APIDeps returns the HTTP handler dependencies.
func (a *App) APIDeps() apihandlers.Deps {
	deps := apihandlers.Deps{
		Email:       a.EmailService,
		Bulk:        a.BulkService,
		Leads:       a.LeadService,
		Events:      a.Realtime,
		DefaultUser: a.Config.App.DefaultUser,
	}
	if a.VoiceClient != nil {
		deps.Calls = a.CallService
	}
	return deps
}

// --- Private Helper Methods ---

func (a *App) initPrimaryStore(ctx context.Context) error {
	ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.Primary.DSN)
	if err != nil {
		return fmt.Errorf("init primary store: %w", err)
	}
	a.Store = ps
	a.closers = append(a.closers, func() error { ps.Close(); return nil })
	a.CostTracker = costtracker.New(ps)
	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("init redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)

	bulk := a.Config.Bulk
	a.JobState = jobstate.NewStore(rdb, bulk.JobTTL, bulk.LeadsCacheTTL, a.Config.Voice.CallTTL)
	a.Realtime = realtime.NewPublisher(rdb)
	return nil
}

func (a *App) initJobClient() error {
	jc, err := store.NewAsynqJobClient(a.RedisOpt(), a.Store)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	a.JobClient = jc
	a.closers = append(a.closers, jc.Close)

	a.Inspector = asynq.NewInspector(a.RedisOpt())
	a.closers = append(a.closers, a.Inspector.Close)
	return nil
}

// initComposer selects the LLM provider. A missing key is not fatal: the
// services report the provider as not configured when generation is requested.
func (a *App) initComposer(ctx context.Context) error {
	cfg := a.Config
	key := cfg.LLMKey()
	if key == "" {
		log.Warnf("No API key for LLM provider %s, email generation is disabled", cfg.LLM.Provider)
		return nil
	}

	switch cfg.LLM.Provider {
	case "gemini":
		gen, err := composer.NewGenaiGenerator(ctx, key, cfg.LLM.GeminiModel, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
		if err != nil {
			return fmt.Errorf("init gemini composer: %w", err)
		}
		a.closers = append(a.closers, gen.Close)
		a.Composer = composer.NewGeminiComposer(gen, cfg.LLM.GeminiModel, cfg.Company.Name, a.CostTracker, cfg.Pricing["gemini"])
	default:
		baseURL := cfg.LLM.BaseURL
		if cfg.LLM.Provider == "openai" {
			baseURL = ""
		}
		client := composer.NewOpenAIClient(key, baseURL, cfg.LLM.Referer, cfg.LLM.Title)
		a.Composer = composer.NewLLMComposer(client, composer.LLMOptions{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			CompanyName: cfg.Company.Name,
			CostTracker: a.CostTracker,
			Pricing:     cfg.Pricing[cfg.LLM.Provider],
		})
	}
	log.Infof("Initialized %s composer (Model: %s)", a.Composer.Name(), a.Composer.ModelName())
	return nil
}

func (a *App) initVoiceClient() error {
	vc := a.Config.Voice
	if vc.APIKey == "" {
		log.Info("Voice API key not set, voice calls are disabled")
		return nil
	}
	client, err := voice.NewClient(voice.Config{
		APIKey:        vc.APIKey,
		BaseURL:       vc.BaseURL,
		AssistantID:   vc.AssistantID,
		PhoneNumberID: vc.PhoneNumberID,
		PollInterval:  vc.PollInterval,
		PollTimeout:   vc.PollTimeout,
	}, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return fmt.Errorf("init voice client: %w", err)
	}
	a.VoiceClient = client
	return nil
}

func (a *App) loadProductContext() string {
	content, err := config.LoadPromptContent(a.Config.Company.ProductContext, "product_context.md")
	if err != nil {
		if a.Config.Company.ProductContext != "" {
			log.Warnf("Failed to load product context, using the built-in description: %v", err)
		}
		return composer.DefaultProductContext
	}
	return content
}

func (a *App) initCoreServices() {
	cfg := a.Config

	// Assign only non-nil mailers so an unconfigured channel stays a nil interface.
	var resendMailer, smtpMailer services.Mailer
	if m := services.NewResendMailer(cfg.Email.ResendAPIKey, cfg.Email.ResendFrom); m != nil {
		resendMailer = m
	}
	if m := services.NewSMTPMailer(cfg.Email.SMTP); m != nil {
		smtpMailer = m
	}

	a.EmailService = services.NewEmailService(services.EmailServiceDeps{
		LeadStore:          a.Store,
		UserStore:          a.Store,
		CommunicationStore: a.Store,
		SettingsStore:      a.Store,
		JobClient:          a.JobClient,
		Composer:           a.Composer,
		Resend:             resendMailer,
		SMTP:               smtpMailer,
		ProductContext:     a.loadProductContext(),
		Config:             cfg,
	})
	a.BulkService = services.NewBulkService(services.BulkServiceDeps{
		LeadStore: a.Store,
		JobState:  a.JobState,
		JobClient: a.JobClient,
		Inspector: a.Inspector,
		Emailer:   a.EmailService,
		Notifier:  a.Realtime,
		Config:    cfg,
	})

	callDeps := services.CallServiceDeps{
		LeadStore:   a.Store,
		Cache:       a.JobState,
		JobClient:   a.JobClient,
		Notifier:    a.Realtime,
		CostTracker: a.CostTracker,
		WaitTimeout: cfg.Voice.PollTimeout + time.Minute,
	}
	if a.VoiceClient != nil {
		callDeps.Caller = a.VoiceClient
	}
	a.CallService = services.NewCallService(callDeps)

	a.CostService = services.NewCostService(a.Store)
	a.LeadService = services.NewLeadService(a.Store, cfg.App.LogFile)
}

// Close releases every connection in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("Error during shutdown: %v", err)
		}
	}
	a.closers = nil
}

func (a *App) cleanupPartialInit() {
	log.Warn("Cleaning up partially initialized application")
	a.Close()
}
