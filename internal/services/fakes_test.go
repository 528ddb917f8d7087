package services

import (
	"context"
	"fmt"
	"sync"

	"crmai/internal/config"
	"crmai/internal/models"
	"crmai/internal/store"
	"crmai/pkg/composer"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
)

// --- Mock Job Client ---

type mockJobClient struct {
	mock.Mock
}

func (m *mockJobClient) Enqueue(ctx context.Context, task *asynq.Task, relatedEntityType, relatedEntityID string, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task, relatedEntityType, relatedEntityID)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *mockJobClient) Close() error { return nil }

// --- Fake stores ---

type fakeLeadStore struct {
	leads   map[string]*models.Lead
	listed  []*models.Lead
	listErr error
	filter  store.LeadFilter
	limit   int
}

func (f *fakeLeadStore) GetLead(ctx context.Context, name string) (*models.Lead, error) {
	if l, ok := f.leads[name]; ok {
		return l, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLeadStore) ListLeads(ctx context.Context, filter store.LeadFilter, limit int) ([]*models.Lead, error) {
	f.filter, f.limit = filter, limit
	return f.listed, f.listErr
}

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) GetUser(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type fakeCommStore struct {
	mu    sync.Mutex
	comms map[string]*models.Communication
	seq   int
}

func newFakeCommStore() *fakeCommStore {
	return &fakeCommStore{comms: map[string]*models.Communication{}}
}

func (f *fakeCommStore) CreateCommunication(ctx context.Context, c *models.Communication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c.ID = fmt.Sprintf("COMM-%d", f.seq)
	cp := *c
	f.comms[c.ID] = &cp
	return nil
}

func (f *fakeCommStore) GetCommunication(ctx context.Context, id string) (*models.Communication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.comms[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCommStore) UpdateCommunicationStatus(ctx context.Context, id, status string, providerID, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comms[id]
	if !ok {
		return store.ErrNotFound
	}
	c.EmailStatus = status
	c.ProviderID = providerID
	c.Error = errMsg
	return nil
}

func (f *fakeCommStore) ListCommunicationsForLead(ctx context.Context, leadName string, limit int) ([]*models.Communication, error) {
	return nil, nil
}

func (f *fakeCommStore) get(id string) *models.Communication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comms[id]
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(ctx context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", store.ErrNotFound
}

func (f *fakeSettings) SetSetting(ctx context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

// --- Fake composer & mailer ---

type fakeComposer struct {
	draft   composer.Draft
	err     error
	failFor map[string]bool
	prompts []string
}

func (f *fakeComposer) Compose(ctx context.Context, req composer.Request) (composer.Draft, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return composer.Draft{}, f.err
	}
	if f.failFor[req.RelatedLead] {
		return composer.Draft{}, fmt.Errorf("model refused")
	}
	return f.draft, nil
}

func (f *fakeComposer) Name() string      { return "fake" }
func (f *fakeComposer) ModelName() string { return "fake-model" }

type fakeMailer struct {
	name    string
	mu      sync.Mutex
	sent    []OutgoingMessage
	err     error
	failFor map[string]bool
}

func (f *fakeMailer) Name() string { return f.name }

func (f *fakeMailer) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for _, to := range msg.To {
		if f.failFor[to] {
			return "", fmt.Errorf("mailbox unavailable")
		}
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("%s-%d", f.name, len(f.sent)), nil
}

// --- Fake notifier ---

type publishedEvent struct {
	Event string
	Data  interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeNotifier) Publish(ctx context.Context, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Event: event, Data: data})
}

func (f *fakeNotifier) named(event string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.DefaultUser = "Administrator"
	cfg.Company.Name = "Sinx Solutions"
	cfg.Company.Website = "https://sinxsolutions.ai"
	cfg.Company.FallbackSenderName = "Sinx Team"
	cfg.Company.FallbackSenderEmail = "info@sinxsolutions.ai"
	cfg.LLM.OpenRouterKey = "sk-or"
	cfg.Email.ResendAPIKey = "re_key"
	cfg.Email.ResendFrom = "hello@sinxsolutions.ai"
	cfg.Email.TestRecipient = "qa@sinxsolutions.ai"
	return cfg
}
