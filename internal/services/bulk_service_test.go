package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"crmai/internal/models"
	"crmai/internal/store"
	"crmai/internal/store/jobstate"
	"crmai/internal/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEmailer struct {
	mu    sync.Mutex
	fails map[string]error
	calls []string
}

func (f *fakeEmailer) EmailLead(ctx context.Context, lead *models.Lead, opts LeadEmailOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, lead.Name)
	if err := f.fails[lead.Name]; err != nil {
		if errors.Is(err, models.ErrDeliveryFailed) {
			return "COMM-" + lead.Name, err
		}
		return "", err
	}
	return "COMM-" + lead.Name, nil
}

type fakeInspector struct {
	infos map[string]*asynq.TaskInfo
}

func (f *fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	if info, ok := f.infos[id]; ok {
		return info, nil
	}
	return nil, asynq.ErrTaskNotFound
}

type bulkFixture struct {
	svc       *BulkService
	state     *jobstate.Store
	leads     *fakeLeadStore
	jobs      *mockJobClient
	emailer   *fakeEmailer
	notifier  *fakeNotifier
	inspector *fakeInspector
}

func newBulkFixture(t *testing.T) *bulkFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Bulk.LeadDelay = 0
	f := &bulkFixture{
		state:     jobstate.NewStore(rdb, 0, 0, 0),
		leads:     &fakeLeadStore{},
		jobs:      &mockJobClient{},
		emailer:   &fakeEmailer{fails: map[string]error{}},
		notifier:  &fakeNotifier{},
		inspector: &fakeInspector{infos: map[string]*asynq.TaskInfo{}},
	}
	f.svc = NewBulkService(BulkServiceDeps{
		LeadStore: f.leads,
		JobState:  f.state,
		JobClient: f.jobs,
		Inspector: f.inspector,
		Emailer:   f.emailer,
		Notifier:  f.notifier,
		Config:    cfg,
	})
	return f
}

func someLeads(n int) []*models.Lead {
	leads := make([]*models.Lead, n)
	for i := range leads {
		leads[i] = &models.Lead{Name: fmt.Sprintf("L%d", i+1), Email: fmt.Sprintf("l%d@example.com", i+1)}
	}
	return leads
}

func TestStartBulk_CreatesRecordBeforeEnqueue(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()
	f.leads.listed = someLeads(3)

	var seenQueued bool
	f.jobs.On("Enqueue", mock.MatchedBy(func(task *asynq.Task) bool {
		var p tasks.BulkEmailPayload
		if task.Type() != tasks.TypeBulkEmailGenerate || json.Unmarshal(task.Payload(), &p) != nil {
			return false
		}
		rec, err := f.state.Get(ctx, p.JobID)
		seenQueued = err == nil && rec.Status == models.JobStatusQueued
		return len(p.Leads) == 3 && p.Tone == "friendly" && !p.TestMode
	}), "bulk_email", mock.AnythingOfType("string")).Return(&asynq.TaskInfo{}, nil).Once()

	started, err := f.svc.StartBulk(ctx, BulkRequest{FilterJSON: `{"status": "New"}`, Tone: "friendly", User: "sam@sinx.ai"})
	require.NoError(t, err)
	f.jobs.AssertExpectations(t)
	assert.True(t, seenQueued, "record must exist when the task is enqueued")
	assert.Equal(t, 3, started.LeadsCount)
	assert.Equal(t, "Bulk email generation started for 3 leads. Check the logs for progress.", started.Message)
	assert.Equal(t, 100, f.leads.limit)
	require.Len(t, f.leads.filter, 1)
	assert.Equal(t, "status", f.leads.filter[0].Field)

	rec, err := f.state.Get(ctx, "crm.localhost||"+started.JobID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, "sam@sinx.ai", rec.User)

	cached, err := f.svc.GetLastBulkLeads(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 3)
}

func TestStartBulk_Failures(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartBulk(ctx, BulkRequest{FilterJSON: `{not json`})
	assert.ErrorIs(t, err, models.ErrInvalidFilter)

	_, err = f.svc.StartBulk(ctx, BulkRequest{FilterJSON: `{"status": "Lost"}`})
	assert.ErrorIs(t, err, models.ErrNoLeads)
	assert.Contains(t, err.Error(), "Filter details:")
	assert.Contains(t, err.Error(), `"Lost"`)

	_, err = f.svc.GetLastBulkLeads(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStartBulk_EnqueueFailureMarksError(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()
	f.leads.listed = someLeads(1)
	f.jobs.On("Enqueue", mock.Anything, "bulk_email", mock.AnythingOfType("string")).Return(nil, errors.New("redis down")).Once()

	_, err := f.svc.StartBulk(ctx, BulkRequest{})
	require.Error(t, err)

	jobs, err := f.state.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusError, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "redis down")
}

func TestProcessBulk_CountsAndProgress(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()
	require.NoError(t, f.state.Create(ctx, &models.JobStatus{JobID: "job-1", Status: models.JobStatusQueued}))

	leads := someLeads(5)
	leads[2] = &models.Lead{} // no identifier
	f.emailer.fails["L2"] = fmt.Errorf("%w: model refused", models.ErrGenerationFailed)
	f.emailer.fails["L4"] = fmt.Errorf("%w: mailbox unavailable", models.ErrDeliveryFailed)

	err := f.svc.ProcessBulk(ctx, tasks.BulkEmailPayload{JobID: "crm.localhost||job-1", Leads: leads, TestMode: true})
	require.NoError(t, err)

	rec, err := f.state.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompletedWithErrors, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, 1, rec.SkippedCount)
	assert.Equal(t, len(leads)-rec.SkippedCount, len(rec.SuccessfulLeads)+len(rec.FailedLeads))
	require.Len(t, rec.FailedLeads, 2)
	assert.Equal(t, "Generation failed: model refused", rec.FailedLeads[0].Error)
	assert.Empty(t, rec.FailedLeads[0].CommunicationID)
	assert.Equal(t, "Send failed: mailbox unavailable", rec.FailedLeads[1].Error)
	assert.Equal(t, "COMM-L4", rec.FailedLeads[1].CommunicationID)
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.CompletedAt)

	// One progress event per processed lead, never 100 before completion.
	progress := f.notifier.named("bulk_email_progress")
	require.Len(t, progress, 4)
	last := -1
	for _, e := range progress {
		p := e.Data.(map[string]interface{})["progress"].(int)
		assert.Less(t, p, 100)
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	complete := f.notifier.named("bulk_email_complete")
	require.Len(t, complete, 1)
	data := complete[0].Data.(map[string]interface{})
	assert.Equal(t, 2, data["successful_count"])
	assert.Equal(t, 2, data["failed_count"])
	assert.Empty(t, f.notifier.named("bulk_email_error"))
}

func TestProcessBulk_AllSucceed(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()
	require.NoError(t, f.state.Create(ctx, &models.JobStatus{JobID: "job-2", Status: models.JobStatusQueued}))

	require.NoError(t, f.svc.ProcessBulk(ctx, tasks.BulkEmailPayload{JobID: "job-2", Leads: someLeads(3)}))
	rec, err := f.state.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	assert.Len(t, rec.SuccessfulLeads, 3)
	assert.Equal(t, []string{"L1", "L2", "L3"}, f.emailer.calls)
}

func TestProcessBulk_CanceledMarksError(t *testing.T) {
	f := newBulkFixture(t)
	require.NoError(t, f.state.Create(context.Background(), &models.JobStatus{JobID: "job-3", Status: models.JobStatusQueued}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.ProcessBulk(ctx, tasks.BulkEmailPayload{JobID: "job-3", Leads: someLeads(2)})
	require.ErrorIs(t, err, context.Canceled)

	rec, gerr := f.state.Get(context.Background(), "job-3")
	require.NoError(t, gerr)
	assert.Equal(t, models.JobStatusError, rec.Status)
	assert.NotNil(t, rec.ErrorAt)
	assert.Len(t, f.notifier.named("bulk_email_error"), 1)
}

func TestProcessBulk_RecreatesMissingRecord(t *testing.T) {
	f := newBulkFixture(t)
	require.NoError(t, f.svc.ProcessBulk(context.Background(), tasks.BulkEmailPayload{JobID: "job-4", Leads: someLeads(1)}))
	rec, err := f.state.Get(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
}

func TestGetJobStatus(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	got, err := f.svc.GetJobStatus(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusNotFound, got.Status)

	// Queue-only knowledge.
	f.inspector.infos["q-only"] = &asynq.TaskInfo{ID: "q-only", State: asynq.TaskStateActive}
	got, err = f.svc.GetJobStatus(ctx, "site||q-only")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "active", got.QueueState)

	// Archived task whose record never reached a terminal state.
	require.NoError(t, f.state.Create(ctx, &models.JobStatus{JobID: "dead", Status: models.JobStatusRunning}))
	f.inspector.infos["dead"] = &asynq.TaskInfo{ID: "dead", State: asynq.TaskStateArchived, LastErr: "context deadline exceeded"}
	got, err = f.svc.GetJobStatus(ctx, "dead")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, got.Status)
	assert.Equal(t, "context deadline exceeded", got.Error)

	_, err = f.svc.GetJobStatus(ctx, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListJobsAndDebug(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()
	require.NoError(t, f.state.Create(ctx, &models.JobStatus{JobID: "a", Status: models.JobStatusQueued, User: "u"}))
	_, err := f.state.Update(ctx, "a", func(j *models.JobStatus) {
		j.FailedLeads = append(j.FailedLeads, models.LeadOutcome{Name: "L1", Error: "x"})
	})
	require.NoError(t, err)

	jobs, err := f.svc.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].ErrorCount)
	assert.Equal(t, "u", jobs[0].User)

	_, err = f.svc.DebugFailedJob(ctx, "a")
	assert.ErrorIs(t, err, models.ErrNotFound)

	f.inspector.infos["a"] = &asynq.TaskInfo{ID: "a", Type: tasks.TypeBulkEmailGenerate, State: asynq.TaskStateArchived, LastErr: "boom", Payload: []byte(`{"job_id":"a"}`)}
	d, err := f.svc.DebugFailedJob(ctx, "site||a")
	require.NoError(t, err)
	assert.Equal(t, "archived", d.Status)
	assert.Equal(t, "boom", d.ErrorMessage)
	assert.Equal(t, tasks.TypeBulkEmailGenerate, d.Function)
	require.NotNil(t, d.Meta)
	assert.NotNil(t, d.CreatedAt)
}

func TestParseTestMode(t *testing.T) {
	for in, want := range map[string]bool{"": true, "1": true, "true": true, "0": false, "False": false} {
		got, err := ParseTestMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTestMode("maybe")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestProgressFor(t *testing.T) {
	assert.Equal(t, 0, progressFor(0, 0))
	assert.Equal(t, 33, progressFor(1, 3))
	assert.Equal(t, 99, progressFor(3, 3))
	assert.Equal(t, 99, progressFor(100, 100))
}

var _ store.JobClient = (*mockJobClient)(nil)
