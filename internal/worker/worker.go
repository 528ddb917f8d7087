// Package worker registers the asynq handlers that run bulk email jobs,
// deliver queued communications and follow voice calls.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"crmai/internal/store"
	"crmai/internal/tasks"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// Background job statuses written to the audit table.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type BulkProcessor interface {
	ProcessBulk(ctx context.Context, p tasks.BulkEmailPayload) error
}

type CommunicationDeliverer interface {
	DeliverCommunication(ctx context.Context, commID string) error
}

type CallRunner interface {
	RunCall(ctx context.Context, p tasks.VoiceCallPayload) error
}

// Deps holds what the handlers need. Calls and JobStore may be nil.
type Deps struct {
	Bulk     BulkProcessor
	Email    CommunicationDeliverer
	Calls    CallRunner
	JobStore store.JobStore
}

// RegisterHandlers binds every task type to its handler.
func RegisterHandlers(mux *asynq.ServeMux, deps Deps) {
	log.Infof("Registering %s handler", tasks.TypeBulkEmailGenerate)
	mux.HandleFunc(tasks.TypeBulkEmailGenerate, HandleBulkEmail(deps))
	log.Infof("Registering %s handler", tasks.TypeEmailDeliver)
	mux.HandleFunc(tasks.TypeEmailDeliver, HandleEmailDeliver(deps))
	if deps.Calls != nil {
		log.Infof("Registering %s handler", tasks.TypeVoiceCall)
		mux.HandleFunc(tasks.TypeVoiceCall, HandleVoiceCall(deps))
	} else {
		log.Warn("Voice calls are not configured, skipping registration of voice call handler")
	}
}

// HandleBulkEmail processes one bulk email job.
func HandleBulkEmail(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var p tasks.BulkEmailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal bulk email payload: %v: %w", err, asynq.SkipRetry)
		}
		return track(ctx, deps.JobStore, taskID(ctx), func() error {
			return deps.Bulk.ProcessBulk(ctx, p)
		})
	}
}

// HandleEmailDeliver sends one recorded communication.
func HandleEmailDeliver(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var p tasks.EmailDeliverPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal email deliver payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.CommunicationID == "" {
			return fmt.Errorf("email deliver payload has no communication id: %w", asynq.SkipRetry)
		}
		return track(ctx, deps.JobStore, taskID(ctx), func() error {
			return deps.Email.DeliverCommunication(ctx, p.CommunicationID)
		})
	}
}

// HandleVoiceCall waits for a placed call to finish.
func HandleVoiceCall(deps Deps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var p tasks.VoiceCallPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal voice call payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.CallID == "" {
			return fmt.Errorf("voice call payload has no call id: %w", asynq.SkipRetry)
		}
		return track(ctx, deps.JobStore, taskID(ctx), func() error {
			return deps.Calls.RunCall(ctx, p)
		})
	}
}

// track mirrors the task's lifecycle into the job audit table around fn.
func track(ctx context.Context, js store.JobStore, id string, fn func() error) error {
	setStatus(ctx, js, id, StatusRunning)
	err := fn()
	if err != nil {
		setStatus(context.WithoutCancel(ctx), js, id, StatusFailed)
		return err
	}
	setStatus(ctx, js, id, StatusCompleted)
	return nil
}

func taskID(ctx context.Context) string {
	id, _ := asynq.GetTaskID(ctx)
	return id
}

func setStatus(ctx context.Context, js store.JobStore, id, status string) {
	if js == nil || id == "" {
		return
	}
	if err := js.UpdateJobStatus(ctx, id, status); err != nil {
		log.WithField("task_id", id).Warnf("Failed to update job status to %s: %v", status, err)
	}
}
