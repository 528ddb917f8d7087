package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmai/internal/costtracker"
	"crmai/internal/models"
	"crmai/internal/realtime"
	"crmai/internal/store"
	"crmai/internal/store/jobstate"
	"crmai/internal/tasks"
	"crmai/internal/voice"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// VoiceCaller places and follows voice calls.
type VoiceCaller interface {
	PlaceCall(ctx context.Context, lead *models.Lead) (*voice.Call, error)
	WaitForCompletion(ctx context.Context, callID, leadID string, onChange func(*models.CallRecord)) (*models.CallRecord, error)
}

// CallCache keeps the latest observed state of each call.
type CallCache interface {
	SaveCall(ctx context.Context, rec *models.CallRecord) error
	GetCall(ctx context.Context, callID string) (*models.CallRecord, error)
}

type CallServiceDeps struct {
	LeadStore   store.LeadStore
	Caller      VoiceCaller // nil when the voice provider is not configured
	Cache       CallCache
	JobClient   store.JobClient
	Notifier    realtime.Notifier
	CostTracker costtracker.CostTracker
	// WaitTimeout bounds the worker task; it must exceed the poll timeout.
	WaitTimeout time.Duration
}

// CallService places AI voice calls to leads and tracks them to completion.
type CallService struct {
	leads       store.LeadStore
	caller      VoiceCaller
	cache       CallCache
	jobs        store.JobClient
	notifier    realtime.Notifier
	costTracker costtracker.CostTracker
	waitTimeout time.Duration
}

func NewCallService(deps CallServiceDeps) *CallService {
	s := &CallService{
		leads:       deps.LeadStore,
		caller:      deps.Caller,
		cache:       deps.Cache,
		jobs:        deps.JobClient,
		notifier:    deps.Notifier,
		costTracker: deps.CostTracker,
		waitTimeout: deps.WaitTimeout,
	}
	if s.notifier == nil {
		s.notifier = realtime.NopNotifier{}
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = 10 * time.Minute
	}
	return s
}

// CallLead places a call to the lead's mobile number and queues the wait for
// its outcome. The returned record carries the provider call id.
func (s *CallService) CallLead(ctx context.Context, leadName, user string) (*models.CallRecord, error) {
	if s.caller == nil {
		return nil, fmt.Errorf("%w: voice API credentials missing", models.ErrNotConfigured)
	}
	lead, err := s.leads.GetLead(ctx, leadName)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load lead %s", leadName)
	}

	call, err := s.caller.PlaceCall(ctx, lead)
	if err != nil {
		if errors.Is(err, voice.ErrMissingPhone) {
			return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		return nil, fmt.Errorf("failed to place call: %w", err)
	}
	rec := voice.ToRecord(call, lead.Name)
	if rec.Status == "" {
		rec.Status = models.CallStatusQueued
	}
	s.record(ctx, rec)

	task, err := tasks.NewVoiceCallTask(tasks.VoiceCallPayload{
		CallID:        rec.CallID,
		LeadName:      lead.Name,
		User:          user,
		InitialStatus: rec.Status,
	})
	if err != nil {
		return rec, err
	}
	if _, err := s.jobs.Enqueue(ctx, task, "lead", lead.Name,
		asynq.Queue("default"), asynq.MaxRetry(0), asynq.Timeout(s.waitTimeout)); err != nil {
		// The call is already ringing; only the tracking is lost.
		log.Errorf("Failed to queue tracking for call %s: %v", rec.CallID, err)
	}
	log.WithField("lead", lead.Name).Infof("Call placed successfully! Call ID: %s", rec.CallID)
	return rec, nil
}

// RunCall follows a placed call until it ends or the wait times out. Each
// distinct state is cached and broadcast once.
func (s *CallService) RunCall(ctx context.Context, p tasks.VoiceCallPayload) error {
	if s.caller == nil {
		return fmt.Errorf("%w: voice API credentials missing", models.ErrNotConfigured)
	}
	// The poll reports its first observation as a change, and the terminal
	// state arrives both through onChange and as the result.
	lastStatus := p.InitialStatus
	final, err := s.caller.WaitForCompletion(ctx, p.CallID, p.LeadName, func(rec *models.CallRecord) {
		if rec.Status == lastStatus {
			return
		}
		lastStatus = rec.Status
		s.record(ctx, rec)
	})
	if final != nil && final.Status != lastStatus {
		s.record(context.WithoutCancel(ctx), final)
	}
	if err != nil {
		return fmt.Errorf("waiting for call %s: %w", p.CallID, err)
	}

	if final.Cost > 0 && s.costTracker != nil {
		if cerr := s.costTracker.RecordCost(ctx, costtracker.CostEvent{
			Operation:   "voice_call",
			Provider:    "vapi",
			Model:       "assistant",
			AmountUSD:   final.Cost,
			RelatedLead: p.LeadName,
		}); cerr != nil {
			log.Errorf("Failed to record voice call cost for %s: %v", p.CallID, cerr)
		}
	}

	switch final.Status {
	case models.CallStatusFailed, models.CallStatusCanceled:
		log.Warnf("Call %s for lead %s ended with status %s", p.CallID, p.LeadName, final.Status)
	case models.CallStatusTimeout:
		log.Warnf("Call %s for lead %s still running after the wait timeout", p.CallID, p.LeadName)
	default:
		log.Infof("Call %s for lead %s completed (duration %.0fs)", p.CallID, p.LeadName, final.Duration)
	}
	return nil
}

func (s *CallService) record(ctx context.Context, rec *models.CallRecord) {
	if s.cache != nil {
		if err := s.cache.SaveCall(ctx, rec); err != nil {
			log.Warnf("Failed to cache call %s: %v", rec.CallID, err)
		}
	}
	s.notifier.Publish(ctx, realtime.EventVoiceCallStatus, rec)
}

// GetCallStatus returns the last observed state of a call.
func (s *CallService) GetCallStatus(ctx context.Context, callID string) (*models.CallRecord, error) {
	callID = jobstate.NormalizeCallID(callID)
	if callID == "" {
		return nil, fmt.Errorf("%w: call id is required", models.ErrValidation)
	}
	rec, err := s.cache.GetCall(ctx, callID)
	if err != nil {
		return nil, mapStoreErr(err, "call %s", callID)
	}
	return rec, nil
}
