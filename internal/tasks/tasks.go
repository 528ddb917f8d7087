package tasks

import (
	"encoding/json"
	"fmt"

	"crmai/internal/models"

	"github.com/hibiken/asynq"
)

// Defines constants for task types used in Asynq.

const (
	// TypeBulkEmailGenerate generates and sends one email per lead of a bulk job.
	TypeBulkEmailGenerate = "email:bulk_generate"
	// TypeEmailDeliver delivers an already recorded communication through the SMTP account.
	TypeEmailDeliver = "email:deliver"
	// TypeVoiceCall waits for a placed voice call to finish and records the outcome.
	TypeVoiceCall = "voice:call"
)

// BulkEmailPayload carries everything the worker needs; leads are snapshotted at
// enqueue time so the job processes exactly what the caller saw.
type BulkEmailPayload struct {
	JobID             string         `json:"job_id"`
	Leads             []*models.Lead `json:"leads"`
	Tone              string         `json:"tone"`
	AdditionalContext string         `json:"additional_context"`
	TestMode          bool           `json:"test_mode"`
	User              string         `json:"user"`
}

// EmailDeliverPayload references the communication to send.
type EmailDeliverPayload struct {
	CommunicationID string `json:"communication_id"`
}

// VoiceCallPayload identifies a placed call the worker waits on.
type VoiceCallPayload struct {
	CallID   string `json:"call_id"`
	LeadName string `json:"lead_name"`
	User     string `json:"user"`
	// InitialStatus is the state already published when the call was placed.
	InitialStatus string `json:"initial_status,omitempty"`
}

func NewBulkEmailTask(p BulkEmailPayload, opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeBulkEmailGenerate, p, opts...)
}

func NewEmailDeliverTask(p EmailDeliverPayload, opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeEmailDeliver, p, opts...)
}

func NewVoiceCallTask(p VoiceCallPayload, opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeVoiceCall, p, opts...)
}

func newTask(typeName string, payload interface{}, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, body, opts...), nil
}
