// Package voice places outbound AI calls to leads through the Vapi REST API
// and waits for them to finish.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crmai/internal/models"
	"crmai/internal/poll"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrMissingPhone is returned when a lead has no number to dial.
var ErrMissingPhone = errors.New("lead is missing phone number or id")

// Config holds the account settings for the voice API.
type Config struct {
	APIKey        string
	BaseURL       string
	AssistantID   string
	PhoneNumberID string
	PollInterval  time.Duration
	PollTimeout   time.Duration
}

// Call is the subset of the provider's call object this service reads.
type Call struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Duration     *float64 `json:"duration,omitempty"`
	StartedAt    string   `json:"startedAt,omitempty"`
	StartTime    string   `json:"startTime,omitempty"`
	EndedAt      string   `json:"endedAt,omitempty"`
	EndTime      string   `json:"endTime,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Cost         float64  `json:"cost,omitempty"`
	EndedReason  string   `json:"endedReason,omitempty"`
	EndReason    string   `json:"endReason,omitempty"`
	RecordingURL string   `json:"recordingUrl,omitempty"`
	Customer     struct {
		Number   string            `json:"number"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"customer"`
	Artifact *struct {
		Transcript string `json:"transcript,omitempty"`
		Recording  *struct {
			URL string `json:"url"`
		} `json:"recording,omitempty"`
	} `json:"artifact,omitempty"`
	Analysis *struct {
		Summary string `json:"summary,omitempty"`
	} `json:"analysis,omitempty"`
}

type createCallRequest struct {
	AssistantID   string `json:"assistantId"`
	PhoneNumberID string `json:"phoneNumberId"`
	Customer      struct {
		Number string `json:"number"`
	} `json:"customer"`
}

// Client talks to the voice API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client with a 30s per-request timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" || cfg.AssistantID == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("voice API key, assistant ID and phone number ID are required: %w", models.ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.vapi.ai"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log.Infof("Voice client initialized for assistant: %s", cfg.AssistantID)
	return &Client{cfg: cfg, http: httpClient}, nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	reqID := uuid.NewString()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"req_id": reqID, "path": path}).Errorf("Voice API request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	log.WithFields(log.Fields{
		"req_id":     reqID,
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Voice API response")

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("voice API %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode voice API response: %w", err)
		}
	}
	return nil
}

// PlaceCall dials the lead's mobile number with the configured assistant.
func (c *Client) PlaceCall(ctx context.Context, lead *models.Lead) (*Call, error) {
	if lead == nil || lead.MobileNo == "" || lead.Name == "" {
		return nil, ErrMissingPhone
	}
	var payload createCallRequest
	payload.AssistantID = c.cfg.AssistantID
	payload.PhoneNumberID = c.cfg.PhoneNumberID
	payload.Customer.Number = lead.MobileNo

	log.Infof("Placing call to %s for lead %s", lead.MobileNo, lead.Name)
	var call Call
	if err := c.do(ctx, http.MethodPost, "/call", payload, &call); err != nil {
		return nil, fmt.Errorf("create call for lead %s: %w", lead.Name, err)
	}
	log.Infof("Call initiated for lead %s. Call ID: %s", lead.Name, call.ID)
	return &call, nil
}

// GetCall fetches the current state of a call.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	if callID == "" {
		return nil, fmt.Errorf("call id is required")
	}
	var call Call
	if err := c.do(ctx, http.MethodGet, "/call/"+callID, nil, &call); err != nil {
		return nil, fmt.Errorf("get call %s: %w", callID, err)
	}
	return &call, nil
}

// Classify maps a provider status onto poll classes. "ended" is how the
// provider reports a normally finished call.
func Classify(status string) poll.Class {
	switch status {
	case models.CallStatusCompleted, models.CallStatusEnded:
		return poll.Succeeded
	case models.CallStatusFailed, models.CallStatusCanceled:
		return poll.Failed
	}
	return poll.Pending
}

// WaitForCompletion polls the call until it is terminal or the configured
// timeout passes. A timeout yields a record with status "timeout"; the remote
// call is left running. onChange receives each distinct observed state.
func (c *Client) WaitForCompletion(ctx context.Context, callID, leadID string, onChange func(*models.CallRecord)) (*models.CallRecord, error) {
	if callID == "" {
		return &models.CallRecord{Status: models.CallStatusError, LeadID: leadID, Error: "Missing call_id"}, fmt.Errorf("call id is required")
	}
	log.Infof("Waiting for call %s to complete (timeout: %s)...", callID, c.cfg.PollTimeout)

	res := poll.Until(ctx,
		func(ctx context.Context) (*Call, error) { return c.GetCall(ctx, callID) },
		func(call *Call) poll.Class { return Classify(call.Status) },
		poll.Options[*Call]{
			Interval: c.cfg.PollInterval,
			Timeout:  c.cfg.PollTimeout,
			Name:     "voice_call:" + callID,
			Key:      func(call *Call) string { return call.Status },
			OnChange: func(call *Call) {
				log.Infof("Call %s status: %s", callID, call.Status)
				if onChange != nil {
					onChange(ToRecord(call, leadID))
				}
			},
		})

	switch res.Outcome {
	case poll.OutcomeSuccess, poll.OutcomeFailure:
		log.Infof("Call %s finished with status: %s", callID, res.Last.Status)
		return ToRecord(res.Last, leadID), nil
	case poll.OutcomeCanceled:
		return &models.CallRecord{CallID: callID, LeadID: leadID, Status: models.CallStatusError, Error: "wait canceled"}, ctx.Err()
	default:
		log.Warnf("Wait timeout exceeded for call %s after %s", callID, c.cfg.PollTimeout)
		rec := &models.CallRecord{CallID: callID, LeadID: leadID, Status: models.CallStatusTimeout, Error: "Wait timeout exceeded"}
		return rec, nil
	}
}

// ToRecord normalizes a provider call into a CallRecord.
func ToRecord(call *Call, leadID string) *models.CallRecord {
	if call == nil {
		return nil
	}
	rec := &models.CallRecord{
		CallID:     call.ID,
		LeadID:     leadID,
		Status:     call.Status,
		Transcript: call.Transcript,
		Summary:    call.Summary,
		Cost:       call.Cost,
		EndReason:  firstNonEmpty(call.EndReason, call.EndedReason),
	}
	if rec.LeadID == "" && call.Customer.Metadata != nil {
		rec.LeadID = call.Customer.Metadata["lead_id"]
	}
	if call.Artifact != nil {
		if rec.Transcript == "" {
			rec.Transcript = call.Artifact.Transcript
		}
		if call.Artifact.Recording != nil {
			rec.RecordingURL = call.Artifact.Recording.URL
		}
	}
	if rec.RecordingURL == "" {
		rec.RecordingURL = call.RecordingURL
	}
	if rec.Summary == "" && call.Analysis != nil {
		rec.Summary = call.Analysis.Summary
	}
	rec.StartTime = parseTime(firstNonEmpty(call.StartTime, call.StartedAt))
	rec.EndTime = parseTime(firstNonEmpty(call.EndTime, call.EndedAt))
	if call.Duration != nil {
		rec.Duration = *call.Duration
	} else if rec.StartTime != nil && rec.EndTime != nil {
		rec.Duration = rec.EndTime.Sub(*rec.StartTime).Seconds()
	}
	if rec.Summary == "" && rec.Transcript != "" {
		rec.Summary = SummarizeTranscript(rec.Transcript, 2)
	}
	return rec
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
