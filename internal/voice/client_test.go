package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crmai/internal/models"
	"crmai/internal/poll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		APIKey:        "test-key",
		BaseURL:       srv.URL,
		AssistantID:   "asst-1",
		PhoneNumberID: "phone-1",
		PollInterval:  time.Millisecond,
		PollTimeout:   50 * time.Millisecond,
	}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"}, nil)
	assert.ErrorIs(t, err, models.ErrNotConfigured)
}

func TestPlaceCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/call", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst-1", body["assistantId"])
		assert.Equal(t, "phone-1", body["phoneNumberId"])
		assert.Equal(t, "+15550001", body["customer"].(map[string]interface{})["number"])

		_, _ = w.Write([]byte(`{"id":"call-1","status":"queued"}`))
	})

	call, err := c.PlaceCall(context.Background(), &models.Lead{Name: "CRM-LEAD-1", MobileNo: "+15550001"})
	require.NoError(t, err)
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "queued", call.Status)
}

func TestPlaceCall_MissingPhone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.PlaceCall(context.Background(), &models.Lead{Name: "CRM-LEAD-1"})
	assert.ErrorIs(t, err, ErrMissingPhone)
}

func TestPlaceCall_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid number"}`))
	})
	_, err := c.PlaceCall(context.Background(), &models.Lead{Name: "CRM-LEAD-1", MobileNo: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")
}

func TestWaitForCompletion_TerminalFirstFetch(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/call/call-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "call-1",
			"status": "ended",
			"startedAt": "2025-04-01T10:00:00Z",
			"endedAt": "2025-04-01T10:01:30Z",
			"transcript": "AI: Hello there. User: Hi.",
			"cost": 0.12,
			"endedReason": "customer-ended-call",
			"artifact": {"recording": {"url": "https://rec.example/1.wav"}}
		}`))
	})

	var changes []string
	rec, err := c.WaitForCompletion(context.Background(), "call-1", "CRM-LEAD-1", func(r *models.CallRecord) {
		changes = append(changes, r.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, models.CallStatusEnded, rec.Status)
	assert.Equal(t, "CRM-LEAD-1", rec.LeadID)
	assert.Equal(t, "https://rec.example/1.wav", rec.RecordingURL)
	assert.Equal(t, "customer-ended-call", rec.EndReason)
	assert.InDelta(t, 90.0, rec.Duration, 0.001)
	assert.NotEmpty(t, rec.Summary)
	assert.Equal(t, []string{"ended"}, changes)
}

func TestWaitForCompletion_TimeoutIsDistinct(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"call-1","status":"in-progress"}`))
	})
	var changes int
	rec, err := c.WaitForCompletion(context.Background(), "call-1", "CRM-LEAD-1", func(*models.CallRecord) { changes++ })
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusTimeout, rec.Status)
	assert.Equal(t, 1, changes, "unchanged state must only be reported once")
}

func TestWaitForCompletion_Failed(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			_, _ = w.Write([]byte(`{"id":"call-1","status":"ringing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"call-1","status":"failed"}`))
	})
	rec, err := c.WaitForCompletion(context.Background(), "call-1", "L", nil)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusFailed, rec.Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, poll.Succeeded, Classify("completed"))
	assert.Equal(t, poll.Succeeded, Classify("ended"))
	assert.Equal(t, poll.Failed, Classify("failed"))
	assert.Equal(t, poll.Failed, Classify("canceled"))
	assert.Equal(t, poll.Pending, Classify("queued"))
	assert.Equal(t, poll.Pending, Classify("in-progress"))
}

func TestToRecord_RecordingFallback(t *testing.T) {
	rec := ToRecord(&Call{ID: "c", Status: "completed", RecordingURL: "https://rec.example/2.wav"}, "L")
	assert.Equal(t, "https://rec.example/2.wav", rec.RecordingURL)
}

func TestSummarizeTranscript(t *testing.T) {
	transcript := "AI: Hello, this is Sam from Sinx.\nUser: Hi Sam.\nAI: Do you have a minute to talk about catalogs?"
	summary := SummarizeTranscript(transcript, 1)
	assert.True(t, strings.HasPrefix(summary, "AI: Hello, this is Sam from Sinx."))
	assert.NotContains(t, summary, "catalogs")
	assert.Empty(t, SummarizeTranscript("", 2))
}
