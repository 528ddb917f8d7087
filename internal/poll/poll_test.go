package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func classifyStatus(s string) Class {
	switch s {
	case "completed", "ended":
		return Succeeded
	case "failed", "canceled":
		return Failed
	}
	return Pending
}

// sequence returns a fetch func that walks through states and then repeats the last.
func sequence(states ...string) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		i := calls
		if i >= len(states) {
			i = len(states) - 1
		}
		calls++
		return states[i], nil
	}, &calls
}

func TestUntil_TerminalFirstFetchReturnsImmediately(t *testing.T) {
	fetch, calls := sequence("completed")
	res := Until(context.Background(), fetch, classifyStatus, Options[string]{Interval: time.Hour, Timeout: time.Hour})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, "completed", res.Last)
}

func TestUntil_Failure(t *testing.T) {
	fetch, _ := sequence("queued", "ringing", "failed")
	res := Until(context.Background(), fetch, classifyStatus, Options[string]{Interval: time.Millisecond, Timeout: time.Second})
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, 3, res.Polls)
}

func TestUntil_TimeoutIsNotFailure(t *testing.T) {
	fetch, _ := sequence("in-progress")
	res := Until(context.Background(), fetch, classifyStatus, Options[string]{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond})
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.NotEqual(t, OutcomeFailure, res.Outcome)
	assert.True(t, res.HaveState)
	assert.Equal(t, "in-progress", res.Last)
	assert.GreaterOrEqual(t, res.Polls, 2)
}

func TestUntil_OnChangeOncePerStateChange(t *testing.T) {
	fetch, _ := sequence("queued", "queued", "ringing", "ringing", "ringing", "in-progress", "in-progress", "ended")
	var seen []string
	res := Until(context.Background(), fetch, classifyStatus, Options[string]{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		OnChange: func(s string) { seen = append(seen, s) },
	})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 8, res.Polls)
	assert.Equal(t, []string{"queued", "ringing", "in-progress", "ended"}, seen)
}

func TestUntil_FetchErrorsAreRetried(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporary")
		}
		return "completed", nil
	}
	res := Until(context.Background(), fetch, classifyStatus, Options[string]{Interval: time.Millisecond, Timeout: time.Second})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Polls)
	assert.Error(t, res.LastErr)
}

func TestUntil_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch, _ := sequence("queued")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := Until(ctx, fetch, classifyStatus, Options[string]{Interval: time.Hour, Timeout: 2 * time.Hour})
	assert.Equal(t, OutcomeCanceled, res.Outcome)
	assert.Equal(t, 1, res.Polls)
}
