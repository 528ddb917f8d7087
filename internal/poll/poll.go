// Package poll repeatedly fetches the state of an external operation until it
// reaches a terminal state or a deadline passes.
package poll

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Class is how the caller classifies one observed state.
type Class int

const (
	Pending Class = iota
	Succeeded
	Failed
)

// Outcome is the reason polling stopped.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeCanceled Outcome = "canceled"
)

// Options tunes Until. Zero Interval and Timeout default to 15s and 300s.
type Options[S any] struct {
	Interval time.Duration
	Timeout  time.Duration
	// Key identifies a state for change detection. Defaults to fmt's %v.
	Key func(S) string
	// OnChange is called once for each state whose key differs from the
	// previously observed one, including the first.
	OnChange func(S)
	// Name appears in log lines.
	Name string
}

// Result is what Until observed.
type Result[S any] struct {
	Outcome Outcome
	// Last is the most recent successfully fetched state; HaveState is false
	// when every fetch failed.
	Last      S
	HaveState bool
	Polls     int
	// LastErr is the most recent fetch error, if any.
	LastErr error
}

// Until calls fetch immediately and then every Interval until classify
// reports a terminal state, the timeout elapses or ctx ends. A timeout is
// reported as OutcomeTimeout and never as a failure. Fetch errors are logged
// and retried.
func Until[S any](ctx context.Context, fetch func(context.Context) (S, error), classify func(S) Class, opts Options[S]) Result[S] {
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	key := opts.Key
	if key == nil {
		key = func(s S) string { return fmt.Sprintf("%v", s) }
	}

	var res Result[S]
	var lastKey string
	deadline := time.Now().Add(timeout)

	for {
		state, err := fetch(ctx)
		res.Polls++
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = OutcomeCanceled
				return res
			}
			res.LastErr = err
			log.WithField("poll", opts.Name).Warnf("Poll fetch failed (attempt %d): %v", res.Polls, err)
		} else {
			res.Last = state
			k := key(state)
			if !res.HaveState || k != lastKey {
				lastKey = k
				if opts.OnChange != nil {
					opts.OnChange(state)
				}
			}
			res.HaveState = true

			switch classify(state) {
			case Succeeded:
				res.Outcome = OutcomeSuccess
				return res
			case Failed:
				res.Outcome = OutcomeFailure
				return res
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.WithField("poll", opts.Name).Infof("Polling timed out after %s (%d polls)", timeout, res.Polls)
			res.Outcome = OutcomeTimeout
			return res
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Outcome = OutcomeCanceled
			return res
		case <-timer.C:
		}
	}
}
