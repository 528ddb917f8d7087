package cmd

import (
	"context"
	"fmt"
	"time"

	"crmai/internal/models"
	"crmai/internal/poll"
	"crmai/internal/services"

	"github.com/spf13/cobra"
)

var (
	callUser     string
	callWait     bool
	callInterval time.Duration
	callTimeout  time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Place and inspect AI voice calls",
}

var callLeadCmd = &cobra.Command{
	Use:   "lead <lead-name>",
	Short: "Place an AI voice call to a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		rec, err := appInstance.CallService.CallLead(cmd.Context(), args[0],
			userOrDefault(callUser, appInstance.Config.App.DefaultUser))
		if err != nil {
			return err
		}
		fmt.Printf("Call %s placed to %s (%s)\n", rec.CallID, rec.LeadID, colorStatus(rec.Status))
		if !callWait {
			return nil
		}
		return waitForCall(cmd.Context(), appInstance.CallService, rec.CallID)
	},
}

var callStatusCmd = &cobra.Command{
	Use:   "status <call-id>",
	Short: "Show the last observed state of a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		rec, err := appInstance.CallService.GetCallStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

func waitForCall(ctx context.Context, svc *services.CallService, callID string) error {
	res := poll.Until(ctx,
		func(ctx context.Context) (*models.CallRecord, error) {
			return svc.GetCallStatus(ctx, callID)
		},
		func(r *models.CallRecord) poll.Class {
			switch r.Status {
			case models.CallStatusEnded, models.CallStatusCompleted:
				return poll.Succeeded
			case models.CallStatusFailed, models.CallStatusCanceled, models.CallStatusError, models.CallStatusTimeout:
				return poll.Failed
			}
			return poll.Pending
		},
		poll.Options[*models.CallRecord]{
			Interval: callInterval,
			Timeout:  callTimeout,
			Name:     "call:" + callID,
			Key:      func(r *models.CallRecord) string { return r.Status },
			OnChange: func(r *models.CallRecord) {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), colorStatus(r.Status))
			},
		},
	)

	if res.HaveState {
		if err := printJSON(res.Last); err != nil {
			return err
		}
	}
	switch res.Outcome {
	case poll.OutcomeSuccess:
		return nil
	case poll.OutcomeFailure:
		return fmt.Errorf("call %s ended with status %s", callID, res.Last.Status)
	case poll.OutcomeTimeout:
		return fmt.Errorf("stopped waiting for call %s after %s", callID, callTimeout)
	}
	return fmt.Errorf("stopped waiting for call %s", callID)
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.AddCommand(callLeadCmd, callStatusCmd)

	callLeadCmd.Flags().StringVar(&callUser, "user", "", "Acting CRM user (defaults to app.default_user)")
	callLeadCmd.Flags().BoolVar(&callWait, "wait", false, "Follow the call until it ends")
	callLeadCmd.Flags().DurationVar(&callInterval, "interval", 5*time.Second, "Polling interval while waiting")
	callLeadCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Minute, "Stop waiting after this long")
}
