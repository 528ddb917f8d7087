package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"crmai/internal/clix"
	"crmai/internal/models"
	"crmai/internal/poll"
	"crmai/internal/services"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	bulkTone         string
	bulkContext      string
	bulkTestMode     bool
	bulkUser         string
	bulkWait         bool
	bulkWaitInterval time.Duration
	bulkWaitTimeout  time.Duration
	bulkJSON         bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Start and inspect bulk email jobs",
}

var bulkStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Queue a bulk email job for every lead matching a filter",
	Example: `  crmai bulk start --where status=New --where industry~Retail --tone friendly
  crmai bulk start --filters '{"territory":"EMEA"}' --test-mode=false --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		filterJSON, err := clix.ParseFilters(cmd.Flags())
		if err != nil {
			return err
		}

		started, err := appInstance.BulkService.StartBulk(cmd.Context(), services.BulkRequest{
			FilterJSON:        filterJSON,
			Tone:              bulkTone,
			AdditionalContext: bulkContext,
			TestMode:          bulkTestMode,
			User:              userOrDefault(bulkUser, appInstance.Config.App.DefaultUser),
		})
		if err != nil {
			return err
		}

		fmt.Println(started.Message)
		fmt.Printf("Job ID: %s\n", started.JobID)
		if bulkTestMode {
			fmt.Printf("Test mode: all emails go to %s\n", appInstance.EmailService.TestModeRecipient())
		}
		if !bulkWait {
			return nil
		}
		return waitForJob(cmd.Context(), appInstance.BulkService, started.JobID)
	},
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a bulk email job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		job, err := appInstance.BulkService.GetJobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if bulkJSON {
			return printJSON(job)
		}
		printJob(job)
		return nil
	},
}

var bulkWaitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Follow a bulk email job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		return waitForJob(cmd.Context(), appInstance.BulkService, args[0])
	},
}

var bulkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent bulk email jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		jobs, err := appInstance.BulkService.ListJobs(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		if bulkJSON {
			return printJSON(jobs)
		}
		if len(jobs) == 0 {
			fmt.Println("No bulk email jobs found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Job ID", "Status", "Progress", "Leads", "Sent", "Failed", "User", "Created"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, j := range jobs {
			table.Append([]string{
				j.JobID,
				colorStatus(j.Status),
				fmt.Sprintf("%d%%", j.Progress),
				fmt.Sprintf("%d", j.LeadsCount),
				fmt.Sprintf("%d", j.SuccessCount),
				fmt.Sprintf("%d", j.ErrorCount),
				j.User,
				j.Timestamp.Format(time.RFC3339),
			})
		}
		table.Render()
		return nil
	},
}

var bulkLeadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Show the leads selected by the most recent bulk job",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		leads, err := appInstance.BulkService.GetLastBulkLeads(cmd.Context())
		if err != nil {
			return err
		}
		if bulkJSON {
			return printJSON(leads)
		}
		if len(leads) == 0 {
			fmt.Println("No cached leads from a recent bulk job.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Lead", "Name", "Email", "Organization", "Status"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, l := range leads {
			table.Append([]string{l.Name, l.FullName(), l.Email, l.Organization, l.Status})
		}
		table.Render()
		return nil
	},
}

var bulkDebugCmd = &cobra.Command{
	Use:   "debug <job-id>",
	Short: "Show queue details for a failed bulk job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		debug, err := appInstance.BulkService.DebugFailedJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(debug)
	},
}

func waitForJob(ctx context.Context, svc *services.BulkService, jobID string) error {
	res := poll.Until(ctx,
		func(ctx context.Context) (*models.JobStatus, error) {
			return svc.GetJobStatus(ctx, jobID)
		},
		func(j *models.JobStatus) poll.Class {
			switch j.Status {
			case models.JobStatusCompleted, models.JobStatusCompletedWithErrors:
				return poll.Succeeded
			case models.JobStatusError, models.JobStatusNotFound:
				return poll.Failed
			}
			return poll.Pending
		},
		poll.Options[*models.JobStatus]{
			Interval: bulkWaitInterval,
			Timeout:  bulkWaitTimeout,
			Name:     "bulk:" + jobID,
			Key: func(j *models.JobStatus) string {
				return fmt.Sprintf("%s/%d", j.Status, j.Progress)
			},
			OnChange: func(j *models.JobStatus) {
				fmt.Printf("[%s] %s %d%% (%d/%d leads)\n",
					time.Now().Format("15:04:05"), colorStatus(j.Status), j.Progress, j.ProcessedCount(), j.LeadsCount)
			},
		},
	)

	if res.HaveState {
		printJob(res.Last)
	}
	switch res.Outcome {
	case poll.OutcomeSuccess:
		return nil
	case poll.OutcomeFailure:
		return fmt.Errorf("job %s ended with status %s", jobID, res.Last.Status)
	case poll.OutcomeTimeout:
		return fmt.Errorf("stopped waiting for job %s after %s; it is still running", jobID, bulkWaitTimeout)
	}
	return fmt.Errorf("stopped waiting for job %s", jobID)
}

func printJob(j *models.JobStatus) {
	fmt.Printf("Job:      %s\n", j.JobID)
	fmt.Printf("Status:   %s\n", colorStatus(j.Status))
	fmt.Printf("Progress: %d%% (%d of %d leads)\n", j.Progress, j.ProcessedCount(), j.LeadsCount)
	fmt.Printf("Tone:     %s  Test mode: %t  User: %s\n", j.Tone, j.TestMode, j.User)
	if j.SkippedCount > 0 {
		fmt.Printf("Skipped:  %d\n", j.SkippedCount)
	}
	if j.Error != "" {
		fmt.Printf("Error:    %s\n", j.Error)
	}
	if len(j.FailedLeads) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Lead", "Error"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, f := range j.FailedLeads {
		table.Append([]string{f.Name, f.Error})
	}
	table.Render()
}

func userOrDefault(user, def string) string {
	if user != "" {
		return user
	}
	return def
}

func init() {
	rootCmd.AddCommand(bulkCmd)
	bulkCmd.AddCommand(bulkStartCmd, bulkStatusCmd, bulkWaitCmd, bulkListCmd, bulkLeadsCmd, bulkDebugCmd)

	bulkCmd.PersistentFlags().BoolVar(&bulkJSON, "json", false, "Print raw JSON")

	bulkStartCmd.Flags().String("filters", "", "Lead filter as JSON (object or list form)")
	bulkStartCmd.Flags().StringArray("where", nil, "Filter clause field=value, field!=value or field~pattern (repeatable)")
	bulkStartCmd.Flags().StringVar(&bulkTone, "tone", "professional", "Email tone")
	bulkStartCmd.Flags().StringVar(&bulkContext, "context", "", "Additional context for the email generator")
	bulkStartCmd.Flags().BoolVar(&bulkTestMode, "test-mode", true, "Send every email to the test recipient instead of the lead")
	bulkStartCmd.Flags().StringVar(&bulkUser, "user", "", "Acting CRM user (defaults to app.default_user)")
	bulkStartCmd.Flags().BoolVar(&bulkWait, "wait", false, "Follow the job until it finishes")

	for _, c := range []*cobra.Command{bulkStartCmd, bulkWaitCmd} {
		c.Flags().DurationVar(&bulkWaitInterval, "interval", 3*time.Second, "Polling interval while waiting")
		c.Flags().DurationVar(&bulkWaitTimeout, "timeout", 30*time.Minute, "Stop waiting after this long")
	}
}
