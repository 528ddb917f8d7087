package cmd

import (
	"fmt"
	"os"

	"crmai/internal/clix"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	costListLimit  int
	costListOffset int
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "View AI and voice usage costs",
	Long:  `Provides subcommands to list recorded usage entries and view cost totals.`,
}

var costListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded usage entries",
	Long:  `Displays a paginated list of LLM generations and voice calls with their cost and token counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		pagination, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return fmt.Errorf("invalid pagination flags: %w", err)
		}

		logs, err := appInstance.CostService.ListUsage(cmd.Context(), pagination.Limit, pagination.Offset)
		if err != nil {
			return fmt.Errorf("failed to list cost logs: %w", err)
		}

		if len(logs) == 0 {
			fmt.Println("No cost logs found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Timestamp", "Provider", "Operation", "Model", "In Tokens", "Out Tokens", "Cost", "Lead", "Job"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, entry := range logs {
			table.Append([]string{
				fmt.Sprintf("%d", entry.ID),
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.ProviderName,
				entry.ServiceType,
				entry.ModelName,
				fmt.Sprintf("%d", entry.InputTokens),
				fmt.Sprintf("%d", entry.OutputTokens),
				fmt.Sprintf("%.6f", entry.Cost),
				stringOr(entry.RelatedLead, "N/A"),
				stringOr(entry.RelatedJobID, "N/A"),
			})
		}
		table.Render()

		fmt.Printf("\nDisplayed %d logs.\n", len(logs))
		return nil
	},
}

var costSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show total cost and token usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		summary, err := appInstance.CostService.GetSummary(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get cost summary: %w", err)
		}

		fmt.Println("Usage Cost Summary:")
		fmt.Println("----------------------")
		fmt.Printf("Total Cost:          $%.6f\n", summary.TotalCost)
		fmt.Printf("Total Input Tokens:  %d\n", summary.TotalInputTokens)
		fmt.Printf("Total Output Tokens: %d\n", summary.TotalOutputTokens)
		fmt.Println("----------------------")
		return nil
	},
}

func init() {
	costCmd.AddCommand(costListCmd)
	costCmd.AddCommand(costSummaryCmd)

	costListCmd.Flags().IntVarP(&costListLimit, "limit", "l", 50, "Number of logs to display")
	costListCmd.Flags().IntVarP(&costListOffset, "offset", "o", 0, "Number of logs to skip")
}
