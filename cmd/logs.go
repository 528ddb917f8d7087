package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	logsLimit int
	logsJSON  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent entries from the AI email log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := appInstance.LeadService.GetAILogs(logsLimit)
		if err != nil {
			return err
		}
		if logsJSON {
			return printJSON(entries)
		}
		for _, e := range entries {
			level := e.Level
			switch level {
			case "error", "fatal", "panic":
				level = color.RedString(level)
			case "warning":
				level = color.YellowString(level)
			}
			fmt.Printf("%s %-7s %s\n", e.Timestamp, level, e.Message)
		}
		return nil
	},
}

var leadCmd = &cobra.Command{
	Use:   "lead <lead-name>",
	Short: "Print the lead fields the email generator sees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		fields, err := appInstance.LeadService.GetLeadStructure(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(fields)
	},
}

func init() {
	rootCmd.AddCommand(logsCmd, leadCmd)
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 100, "Number of entries to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print raw JSON")
}
