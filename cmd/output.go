package cmd

import (
	"encoding/json"
	"fmt"

	"crmai/internal/models"

	"github.com/fatih/color"
)

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func stringOr(s *string, def string) string {
	if s != nil && *s != "" {
		return *s
	}
	return def
}

// colorStatus colors a job or call status for terminal output.
func colorStatus(status string) string {
	switch status {
	case models.JobStatusCompleted, models.CallStatusEnded:
		return color.GreenString(status)
	case models.JobStatusCompletedWithErrors, models.CallStatusTimeout, models.JobStatusNotFound:
		return color.YellowString(status)
	case models.JobStatusError, models.CallStatusFailed, models.CallStatusCanceled:
		return color.RedString(status)
	}
	return color.CyanString(status)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
