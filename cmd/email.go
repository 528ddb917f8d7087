package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	emailTone      string
	emailContext   string
	emailUser      string
	emailRecipient string
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Generate and send AI emails",
}

var emailGenerateCmd = &cobra.Command{
	Use:   "generate <lead-name>",
	Short: "Generate an email for a lead and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		email, err := appInstance.EmailService.GenerateEmailContent(cmd.Context(), args[0], emailTone, emailContext,
			userOrDefault(emailUser, appInstance.Config.App.DefaultUser))
		if err != nil {
			return err
		}
		fmt.Printf("Subject: %s\n\n%s\n", email.Subject, email.Content)
		return nil
	},
}

var emailTestCmd = &cobra.Command{
	Use:   "test <lead-name>",
	Short: "Generate an email for a lead and send it to a test recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		user := userOrDefault(emailUser, appInstance.Config.App.DefaultUser)
		email, err := appInstance.EmailService.GenerateEmailContent(cmd.Context(), args[0], emailTone, emailContext, user)
		if err != nil {
			return err
		}
		msg, err := appInstance.EmailService.SendTestEmail(cmd.Context(), args[0], email.Content, email.Subject, emailRecipient, user)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var emailSystemTestCmd = &cobra.Command{
	Use:   "system-test <recipient>",
	Short: "Send a fixed test email through the configured outgoing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		msg, err := appInstance.EmailService.SendTestEmailViaSystem(cmd.Context(), args[0],
			userOrDefault(emailUser, appInstance.Config.App.DefaultUser))
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var emailPreferenceCmd = &cobra.Command{
	Use:   "preference [smtp|resend]",
	Short: "Show or set the delivery channel",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 1 {
			msg, err := appInstance.EmailService.SetEmailPreference(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		}
		pref, err := appInstance.EmailService.GetEmailPreference(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Preference:        %s\n", pref.EmailPreference)
		fmt.Printf("SMTP configured:   %s\n", yesNo(pref.FrappeEmailConfigured))
		fmt.Printf("Resend configured: %s\n", yesNo(pref.ResendConfigured))
		return nil
	},
}

var emailDiagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Print the email configuration diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(appInstance.EmailService.EmailDiagnostics(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(emailCmd)
	emailCmd.AddCommand(emailGenerateCmd, emailTestCmd, emailSystemTestCmd, emailPreferenceCmd, emailDiagnosticsCmd)

	emailCmd.PersistentFlags().StringVar(&emailUser, "user", "", "Acting CRM user (defaults to app.default_user)")
	for _, c := range []*cobra.Command{emailGenerateCmd, emailTestCmd} {
		c.Flags().StringVar(&emailTone, "tone", "professional", "Email tone")
		c.Flags().StringVar(&emailContext, "context", "", "Additional context for the email generator")
	}
	emailTestCmd.Flags().StringVar(&emailRecipient, "to", "", "Recipient (defaults to email.test_recipient)")
}
