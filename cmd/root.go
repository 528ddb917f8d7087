package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"crmai/internal/app"
	"crmai/internal/config"
	"crmai/internal/logging"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "crmai",
	Short: "CRM AI outreach service",
	Long: `crmai generates personalized sales emails for CRM leads with an LLM,
delivers them through SMTP or Resend, runs bulk email jobs in the background
and places AI voice calls to leads.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	// PersistentPreRunE loads config and builds the app for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return nil
		}
		if cmd.HasParent() && cmd.Parent().Name() == "completion" {
			return nil
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logCloser, err = logging.Setup(logging.Options{
			Level:  cfg.App.LogLevel,
			Format: cfg.App.LogFormat,
			File:   cfg.App.LogFile,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

// GetAppFromContext returns the app built in PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(costCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database, Redis and provider configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		fmt.Println("Checking database connectivity...")
		if err := appInstance.Store.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Println("Database connection successful.")

		fmt.Println("Checking Redis connectivity...")
		if err := appInstance.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		fmt.Println("Redis connection successful.")

		status := appInstance.EmailService.GetAPIStatus()
		fmt.Printf("LLM provider configured: %s\n", yesNo(status.OpenAIConfigured))
		fmt.Printf("Resend configured:       %s\n", yesNo(status.ResendConfigured))
		fmt.Printf("SMTP configured:         %s\n", yesNo(appInstance.Config.Email.SMTP.Configured()))
		fmt.Printf("Voice calls configured:  %s\n", yesNo(appInstance.VoiceClient != nil))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := appInstance.Store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("Database schema is up to date.")
		return nil
	},
}
