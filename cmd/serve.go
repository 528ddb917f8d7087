package cmd

import (
	"fmt"

	"crmai/internal/apihandlers"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the HTTP API exposing email generation, sending, bulk jobs,
voice calls, diagnostics and the realtime event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") || addr == "" {
			addr = serveAddr
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") || port == "" {
			port = servePort
		}

		handler := apihandlers.NewAPIHandler(appInstance.APIDeps())
		router := apihandlers.NewRouter(handler, cfg.Server.CORSAllowedOrigins)

		listenAddr := fmt.Sprintf("%s:%s", addr, port)
		log.Infof("Starting crmai API server on http://%s", listenAddr)

		if err := router.Run(listenAddr); err != nil {
			log.Errorf("Failed to run API server: %v", err)
			return fmt.Errorf("failed to run API server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost", "Address to listen on (e.g., '0.0.0.0' for all interfaces)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
}
