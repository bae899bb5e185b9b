package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nfrund/chatterbox/internal/config"
	"github.com/nfrund/chatterbox/internal/logging"
	"github.com/nfrund/chatterbox/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveBackend string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the chat server until interrupted.

Configuration is read from the environment and an optional .env file.
Flags override the matching variables.

Examples:
  chatterbox serve
  chatterbox serve --addr :9000 --store surreal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		if serveBackend != "" {
			cfg.StoreBackend = serveBackend
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat))

		s, err := server.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to build server: %w", err)
		}

		addr := serveAddr
		if addr == "" {
			addr = ":" + cfg.Port
		}
		slog.Info("Starting server", "addr", addr, "store", cfg.StoreBackend, "auth", cfg.AuthEnabled())
		return s.Start(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default \":$PORT\")")
	serveCmd.Flags().StringVar(&serveBackend, "store", "", "Store backend (memory, surreal, mongo)")
}
