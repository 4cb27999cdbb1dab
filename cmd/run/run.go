package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = config.PathFromEnv("config.yaml")
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Run the softmine server",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "server-cmd").Logger()

	// Load configuration
	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("starting softmine server")
	if err := server.Start(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
