package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zedjones/tsbridge/internal/app"
	"github.com/zedjones/tsbridge/internal/config"
	"github.com/zedjones/tsbridge/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "tsbridge",
		Short:         "Bridge TeamSpeak presence events into Matrix rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, configPath, logLevel)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override configured log level")
	return cmd
}

func run(cmd *cobra.Command, configPath, logLevel string) error {
	// Credentials commonly live in a .env next to the binary; missing files
	// are fine.
	_ = godotenv.Load()

	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
