// Package cli provides the cuse-mixd command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Raikerian/go-cuse-mixer/internal/app"
	"github.com/Raikerian/go-cuse-mixer/internal/config"
	"github.com/Raikerian/go-cuse-mixer/internal/infrastructure"
	"github.com/Raikerian/go-cuse-mixer/internal/ingest"
	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
	"github.com/Raikerian/go-cuse-mixer/internal/sink"
)

const (
	defaultConfigPath = "config.yaml"
	shutdownTimeout   = 30 * time.Second
)

// NewRootCommand builds the cuse-mixd command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "cuse-mixd",
		Short:         "Real-time PCM mixing daemon",
		Long:          "cuse-mixd mixes client audio streams into one sink device in fixed-size fragments.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to config file")

	rootCmd.AddCommand(newCheckConfigCommand(&configPath))

	return rootCmd
}

func newCheckConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate a config file and print the resolved audio format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			f := cfg.Audio
			fmt.Fprintf(out, "config %s is valid\n", *configPath)
			fmt.Fprintf(out, "audio: %d-bit, %d channels, %d Hz, %d-byte fragments (%d frames)\n",
				f.Bits, f.Channels, f.SampleRate, f.FragmentSize, f.Frames())
			fmt.Fprintf(out, "sink: %s %s\n", cfg.Sink.Type, cfg.Sink.Path)
			fmt.Fprintf(out, "ingest: %s\n", cfg.Ingest.Listen)
			return nil
		},
	}
}

// Modules is the full dependency graph of the daemon.
func Modules(configPath string) []fx.Option {
	return []fx.Option{
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Audio path
		sink.Module,
		mixer.Module,
		ingest.Module,

		fx.Supply(configPath),
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
	}
}

func runDaemon(configPath string) error {
	application := app.New(Modules(configPath)...)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), shutdownTimeout)
	err := application.Start(startCtx)
	cancelStart()
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	err = application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	fmt.Println("Application has shut down gracefully.")
	return nil
}
