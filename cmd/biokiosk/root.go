package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/biokiosk/internal/config"
	"github.com/dudu/biokiosk/internal/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is loaded before any subcommand runs
	cfg     config.Config
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "biokiosk",
	Short:         "Photo booth kiosk that fits eyewear over a live camera feed",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logging.Init(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file with BIOKIOSK_* settings")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("onnx-lib", "", "ONNX Runtime shared library")
	rootCmd.PersistentFlags().String("provider", "", "Execution provider: cpu or coreml")
}

// applyFlags copies explicitly set flags over the environment settings
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	str("log-level", &c.LogLevel)
	str("onnx-lib", &c.OnnxLibrary)
	if flags.Changed("provider") {
		provider, _ := flags.GetString("provider")
		c.Provider = strings.ToLower(provider)
	}

	str("still", &c.StillImage)
	if flags.Changed("style") {
		style, _ := flags.GetString("style")
		c.Style = strings.ToUpper(style)
	}
	str("output", &c.OutputDir)
	str("assets", &c.AssetsDir)
	num("camera", &c.CameraID)
	num("countdown", &c.Countdown)
	num("sessions", &c.Sessions)
	if flags.Changed("fps") {
		c.FPS, _ = flags.GetFloat64("fps")
	}
	if flags.Changed("headless") {
		c.Headless, _ = flags.GetBool("headless")
	}
}
