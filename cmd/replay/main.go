// Command replay feeds recorded frames (JSON lines) through a local session
// and prints the resulting labels.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/repsense/internal/config"
	"github.com/okian/repsense/internal/replay"
	"github.com/okian/repsense/pkg/logger"
)

// Options holds the flags of the run command.
type Options struct {
	ConfigPath    string
	SingleShot    bool
	Quiet         bool
	FrameInterval time.Duration
	LogLevel      string
}

var (
	runOpts  Options
	pushOpts PushOptions
)

// PushOptions holds the flags of the push command.
type PushOptions struct {
	URL           string
	Timeout       time.Duration
	Retries       int
	Keep          bool
	SingleShot    bool
	Quiet         bool
	FrameInterval time.Duration
	LogLevel      string
}

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded pose frames through the repetition counter",
}

var runCmd = &cobra.Command{
	Use:   "run <file.jsonl>",
	Short: "Replay a JSON lines file of frames; use - for stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReplay(cmd.Context(), args[0], runOpts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <file.jsonl>",
	Short: "Post a JSON lines file of frames to a running server; use - for stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPush(cmd.Context(), args[0], pushOpts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.ConfigPath, "config", "c", "", "YAML config file (defaults to $REPSENSE_CONFIG)")
	runCmd.Flags().BoolVar(&runOpts.SingleShot, "single-shot", false, "Report only the top class per frame")
	runCmd.Flags().BoolVarP(&runOpts.Quiet, "quiet", "q", false, "Print only frames where the rep label changes")
	runCmd.Flags().DurationVar(&runOpts.FrameInterval, "frame-interval", replay.DefaultFrameInterval, "Time between frames that have no ts")
	runCmd.Flags().StringVar(&runOpts.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(runCmd)

	pushCmd.Flags().StringVarP(&pushOpts.URL, "url", "u", "http://localhost:9080", "Base URL of the server")
	pushCmd.Flags().DurationVar(&pushOpts.Timeout, "timeout", replay.DefaultTimeout, "HTTP request timeout")
	pushCmd.Flags().IntVar(&pushOpts.Retries, "retries", replay.DefaultRetries, "Extra attempts per frame on transport or 5xx errors")
	pushCmd.Flags().BoolVar(&pushOpts.Keep, "keep", false, "Leave the remote session open")
	pushCmd.Flags().BoolVar(&pushOpts.SingleShot, "single-shot", false, "Create the session in single-shot mode")
	pushCmd.Flags().BoolVarP(&pushOpts.Quiet, "quiet", "q", false, "Print only frames where the rep label changes")
	pushCmd.Flags().DurationVar(&pushOpts.FrameInterval, "frame-interval", replay.DefaultFrameInterval, "Time between frames that have no ts")
	pushCmd.Flags().StringVar(&pushOpts.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(pushCmd)
}

func runReplay(ctx context.Context, path string, opts Options, stdin io.Reader, stdout, stderr io.Writer) error {
	if err := logger.Init(logger.WithOutput(stderr), logger.WithLevel(opts.LogLevel)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	var loadOpts []config.LoadOption
	if opts.ConfigPath != "" {
		loadOpts = append(loadOpts, config.WithPath(opts.ConfigPath))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		return err
	}

	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open frames: %w", err)
		}
		defer f.Close()
		in = f
	}

	_, err = replay.Run(ctx, cfg, replay.Options{SingleShot: opts.SingleShot, Quiet: opts.Quiet, FrameInterval: opts.FrameInterval}, in, stdout)
	return err
}

func runPush(ctx context.Context, path string, opts PushOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	if err := logger.Init(logger.WithOutput(stderr), logger.WithLevel(opts.LogLevel)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open frames: %w", err)
		}
		defer f.Close()
		in = f
	}

	_, err := replay.Push(ctx, replay.PushOptions{
		Options: replay.Options{SingleShot: opts.SingleShot, Quiet: opts.Quiet, FrameInterval: opts.FrameInterval},
		BaseURL: opts.URL,
		Timeout: opts.Timeout,
		Retries: opts.Retries,
		Keep:    opts.Keep,
	}, in, stdout)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
