// Command wayfreeze freezes the screen of a wlroots compositor: every
// output is captured once and the captured frames are held on overlay
// surfaces until a pointer click or Escape dismisses them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wayfreeze/wayfreeze/internal/config"
	"github.com/wayfreeze/wayfreeze/internal/freeze"
	"github.com/wayfreeze/wayfreeze/internal/logging"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

var flags struct {
	hideCursor    bool
	beforeCmd     string
	beforeTimeout int
	afterCmd      string
	afterTimeout  int
	logLevel      string
	logFormat     string
	showVersion   bool
}

var rootCmd = &cobra.Command{
	Use:   "wayfreeze",
	Short: "Freeze the screen of a Wayland compositor",
	Long: `wayfreeze captures every output and holds the captured frames on
fullscreen overlay surfaces, so the screen appears frozen while tools
like color pickers or region selectors read it. Any pointer click or
the Escape key unfreezes.

Requires a compositor with wlr-layer-shell, wlr-screencopy, viewporter
and fractional-scale support.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVar(&flags.hideCursor, "hide-cursor", false, "leave the cursor out of the captured frames")
	f.StringVar(&flags.beforeCmd, "before-freeze-cmd", "", "shell command to start before the screen is captured")
	f.IntVar(&flags.beforeTimeout, "before-freeze-timeout", 0, "milliseconds to wait after starting the before command")
	f.StringVar(&flags.afterCmd, "after-freeze-cmd", "", "shell command to start after the screen is unfrozen")
	f.IntVar(&flags.afterTimeout, "after-freeze-timeout", 0, "milliseconds to wait after starting the after command")
	f.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&flags.logFormat, "log-format", "", "log format: text or json")
	f.BoolVarP(&flags.showVersion, "version", "V", false, "print version information and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wayfreeze: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if flags.showVersion {
		fmt.Printf("wayfreeze version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		return nil
	}

	cfg := config.New()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	client, err := wlclient.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, unfreezing", "signal", sig.String())
		cancel()
	}()

	sess := freeze.New(cfg, logger, client)
	if err := sess.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}
	logger.Debug("exit", "reason", sess.ExitReason().String())
	return nil
}

// applyFlags lays explicitly set flags over the config, keeping the
// precedence flags over environment over env-file over defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("hide-cursor") {
		cfg.Freeze.HideCursor = flags.hideCursor
	}
	if f.Changed("before-freeze-cmd") {
		cfg.Command.BeforeCmd = flags.beforeCmd
	}
	if f.Changed("before-freeze-timeout") {
		cfg.Command.BeforeTimeout = time.Duration(flags.beforeTimeout) * time.Millisecond
	}
	if f.Changed("after-freeze-cmd") {
		cfg.Command.AfterCmd = flags.afterCmd
	}
	if f.Changed("after-freeze-timeout") {
		cfg.Command.AfterTimeout = time.Duration(flags.afterTimeout) * time.Millisecond
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
}
