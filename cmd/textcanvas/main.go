package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/textcanvas/internal/config"
	"github.com/vango-dev/textcanvas/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌┬┐┌─┐─┐ ┬┌┬┐┌─┐┌─┐┌┐┌┬  ┬┌─┐┌─┐
   │ ├┤ ┌┴┬┘ │ │  ├─┤│││└┐┌┘├─┤└─┐
   ┴ └─┘┴ └─ ┴ └─┘┴ ┴┘└┘ └┘ ┴ ┴└─┘
`

// globalFlags are shared by every command.
type globalFlags struct {
	configDir string
	logLevel  string
	logJSON   bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "textcanvas",
		Short: "A shared plain-text canvas over WebSocket",
		Long: `textcanvas serves an unbounded grid of characters that every
connected client can edit at once.

Clients connect over WebSocket, send single-cell edits and cursor
moves as JSON, and receive the cells that changed on every tick.
Edits are persisted to SQLite, PostgreSQL or Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setupLogging(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configDir, "config", "c", ".", "Directory containing "+config.ConfigFileName)
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(
		serveCmd(g),
		watchCmd(g),
		putCmd(g),
		exportCmd(g),
		discoverCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the optional config file and applies the logging flags.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(g.configDir)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logJSON {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func (g *globalFlags) setupLogging(w io.Writer) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(w, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
