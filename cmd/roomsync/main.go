// Command roomsync serves collaborative rooms over WebSocket.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// overrides returns the flags that were set, as config keys.
func (g *globalFlags) overrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	if cmd.Flags().Changed("log-level") {
		out["log.level"] = g.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		out["log.format"] = g.logFormat
	}
	return out
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "roomsync",
		Short: "Real-time collaborative room server",
		Long: `roomsync hosts collaborative rooms. Clients connect over WebSocket to
/connect/{roomID}?sessionId=..., and each room keeps one authoritative
engine whose state is snapshotted to durable storage.

Configuration is read from defaults, an optional YAML file, ROOMSYNC_*
environment variables and flags, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		serveCmd(g),
		snapshotCmd(g),
		versionCmd(),
	)
	return root
}
