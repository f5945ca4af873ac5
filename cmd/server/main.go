// Command notekeeper serves the notes HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/notekeeper/internal/config"
	"github.com/kuitang/notekeeper/internal/obs"
	"github.com/spf13/cobra"
)

// Version is the server version reported by `notekeeper version`.
const Version = "1.0.0"

var (
	rootCmd = &cobra.Command{
		Use:   "notekeeper",
		Short: "notes HTTP API with durable storage and in-memory fallback",
		Long: fmt.Sprintf(`notekeeper (v%s)

A small notes service. Notes live in SQLite; if the database fails, the
server keeps answering from memory until it is restarted.`, Version),
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Every flag can also be set through the environment
as the upper-cased flag name with dashes replaced by underscores
(e.g. LISTEN_ADDR=:9090). .env and .env.local are loaded when present.`,
		RunE: runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "notekeeper v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(config.LoadEnvFiles)
	config.RegisterFlags(serveCmd)
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	obs.Init()
	level, _ := obs.ParseLevel(cfg.LogLevel)
	obs.SetLevel(level)
	cfg.PrintStartupSummary(cmd.ErrOrStderr())

	return serve(cmd.Context(), cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
