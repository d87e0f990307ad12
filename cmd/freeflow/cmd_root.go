package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Christopher-Costa/freeflow"
	"github.com/Christopher-Costa/freeflow/internal/adminhttp"
	"github.com/Christopher-Costa/freeflow/internal/config"
	"github.com/Christopher-Costa/freeflow/internal/metrics"
	"github.com/Christopher-Costa/freeflow/internal/supervisor"
)

// preLogger is used only for the window between process start and the
// point the Logger Sink is running: configuration load failures are
// printed through it, never through the domain log file, since that
// file doesn't exist yet. Admin HTTP server failures also go through it.
var preLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

var rootCmd = &cobra.Command{
	Use:     freeflow.AppName,
	Short:   "NetFlow v5 collector that ships decoded flow records to Splunk HEC",
	Long:    "freeflow terminates NetFlow v5 UDP datagrams, decodes them, and ships JSON events to one or more Splunk HEC endpoints over persistent HTTP/1.1 connections.",
	Version: freeflow.Version(),
	Args:    cobra.NoArgs,
	RunE:    runRoot,
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		preLogger.Error().Err(err).Msg("configuration error")
		return err
	}

	metrics.Init(freeflow.Version())

	admin := adminhttp.New(adminAddr)
	adminErrs := admin.Start()
	go func() {
		if err, ok := <-adminErrs; ok && err != nil {
			preLogger.Error().Err(err).Msg("admin HTTP server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg)
	return sup.Run(ctx)
}

func init() {
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(probeCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (required)")
	if err := rootCmd.MarkPersistentFlagRequired("config"); err != nil {
		panic("failed to mark config flag as required: " + err.Error())
	}

	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", ":9090", "Address for the /metrics and /healthz admin endpoints")
}
