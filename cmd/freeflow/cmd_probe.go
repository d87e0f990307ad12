package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Christopher-Costa/freeflow/internal/config"
	"github.com/Christopher-Costa/freeflow/internal/hecsession"
	"github.com/Christopher-Costa/freeflow/internal/worker"
)

// probeTimeout bounds each endpoint's connect-and-probe attempt so a
// single unreachable endpoint doesn't hang the subcommand indefinitely.
const probeTimeout = 15 * time.Second

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connectivity to every configured Splunk HEC endpoint",
	Long:  "Load the configuration, dial every configured HEC endpoint, run the connectivity/auth probe against each, and report pass/fail without starting the receiver or workers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		failed := false
		for _, ep := range cfg.Endpoints {
			if err := probeOne(ep, cfg.TLSEnabled); err != nil {
				fmt.Fprintf(os.Stderr, "%s: FAIL: %v\n", ep.Addr(), err)
				failed = true
				continue
			}
			fmt.Printf("%s: OK\n", ep.Addr())
		}

		if failed {
			os.Exit(1)
		}
		return nil
	},
}

func probeOne(ep hecsession.Endpoint, tlsEnabled bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	session := hecsession.New(ep, tlsEnabled)
	if err := session.Initialize(ctx); err != nil {
		return err
	}
	defer session.Close()

	return worker.Probe(session)
}
