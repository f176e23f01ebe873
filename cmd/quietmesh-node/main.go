// Command quietmesh-node runs one node of the envelope pipeline: it
// opens the event store and secret store, builds the ten pipeline
// handlers, registers the reference protocol's validators and
// projectors, builds the external operation facade (commands, queries,
// flows) with the reference operations registered, and serves the
// metrics endpoint. No transport exposes the facade outside the process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quietmesh/core/pkg/api"
	"github.com/quietmesh/core/pkg/config"
	"github.com/quietmesh/core/pkg/crypto"
	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/flow"
	"github.com/quietmesh/core/pkg/handlers"
	"github.com/quietmesh/core/pkg/jobs"
	"github.com/quietmesh/core/pkg/log"
	"github.com/quietmesh/core/pkg/metrics"
	"github.com/quietmesh/core/pkg/projector"
	"github.com/quietmesh/core/pkg/protocol"
	"github.com/quietmesh/core/pkg/query"
	"github.com/quietmesh/core/pkg/resolver"
	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/store"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "quietmesh-node",
	Short:   "Run a quietmesh envelope pipeline node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("quietmesh-node version %s\nCommit: %s\n", Version, Commit))
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("config", "", "Path to a YAML config file")
	startCmd.Flags().String("peer-id", "", "This node's peer id (required)")
	startCmd.Flags().String("network-id", "", "Network id this node participates in")
	startCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	startCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	startCmd.MarkFlagRequired("peer-id")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline, job runner, and operation facade",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		peerID, _ := cmd.Flags().GetString("peer-id")
		networkID, _ := cmd.Flags().GetString("network-id")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
		logger := log.WithComponent("node")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		eventDB, err := store.Open(cfg.EventDBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer eventDB.Close()

		if err := protocol.EnsureSchema(eventDB.Conn()); err != nil {
			return fmt.Errorf("ensure projected schema: %w", err)
		}

		secretStore, err := secrets.Open(cfg.SecretsDBPath)
		if err != nil {
			return fmt.Errorf("open secrets store: %w", err)
		}
		defer secretStore.Close()

		suite := crypto.NewSuite(crypto.Mode(cfg.CryptoMode))
		res := resolver.New(eventDB, secretStore)
		projectors := projector.NewRegistry()
		protocol.RegisterProjectors(projectors)

		deps := handlers.NewDeps(eventDB, secretStore, res, projectors, suite, cfg.RetryCap)
		protocol.RegisterValidators(deps.Validators)

		pipeline := handlers.Build(deps, handlers.NopSender{})
		disp := dispatcher.New(eventDB, cfg.RetryCap, pipeline)

		orch := flow.New(disp, suite, eventDB, secretStore, peerID, networkID)
		facade := query.New(eventDB.Conn())

		a := api.New(disp, orch, facade)
		api.RegisterReferenceOperations(a)

		runner := jobs.NewRunner(eventDB, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		runner.Start(ctx)
		defer runner.Stop()

		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					logger.Error().Err(err).Msg("metrics server error")
				}
			}()
		}

		logger.Info().Str("peer_id", peerID).Str("network_id", networkID).
			Str("crypto_mode", string(cfg.CryptoMode)).Msg("quietmesh node started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		return nil
	},
}
