package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/icrar/govospace/pkg/api"
	"github.com/icrar/govospace/pkg/config"
	"github.com/icrar/govospace/pkg/events"
	"github.com/icrar/govospace/pkg/executor"
	"github.com/icrar/govospace/pkg/health"
	"github.com/icrar/govospace/pkg/log"
	"github.com/icrar/govospace/pkg/metrics"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/space/posix"
	"github.com/icrar/govospace/pkg/storage"
	"github.com/icrar/govospace/pkg/vosxml"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the VOSpace server",
	Long: `Run the VOSpace server: the metadata store, the transfer engine,
the filesystem storage backend and the HTTP surface in one process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		// Flags override file values
		if cmd.Flags().Changed("listen-addr") {
			cfg.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
		}
		if cmd.Flags().Changed("storage-dir") {
			cfg.Storage.RootDir, _ = cmd.Flags().GetString("storage-dir")
		}
		return runServer(cfg)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML configuration file")
	serverCmd.Flags().String("listen-addr", "", "Address for the HTTP API")
	serverCmd.Flags().String("data-dir", "", "Directory for the metadata database")
	serverCmd.Flags().String("storage-dir", "", "Root directory for node bytes")
}

func runServer(cfg *config.Config) error {
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("server")

	metrics.Register()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go metrics.Watch(broker.Subscribe())
	go logEvents(broker.Subscribe())

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer store.Close()

	// The backend reports finished data-plane transfers back to the
	// executor; the executor needs the backend for negotiation. Break
	// the cycle with a late-bound callback.
	var exec *executor.Executor
	backend, err := posix.New(cfg.Storage.RootDir,
		func(jobID, nodePath string, put bool) error {
			return exec.AuthorizeDataTransfer(jobID, nodePath, put)
		},
		func(jobID string, err error) {
			exec.FinishDataTransfer(jobID, err)
		})
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}

	endpoints := make([]space.Endpoint, 0, len(cfg.Storage.Endpoints))
	for _, e := range cfg.Storage.Endpoints {
		endpoints = append(endpoints, space.Endpoint{
			URL:            e.URL,
			Protocol:       e.Protocol,
			SecurityMethod: e.SecurityMethod,
		})
	}

	codec := vosxml.NewCodec(cfg.SpaceName)
	exec = executor.New(store, backend, broker, codec, endpoints, cfg.AbortGrace())
	if err := exec.Recover(); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	apiServer := api.NewServer(store, exec, backend, backend, broker, codec, api.Config{
		DirectoryLimit: cfg.DirectoryLimit,
		Checkers: []health.Checker{
			health.NewStoreChecker(store),
			health.NewDiskChecker(cfg.Storage.RootDir),
		},
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("space", cfg.SpaceName).Msg("serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// logEvents mirrors lifecycle events into the debug log.
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		logger.Debug().
			Str("type", string(event.Type)).
			Fields(map[string]interface{}{"metadata": event.Metadata}).
			Msg(event.Message)
	}
}
