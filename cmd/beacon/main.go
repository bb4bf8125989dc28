package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peerbeam/beacon/internal/config"
	"github.com/peerbeam/beacon/internal/journal"
	"github.com/peerbeam/beacon/internal/logger"
	"github.com/peerbeam/beacon/internal/registry"
	"github.com/peerbeam/beacon/internal/server"
	signalpkg "github.com/peerbeam/beacon/internal/signal"
	"github.com/peerbeam/beacon/internal/sweeper"
)

var (
	flagAddr    string
	flagJournal string
)

var rootCmd = &cobra.Command{
	Use:  "beacon",
	Long: "beacon is a rendezvous server for peer-to-peer networks: peers register, discover each other and exchange connection-setup messages through it",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the beacon server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides BEACON_ADDR)")
	serveCmd.Flags().StringVar(&flagJournal, "journal", "", "sqlite event journal path (overrides BEACON_JOURNAL_PATH)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.ListenAddr = flagAddr
	}
	if flagJournal != "" {
		cfg.JournalPath = flagJournal
	}

	log := logger.NewLoggerWithLevel(cfg.LogLevel)

	var jour *journal.Journal
	if cfg.JournalPath != "" {
		jour, err = journal.Open(cfg.JournalPath, log)
		if err != nil {
			return err
		}
		defer jour.Close()
	}

	reg := registry.New(registry.Options{
		ActiveWindow:    cfg.ActiveWindow,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		Logger:          log,
	})
	dir := signalpkg.NewDirectory()
	relay := signalpkg.NewRelay(dir, reg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sw := sweeper.New(sweeper.Options{
		Registry:  reg,
		Interval:  cfg.SweepInterval,
		Threshold: cfg.InactivityThreshold,
		Logger:    log,
		OnRemoved: func(ids []string) {
			for _, id := range ids {
				jour.Record(journal.KindSweep, id, "")
			}
		},
	})
	go sw.Run(ctx)

	srv := server.New(cfg, log, reg, dir, relay, jour)
	return srv.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
