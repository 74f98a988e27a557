package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlob/openlob/params"
	"github.com/openlob/openlob/pkg/api"
	"github.com/openlob/openlob/pkg/storage"
	"github.com/openlob/openlob/pkg/util"
	"github.com/openlob/openlob/pkg/venue"
)

func main() {
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewNodeLogger(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	v, err := venue.New(cfg.Venue, store, util.RealClock{}, logger)
	if err != nil {
		sugar.Fatalw("venue_init_failed", "err", err)
	}
	sugar.Infow("venue_ready",
		"authority", cfg.Venue.Authority,
		"markets", len(v.Markets()),
		"db", cfg.Node.DBPath)

	server := api.NewServer(v, logger)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	sugar.Infow("shutting_down")
}
