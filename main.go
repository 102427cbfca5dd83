package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"mdsync/internal/api"
	"mdsync/internal/config"
	"mdsync/internal/history"
	"mdsync/internal/logging"
	"mdsync/internal/middleware"
	syncengine "mdsync/internal/sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.json")
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal("failed to load config:", err)
		}
		cfg = config.Default()
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB for document history
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize history store
	hist, err := history.New(db, history.Options{})
	if err != nil {
		logger.Fatal("failed to initialize history store", zap.Error(err))
	}

	// Initialize the sync session and its live buffer
	buffer := syncengine.NewBuffer()
	session := syncengine.NewSession(syncengine.NewDiskStore(), buffer, nil, hist, syncengine.Options{
		SaveDelay:     time.Duration(cfg.Sync.SaveDelayMs) * time.Millisecond,
		WatchDebounce: time.Duration(cfg.Sync.WatchDebounceMs) * time.Millisecond,
	}, logger.Logger)
	defer session.Close()

	// Initialize handlers and router
	docHandler := api.NewDocumentHandler(session, buffer, hist)
	mux := api.Routes(docHandler)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
