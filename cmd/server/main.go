// Command server runs the collaborative document core: the sync
// gateway's websocket endpoint, the thin REST surface, and the
// background git-sync scheduler, sharing one replica store, awareness
// store, and persistence layer.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/refmd-collab/docserver/internal/auth"
	"github.com/refmd-collab/docserver/internal/awareness"
	"github.com/refmd-collab/docserver/internal/config"
	"github.com/refmd-collab/docserver/internal/gateway"
	"github.com/refmd-collab/docserver/internal/gitsync"
	"github.com/refmd-collab/docserver/internal/linkgraph"
	"github.com/refmd-collab/docserver/internal/logging"
	"github.com/refmd-collab/docserver/internal/materializer"
	"github.com/refmd-collab/docserver/internal/persistence"
	"github.com/refmd-collab/docserver/internal/replica"
	"github.com/refmd-collab/docserver/internal/restapi"
	"github.com/refmd-collab/docserver/internal/scrap"

	"github.com/spf13/afero"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.ServiceLogger("docserver", "dev", logging.Level(cfg.LogLevel), logging.Format(cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Open(cfg.DatabaseURL, persistence.DefaultPoolConfig())
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	if err := persistence.Migrate(db); err != nil {
		logger.WithError(err).Fatal("migrate database")
	}

	awarenessStore, err := awareness.New(ctx, awareness.Config{RedisURL: cfg.RedisURL})
	if err != nil {
		logger.WithError(err).Fatal("connect awareness store")
	}
	defer awarenessStore.Close()

	replicaStore := replica.New()
	documents := persistence.NewDocumentRepository(db)
	linkIndexer := linkgraph.NewIndexer(db)

	git := gitsync.NewExecGitService()
	scheduler := gitsync.NewScheduler(gitsync.Config{
		TickInterval: cfg.GitSyncInterval,
		QuietPeriod:  30 * time.Second,
		MaxRetries:   3,
		Remote:       "origin",
		Branch:       "main",
		ReposRoot:    cfg.StorageRoot,
	}, git, logger)

	mat := materializer.New(materializer.Config{
		Fs:          afero.NewOsFs(),
		StorageRoot: cfg.StorageRoot,
		Logger:      logger,
		Notify:      func(_ context.Context, ownerID string) { scheduler.MarkDirty(ownerID) },
	})

	hub := gateway.NewHub(gateway.Deps{
		Replicas:     replicaStore,
		Awareness:    awarenessStore,
		Documents:    documents,
		Materializer: mat,
		Links:        linkIndexer,
		Logger:       logger,
	})

	scrapService := scrap.NewService(db, replicaStore, hub.BroadcastScrapPost)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	api := restapi.New(restapi.Deps{
		Verifier:  verifier,
		Documents: documents,
		Scraps:    scrapService,
		Git:       git,
		ReposRoot: func(userID string) string { return cfg.StorageRoot + "/" + userID },
		Logger:    logger,
	})

	wsHandler := gateway.NewHandler(hub, logger)

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/sync", wsHandler)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: mux,
	}

	if cfg.GitSyncEnabled {
		go scheduler.Run(ctx)
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("docserver listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	flushResidentDocuments(shutdownCtx, replicaStore, documents, logger)
}

// flushResidentDocuments snapshots every document still resident in
// the replica store so a restart never loses updates that were only
// ever acknowledged in memory, per the shutdown design note.
func flushResidentDocuments(ctx context.Context, store *replica.Store, documents *persistence.DocumentRepository, logger *logging.Logger) {
	for _, documentID := range store.Resident() {
		handle, ok := store.AcquireExisting(documentID)
		if !ok {
			continue
		}
		snapshot, err := handle.Snapshot()
		if err == nil {
			sv, _ := handle.StateVector()
			if err := documents.SaveSnapshot(ctx, documentID, snapshot, sv); err != nil {
				logger.WithField("document_id", documentID).WithError(err).Error("shutdown flush failed")
			}
		}
		store.Release(handle)
	}
}
