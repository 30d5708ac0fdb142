package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardplane/guardplane/core/controlplane/syncengine"
	"github.com/guardplane/guardplane/core/infra/bus"
	"github.com/guardplane/guardplane/core/infra/config"
	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/infra/redisutil"
	"github.com/guardplane/guardplane/core/platform"
)

func main() {
	log.Println("guardplane syncd starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	prom := metrics.NewProm("guardplane_syncd")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("syncd metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	redisClient, err := redisutil.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	dir := platform.NewRedisDirectoryWithClient(redisClient)

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsBus.Close()

	evalCtx := platform.EvalContext{
		Flags:    platform.FlagsFromList(cfg.FeatureFlags),
		Licenses: platform.LicensesFromList(cfg.LicensedFeatures),
	}

	worker := syncengine.NewWorker(dir, natsBus, evalCtx, prom, cfg.SyncQueueGroup)
	if err := worker.Start(natsBus); err != nil {
		log.Fatalf("failed to start sync worker: %v", err)
	}

	sync := syncengine.NewSyncScanResultPoliciesService(dir, natsBus, prom, cfg.SyncBatchSize)
	reconciler := syncengine.NewReconciler(dir, sync, cfg.ReconcileInterval, cfg.SyncBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reconciler.Run(ctx)

	log.Printf("syncd ready queue=%s interval=%s", cfg.SyncQueueGroup, cfg.ReconcileInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("guardplane syncd shutting down")
}
