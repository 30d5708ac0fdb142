package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardplane/guardplane/core/controlplane/gateway"
	"github.com/guardplane/guardplane/core/controlplane/syncengine"
	"github.com/guardplane/guardplane/core/infra/bus"
	"github.com/guardplane/guardplane/core/infra/config"
	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/infra/redisutil"
	"github.com/guardplane/guardplane/core/platform"
)

func main() {
	log.Println("guardplane gateway starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	prom := metrics.NewProm("guardplane_gateway")
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
		log.Printf("gateway metrics on %s/metrics", cfg.MetricsAddr)
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

	sync := syncengine.NewSyncScanResultPoliciesService(dir, natsBus, prom, cfg.SyncBatchSize)
	server := gateway.NewServer(dir, evalCtx, sync, prom)

	httpSrv := &http.Server{
		Addr:         cfg.GatewayAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Printf("gateway listening on %s", cfg.GatewayAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("guardplane gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
