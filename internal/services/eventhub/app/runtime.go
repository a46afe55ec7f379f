// Package app wires the event hub runtime: sqlite store, catalog provider,
// scheduler, engine, and the HTTP ingest API with a gRPC health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/questline/eventhub/internal/platform/timeouts"
	"github.com/questline/eventhub/internal/services/eventhub/catalog"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/domain/engine"
	"github.com/questline/eventhub/internal/services/eventhub/schedule"
	"github.com/questline/eventhub/internal/services/eventhub/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls event hub startup and dependencies.
type RuntimeConfig struct {
	HTTPPort    int
	GRPCPort    int
	DBPath      string
	CatalogPath string
	CatalogTTL  time.Duration
}

const (
	defaultHTTPPort    = 8094
	defaultGRPCPort    = 8095
	defaultDBPath      = "data/eventhub.db"
	defaultCatalogPath = "data/catalog.json"
)

// Run starts the event hub runtime and blocks until the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = defaultGRPCPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = defaultCatalogPath
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = catalog.DefaultTTL
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open event hub sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close event hub sqlite store: %v", closeErr)
		}
	}()

	fileProvider, err := catalog.NewFileProvider(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	provider := catalog.NewCached(fileProvider, cfg.CatalogTTL)

	sched := schedule.New(store)
	eng := engine.New(store, provider, sched, nil)
	sched.Bind(func(ctx context.Context, pt domain.PendingTransition) {
		if err := eng.ApplyPending(ctx, pt); err != nil {
			log.Printf("apply pending transition %s: %v", pt.ID, err)
		}
	})
	if err := sched.Resume(ctx); err != nil {
		return fmt.Errorf("resume pending transitions: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           NewHandler(eng, store),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on grpc port %d: %w", cfg.GRPCPort, err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("eventhub.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("event hub listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("event hub health server listening at %v", grpcListener.Addr())
		return grpcServer.Serve(grpcListener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown http server: %v", err)
		}
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return groupCtx.Err()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
