// tokmand serves the public-key resolution endpoint for one service identity
// and keeps its signing keys alive: peers fetch GET /v1/keys?kid= to verify
// tokens this service issued.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/tokman"
	"github.com/dropDatabas3/tokman/internal/config"
	"github.com/dropDatabas3/tokman/internal/httpapi"
	"github.com/dropDatabas3/tokman/internal/metrics"
	"github.com/dropDatabas3/tokman/internal/observability/logger"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("TOKMAN_CONFIG"), "path to YAML config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Logger is not configured yet; stderr is all we have.
		os.Stderr.WriteString("tokmand: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.Service.Name,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("tokmand")

	if err := metrics.Register(nil); err != nil {
		log.Fatal("metrics registration failed", logger.Err(err))
	}

	mgr, err := tokman.Open(cfg)
	if err != nil {
		log.Fatal("manager init failed", logger.Err(err))
	}
	defer func() { _ = mgr.Close() }()

	// Generate the first pair eagerly so the endpoint serves keys before the
	// first encode call.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kid, err := mgr.ActiveKeyID(ctx)
	if err != nil {
		log.Fatal("key bootstrap failed", logger.Err(err))
	}
	log.Info("signing key ready", logger.KID(kid))

	router := httpapi.NewRouter(mgr)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", logger.Endpoint(cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", logger.Err(err))
	}
	log.Info("shutdown complete")
}
