package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/pokedex-api/config"
	"github.com/stevemurr/pokedex-api/handler"
	"github.com/stevemurr/pokedex-api/store"
)

func setupCORS(cfg config.Config) cors.Config {
	c := cors.DefaultConfig()
	if cfg.AllowAllOrigins() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return c
}

// newRouter builds the engine. p, when set, instruments every route and
// serves /metrics.
func newRouter(cfg config.Config, s store.Store, p *ginprometheus.Prometheus) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/health"), gin.Recovery())
	r.Use(cors.New(setupCORS(cfg)))
	if p != nil {
		p.Use(r)
	}
	r.Static("/assets", cfg.AssetsDir)
	handler.New(s).Register(r)
	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	if cfg.Debug {
		level = log.DebugLevel
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetLevel(level)

	ctx := context.Background()
	s, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		log.Fatalf("failed to create store (backend=%s): %v", cfg.StoreBackend, err)
	}
	defer s.Close()

	if err := store.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warnf("store metrics not registered: %v", err)
	}
	s = store.Instrument(s, cfg.StoreBackend)

	r := newRouter(cfg, s, ginprometheus.NewPrometheus("gin"))

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Infof("Pokedex API starting on %s (store=%s, data=%s)", srv.Addr, cfg.StoreBackend, cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
