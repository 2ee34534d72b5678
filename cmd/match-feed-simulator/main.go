package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/match-feed-simulator/feed"
	"github.com/radieske/wager-ledger/internal/shared/config"
	"github.com/radieske/wager-ledger/internal/shared/logger"
	"github.com/radieske/wager-ledger/internal/shared/metrics"
)

var (
	// Métricas Prometheus para monitoramento de consultas e ticks
	feedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_feed_requests_total",
		Help: "Total de consultas ao feed por status",
	}, []string{"status"})
	feedTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_feed_odds_ticks_total",
		Help: "Total de recálculos de odds",
	})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(feedRequests, feedTicks)

	// Partidas começam daqui a 10 minutos, uma a cada 7 minutos
	start := time.Now().Add(10 * time.Minute).Truncate(time.Minute)
	catalog := feed.NewCatalog(cfg.MatchEventKey, 24, start, 7*time.Minute, time.Now().UnixNano())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Recalcula as odds a cada 3 segundos
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				catalog.Tick()
				feedTicks.Inc()
			}
		}
	}()

	h := &feed.Handler{
		Catalog:   catalog,
		Log:       log,
		OnRequest: func(status int) { feedRequests.WithLabelValues(strconv.Itoa(status)).Inc() },
	}

	// Servidor de métricas em goroutine
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("match feed simulator (metrics) running",
		zap.String("addr", metricsSrv.Addr),
		zap.String("paths", "/healthz,/metrics"),
	)

	// Servidor público (feed)
	publicSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("match feed simulator (public) running",
			zap.String("addr", publicSrv.Addr),
			zap.String("event_key", cfg.MatchEventKey),
			zap.String("paths", "/v3/event/{key}/matches"),
		)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = publicSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("match feed simulator stopped")
}
