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

	"github.com/radieske/wager-ledger/internal/ledger-service/engine"
	httpapi "github.com/radieske/wager-ledger/internal/ledger-service/http"
	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
	"github.com/radieske/wager-ledger/internal/ledger-service/matchsync"
	"github.com/radieske/wager-ledger/internal/ledger-service/producer"
	pgstore "github.com/radieske/wager-ledger/internal/ledger-service/store/postgres"
	"github.com/radieske/wager-ledger/internal/ledger-service/ws"
	sharedcache "github.com/radieske/wager-ledger/internal/shared/cache"
	"github.com/radieske/wager-ledger/internal/shared/config"
	"github.com/radieske/wager-ledger/internal/shared/db"
	sharedkafka "github.com/radieske/wager-ledger/internal/shared/kafka"
	"github.com/radieske/wager-ledger/internal/shared/logger"
	"github.com/radieske/wager-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres (com schema) e Redis
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Em local/dev garante os tópicos antes de produzir
	if cfg.Env == "local" || cfg.Env == "dev" {
		for _, topic := range []string{cfg.TopicWagerPlaced, cfg.TopicWagerSettled} {
			tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
			if err := sharedkafka.EnsureTopic(tctx, cfg.KafkaBrokers, topic, log); err != nil {
				log.Warn("ensure topic failed", zap.String("topic", topic), zap.Error(err))
			}
			tcancel()
		}
	}

	placedWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlaced)
	defer placedWriter.Close()
	settledWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	// Métricas Prometheus do ledger
	opsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_operations_total", Help: "operações do ledger por resultado"}, []string{"op", "outcome"})
	payouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_payout_units_total", Help: "unidades pagas em liquidações"})
	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_event_publish_errors_total", Help: "falhas ao publicar eventos"}, []string{"event"})
	txRetries := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_tx_retries_total", Help: "transações repetidas por conflito de serialização"})
	syncCycles := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_match_sync_cycles_total", Help: "ciclos de sincronização concluídos"})
	syncUpserts := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_match_sync_upserts_total", Help: "partidas gravadas no snapshot"})
	syncErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_match_sync_errors_total", Help: "erros de sincronização por estágio"}, []string{"stage"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_http_requests_total", Help: "requisições HTTP por rota e status"}, []string{"route", "status"})
	prometheus.MustRegister(opsBy, payouts, publishErrors, txRetries, syncCycles, syncUpserts, syncErrors, httpRequests)

	// Snapshot de partidas: Postgres com read-through no Redis e broadcast via Pub/Sub
	matchStore := matches.NewCached(matches.NewPostgres(pg), redisClient, cfg.MatchCacheTTL, cfg.RedisPubSubChannel, log)

	runner := pgstore.NewRunner(pg, log)
	runner.OnRetry = func() { txRetries.Inc() }

	eng := engine.New(log, runner, matchStore, engine.Config{
		OpTimeout:      cfg.EngineOpTimeout,
		OpeningBalance: cfg.OpeningBalance,
	})
	eng.Publisher = producer.NewKafkaPublisher(placedWriter, settledWriter, log)
	eng.OnOp = func(op, outcome string) { opsBy.WithLabelValues(op, outcome).Inc() }
	eng.OnPayout = func(winnings int64) { payouts.Add(float64(winnings)) }
	eng.OnPublishError = func(event string) { publishErrors.WithLabelValues(event).Inc() }

	// Job periódico que copia as partidas do feed para o snapshot
	job := &matchsync.Job{
		Log:   log,
		Feed:  matchsync.NewFeedClient(cfg.MatchFeedURL, cfg.MatchFeedTimeout),
		Store: matchStore,
		Odds: matchsync.FeedOdds{Fallback: matchsync.PlaceholderOdds{
			Red:  cfg.PlaceholderOddsRed,
			Blue: cfg.PlaceholderOddsBlue,
		}},
		EventKey:      cfg.MatchEventKey,
		UpsertTimeout: cfg.EngineOpTimeout,
		OnSynced: func(n int) {
			syncCycles.Inc()
			syncUpserts.Add(float64(n))
		},
		OnError: func(stage string) { syncErrors.WithLabelValues(stage).Inc() },
	}
	scheduler, err := matchsync.NewScheduler(log, job, cfg.MatchSyncSchedule)
	if err != nil {
		log.Fatal("match sync schedule", zap.String("schedule", cfg.MatchSyncSchedule), zap.Error(err))
	}
	scheduler.Start()

	// WebSocket: o hub recebe as atualizações do snapshot via Redis Pub/Sub
	hub := ws.NewHub(allowOrigin(cfg.CORSOrigins), log)
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := httpapi.NewServer(log, eng, cfg.CORSOrigins).WithWebSocket(hub.HandleWS)
	api.OnRequest = func(route string, status int) {
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("ledger-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("ledger-service shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn("match sync stop", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("ledger-service stopped")
}

// allowOrigin aplica a mesma lista do CORS ao handshake do WebSocket.
func allowOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
