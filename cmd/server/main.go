package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/api"
	cfgpkg "github.com/taoyao-code/gt06-gateway/internal/config"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/command"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/connstate"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/frame"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
	"github.com/taoyao-code/gt06-gateway/internal/health"
	"github.com/taoyao-code/gt06-gateway/internal/httpserver"
	"github.com/taoyao-code/gt06-gateway/internal/logging"
	"github.com/taoyao-code/gt06-gateway/internal/metrics"
	"github.com/taoyao-code/gt06-gateway/internal/session/redisstore"
	redisstorage "github.com/taoyao-code/gt06-gateway/internal/storage/redis"
	"github.com/taoyao-code/gt06-gateway/internal/tcpserver"
	"github.com/taoyao-code/gt06-gateway/internal/telemetry"

	_ "github.com/taoyao-code/gt06-gateway/docs"
)

func main() {
	// 1) load configuration
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) init logging
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) metrics registry
	promReg := metrics.NewRegistry()
	metricsHandler := metrics.Handler(promReg)
	appMetrics := metrics.NewAppMetrics(promReg)

	// 4) Redis-backed session store (by_id/by_imei persistence, spec §6.2)
	var store registry.PersistentStore
	var redisClient *redisstorage.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisstorage.NewClient(cfg.Redis)
		if err != nil {
			log.Error("redis unavailable at startup, registry degrades to memory-only", zap.Error(err))
		} else {
			store = redisstore.New(redisClient.Client)
		}
	}

	// 5) TCP gateway and session registry (spec §4.4), store wrapped in
	// the gateway's own circuit breaker
	tcpSrv := tcpserver.New(cfg.TCP, log)
	if store != nil {
		store = registry.WithCircuitBreaker(store, tcpSrv.Breaker())
	}
	reg := registry.New(store, cfg.Gateway.IdleTimeout())

	// 6) telemetry bus (spec §4.6/§6.3)
	nc, err := telemetry.Dial(cfg.NATS)
	if err != nil {
		log.Error("telemetry bus unavailable at startup, emits degrade to no-ops", zap.Error(err))
	}
	var pub telemetry.Publisher
	if nc != nil {
		pub = nc
	}
	emitter := telemetry.New(pub, telemetry.TopicsFromConfig(cfg.NATS), log)
	emitter.SetMetrics(appMetrics)

	// 7) outbound command dispatcher (spec §4.3 delivery contract)
	dispatcher := command.NewDispatcher(reg, tcpSrv, log)
	dispatcher.SetMetrics(appMetrics)

	// 8) per-connection protocol state machine factory (spec §4.5)
	codecOpts := frame.Options{
		MaxFrameLength: cfg.Gateway.MaxFrameLength,
		StrictCRC:      cfg.Gateway.StrictCRC,
		StrictStopBits: cfg.Gateway.StrictStopBits,
	}
	tcpSrv.SetHandlerFactory(func(connID, remoteAddr string, w connstate.Writer) *connstate.Handler {
		h := connstate.New(connID, remoteAddr, w, reg, emitter, codecOpts, log)
		h.SetMetrics(appMetrics)
		return h
	})
	tcpSrv.SetMetricsCallbacks(func() { appMetrics.TCPAccepted.Inc() }, func(n int) {
		appMetrics.TCPBytesReceived.Add(float64(n))
	})

	// 9) TTL sweeper (spec §4.4 "TTL sweeper")
	sweeper := registry.NewSweeper(reg, tcpSrv, cfg.Gateway.IdleTimeout(), cfg.Gateway.CleanupInterval(), log)
	sweeper.SetMetrics(appMetrics)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	// 10) active-session gauge: sampled periodically from the registry's
	// in-memory snapshot
	gaugeCtx, stopGauge := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeCtx.Done():
				return
			case <-ticker.C:
				appMetrics.SessionsActive.Set(float64(reg.Len()))
			}
		}
	}()

	// 11) health check aggregator
	readiness := health.New()
	aggregator := health.NewAggregator(health.NewTCPChecker(tcpSrv))
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}

	// 12) HTTP admin plane: /healthz /readyz /metrics + /health/* + /admin/sessions
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, func() bool { return readiness.Ready() })
	health.RegisterHTTPRoutes(httpSrv.Engine(), aggregator)
	api.RegisterReadOnlyRoutes(httpSrv.Engine(), reg, log)
	httpSrv.Engine().GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// start HTTP and TCP concurrently
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	readiness.SetStoreReady(redisClient != nil || !cfg.Redis.Enabled)
	if err := tcpSrv.Start(); err != nil {
		log.Fatal("tcp server start error", zap.Error(err))
	}
	readiness.SetTCPReady(true)

	log.Info("gt06-gateway started", zap.String("tcp_addr", cfg.TCP.Addr), zap.String("http_addr", cfg.HTTP.Addr))
	// Outbound commands are dispatched through dispatcher by whatever
	// owns the operator-facing control surface (not specified by this
	// core); the gateway process keeps it constructed and wired so
	// that surface only needs to call Dispatch.
	_ = dispatcher

	// signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	readiness.SetTCPReady(false)
	stopSweeper()
	stopGauge()
	_ = httpSrv.Shutdown(ctx)
	_ = tcpSrv.Shutdown(ctx)
	if nc != nil {
		nc.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
