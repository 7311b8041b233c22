package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"barbershop-booking/internal/app"
	"barbershop-booking/internal/cache"
	"barbershop-booking/internal/config"
	"barbershop-booking/internal/logger"
	"barbershop-booking/internal/metrics"
	"barbershop-booking/internal/notify"
	"barbershop-booking/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.URL)
	if err != nil {
		l.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		l.Fatal("ping db", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer func() { _ = rdb.Close() }()
	var c *cache.Cache
	if err := rdb.Ping(ctx).Err(); err != nil {
		l.Warn("redis unavailable, running without cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		c = cache.New(rdb, cfg.Cache.TTL, cfg.Cache.Channel, l.Named("cache"))
		go func() {
			if err := c.Listen(ctx); err != nil {
				l.Error("cache listener stopped", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine, err := cfg.Slots.Engine()
	if err != nil {
		l.Fatal("slot engine", zap.Error(err))
	}

	var events app.Publisher
	if c != nil {
		events = c
	}
	store := app.NewPGStore(pool, events)
	a := app.New(store, c, engine, cfg.Slots.Location(), l)
	a.Metrics = m
	var hook *notify.Webhook
	if cfg.Notify.WebhookURL != "" {
		hook = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, l.Named("notify"), m)
		a.Notifier = hook
	}
	if cc := app.NewCalendarConnector(cfg.Google, store, cfg.Auth.JWTSecret, a.Location, l.Named("calendar")); cc != nil {
		a.Calendar = cc
		a.External = app.MultiSource{cc}
	}

	r := server.NewEngine(cfg.Server, l)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	a.Register(r,
		app.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.StaticTokens),
		server.RateLimit(cfg.Server.RateLimit, l))

	if err := server.Run(ctx, r, cfg.Server.Port, l); err != nil {
		l.Error("server stopped", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hook.Close(drainCtx); err != nil {
		l.Warn("booking webhooks still in flight at exit", zap.Error(err))
	}
}
