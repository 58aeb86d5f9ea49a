package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shopbot/config"
	"shopbot/internal/api"
	"shopbot/internal/bot"
	"shopbot/internal/broker"
	"shopbot/internal/gate"
	"shopbot/internal/redisclient"
	"shopbot/internal/service"
	"shopbot/internal/store"
	"shopbot/internal/telegram"
	"shopbot/internal/util"
	"shopbot/internal/worker"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		panic(err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	tp, err := util.InitTracer("shopbot", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	cache, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Payment.PendingTTL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	tg, err := telegram.NewClient(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("failed to connect to telegram", zap.Error(err))
	}
	logger.Info("telegram connected", zap.String("username", tg.Username()))

	var producer *broker.Producer
	var consumer *broker.Consumer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		consumer = broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		defer consumer.Close()
	} else {
		logger.Info("kafka disabled, events are dropped and broadcasts run in-process")
	}
	events := broker.NewPublisher(producer)

	catalogSvc := service.NewCatalogService(db)
	cartSvc := service.NewCartService(db)
	checkoutSvc := service.NewCheckoutService(db, cache, tg, events, cfg.Payment.Currency, cfg.Payment.ProviderToken)
	orderSvc := service.NewOrderService(db)
	userSvc := service.NewUserService(db)
	broadcastSvc := service.NewBroadcastService(db, tg, events,
		cfg.Broadcast.RatePerSecond, cfg.Broadcast.Burst, !cfg.Kafka.Enabled)

	accessGate := gate.New(db, tg, cfg.Telegram.AdminIDs)

	shop := bot.New(tg, accessGate, catalogSvc, cartSvc, checkoutSvc, orderSvc, userSvc,
		broadcastSvc, cfg.Telegram.AdminIDs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go shop.Run(ctx, cfg.Telegram.PollTimeout)

	if consumer != nil {
		w := worker.New(consumer, broadcastSvc)
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker stopped", zap.Error(err))
			}
		}()
	}

	handler := api.NewHandler(db, cache)
	server := &http.Server{
		Addr:    ":" + cfg.Server.OpsPort,
		Handler: handler.Router(cfg.Server.Env),
	}
	go func() {
		logger.Info("ops server listening", zap.String("port", cfg.Server.OpsPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}
	logger.Info("goodbye")
}
