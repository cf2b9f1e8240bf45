package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	config "github.com/damian-zhang-1027/order-service/internal/config"
	orderApp "github.com/damian-zhang-1027/order-service/internal/order/application"
	orderEvents "github.com/damian-zhang-1027/order-service/internal/order/infra/inbound/events"
	orderHttp "github.com/damian-zhang-1027/order-service/internal/order/infra/inbound/http"
	orderAnalytics "github.com/damian-zhang-1027/order-service/internal/order/infra/outbound/analytics/clickhouse"
	orderProduct "github.com/damian-zhang-1027/order-service/internal/order/infra/outbound/product"
	infraEvents "github.com/damian-zhang-1027/order-service/internal/shared/infra/events"
	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
	sharedCache "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/cache"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/idgen"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/relayer"
	"github.com/damian-zhang-1027/order-service/pkg/logger"
)

// ---------------- Main ----------------
func main() {
	cfg := config.LoadConfig()

	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing.Setup()

	// ---------------- DB ----------------
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.close()

	// ---------------- Cache ----------------
	cacheInstance := buildCache(ctx, cfg, log)

	// ---------------- Ids ----------------
	ids, err := idgen.NewSnowflakeGenerator(cfg.SnowflakeNode)
	if err != nil {
		log.Fatal("failed to init id generator", zap.Error(err))
	}

	// --------------- Servicios --------------
	cacheTTLSecs := int(cfg.CacheTTL.Seconds())
	products := orderProduct.NewHTTPProductGateway(cfg.ProductServiceURL, nil, log)
	creationService := orderApp.NewOrderCreationService(store.orders, products, ids, orderApp.CreationConfig{
		LookupTimeout:     cfg.ProductLookupTimeout,
		LookupConcurrency: cfg.ProductLookupConcurrency,
	}, log)
	browseService := orderApp.NewOrderBrowseService(store.orders, cacheInstance, cacheTTLSecs, log)
	sagaService := orderApp.NewOrderSagaService(store.orders, cacheInstance, log)

	paymentConsumer := orderEvents.NewPaymentConsumer(sagaService, 5*time.Second, log)

	var projector *orderEvents.OutcomeProjector
	if cfg.ClickHouseAddr != "" {
		analytics, err := orderAnalytics.NewSalesAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, analítica deshabilitada", zap.Error(err))
		} else if err := analytics.InitSchema(ctx); err != nil {
			log.Warn("⚠️ No se pudo crear el esquema de analítica", zap.Error(err))
		} else {
			projector = orderEvents.NewOutcomeProjector(analytics, log)
			log.Info("📈 Proyección analítica en ClickHouse habilitada")
		}
	}

	// ---------------- Events ---------------
	var publisher sharedBus.EventBus

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos", zap.Strings("brokers", cfg.KafkaBrokers))

		// Sin Topic fijo: cada mensaje lleva el suyo (outbox y DLQ comparten writer).
		writer := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		defer writer.Close()

		publisher = infraEvents.NewKafkaPublisher(writer, cfg.KafkaOrdersTopic, log)

		policy := infraEvents.RetryPolicy{MaxAttempts: cfg.ConsumerMaxAttempts, Backoff: cfg.ConsumerRetryBackoff}
		for i := 0; i < max(cfg.ConsumerWorkers, 1); i++ {
			reader := newReader(cfg, cfg.KafkaPaymentsTopic, cfg.KafkaGroupID)
			defer reader.Close()

			infraEvents.NewConsumerAdapter(reader, paymentConsumer, log,
				infraEvents.WithDeadLetter(writer, cfg.KafkaDLQTopic),
				infraEvents.WithRetryPolicy(policy),
				infraEvents.WithName(fmt.Sprintf("payments-%d", i)),
			).Start(ctx)
		}

		if projector != nil {
			reader := newReader(cfg, cfg.KafkaOrdersTopic, cfg.KafkaGroupID+"-analytics")
			defer reader.Close()

			infraEvents.NewConsumerAdapter(reader, projector, log,
				infraEvents.WithDeadLetter(writer, cfg.KafkaOrdersTopic+".dlq"),
				infraEvents.WithRetryPolicy(policy),
				infraEvents.WithName("analytics"),
			).Start(ctx)
		}
	} else {
		log.Info("⚡️ Usando bus de eventos en memoria (canales de Go)")

		bus := infraEvents.NewInMemoryEventBus(cfg.KafkaOrdersTopic)
		publisher = bus

		// Un servicio de pagos local puede publicar PAYMENT_* en el mismo bus.
		infraEvents.BackgroundConsumerChan(ctx, bus.Subscribe(100), paymentConsumer, log)
		if projector != nil {
			infraEvents.BackgroundConsumerChan(ctx, bus.Subscribe(100), projector, log)
		}
	}

	// ------------ Outbox Worker ------------
	outboxWorker := relayer.NewOutboxWorker(store.outbox, publisher, cfg.OutboxPeriod, cfg.OutboxLimit, log)
	go outboxWorker.Start(ctx)

	// ---------------- HTTP ----------------
	router := gin.New()
	router.Use(gin.Recovery())
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(creationService, browseService, log), []byte(cfg.JWTSecret))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Apagando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildCache(ctx context.Context, cfg *config.Config, log *zap.Logger) sharedCache.Cache {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			log.Info("✅ Redis conectado, cache habilitado")
			return sharedCache.NewRedisCache(rdb, cfg.CacheTTL)
		}
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		_ = rdb.Close()
	}
	return sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
}

// newReader: CommitInterval 0 => CommitMessages es síncrono.
func newReader(cfg *config.Config, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
}
