package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	config "github.com/davicafu/triplab/internal/config"
	failedApp "github.com/davicafu/triplab/internal/failedevent/application"
	failedEvents "github.com/davicafu/triplab/internal/failedevent/infra/inbound/events"
	failedHttp "github.com/davicafu/triplab/internal/failedevent/infra/inbound/http"
	failedRepo "github.com/davicafu/triplab/internal/failedevent/infra/outbound/db/postgre"
	outboxPostgres "github.com/davicafu/triplab/internal/infra/db/postgres"
	infraEvents "github.com/davicafu/triplab/internal/infra/events"
	sharedInfraEvents "github.com/davicafu/triplab/internal/shared/infra/events"
	"github.com/davicafu/triplab/internal/shared/infra/relayer"
	tripApp "github.com/davicafu/triplab/internal/trip/application"
	tripDomain "github.com/davicafu/triplab/internal/trip/domain"
	tripEvents "github.com/davicafu/triplab/internal/trip/infra/inbound/events"
	tripHttp "github.com/davicafu/triplab/internal/trip/infra/inbound/http"
	tripAnalytics "github.com/davicafu/triplab/internal/trip/infra/outbound/analytics/clickhouse"
	tripCache "github.com/davicafu/triplab/internal/trip/infra/outbound/cache"
	tripClients "github.com/davicafu/triplab/internal/trip/infra/outbound/clients"
	tripRepo "github.com/davicafu/triplab/internal/trip/infra/outbound/db/postgre"

	"github.com/davicafu/triplab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const consumerGroup = "trip-service-group"

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// ---------------- DB ----------------
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to open Postgres", zap.Error(err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping Postgres", zap.Error(err))
	}
	if err := tripRepo.InitPostgres(db); err != nil {
		log.Fatal("failed to initialize trips schema", zap.Error(err))
	}
	if err := outboxPostgres.InitOutbox(db); err != nil {
		log.Fatal("failed to initialize outbox schema", zap.Error(err))
	}
	if err := failedRepo.InitFailedEvents(db); err != nil {
		log.Fatal("failed to initialize failed events schema", zap.Error(err))
	}

	tripRepoPostgres := tripRepo.NewTripRepoPostgres(db)
	outboxRepoPostgres := outboxPostgres.NewOutboxRepoPostgres(db)
	failedEventRepo := failedRepo.NewFailedEventRepoPostgres(db)

	// ---------------- Cache ----------------
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, el relay de ubicaciones quedará mudo hasta que vuelva", zap.Error(err))
	} else {
		log.Info("✅ Redis conectado")
	}
	cache := tripCache.NewTripRedisCache(rdb)

	// ---------------- Colaboradores ----------------
	geocoder := tripClients.NewGeocoderClient(cfg.GeocoderURL, cfg.ClientTimeout, log)
	userClient := tripClients.NewUserServiceClient(cfg.UserServiceURL, cfg.ClientTimeout, log)
	driverClient := tripClients.NewDriverServiceClient(cfg.DriverServiceURL, cfg.ClientTimeout, log)

	// --------------- Servicios --------------
	tripService := tripApp.NewTripService(
		tripRepoPostgres, cache, geocoder, userClient, driverClient,
		cfg.CommandAttempts, cfg.CommandBackoff, cfg.DriverTripTTL, log,
	)

	// ---------------- Kafka ----------------
	// Writer genérico: el topic va en cada mensaje, lo comparten el relay de
	// outbox, el envío a la DLT y el replay de dead letters.
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.KafkaBrokers,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	publisher := sharedInfraEvents.NewKafkaPublisher(writer, log)

	replayService := failedApp.NewReplayService(failedEventRepo, publisher, cfg.ReplayChunk, log)

	// ------------ Outbox Relay ------------
	outboxWorker := relayer.NewOutboxWorker(
		outboxRepoPostgres, publisher,
		cfg.RelayInterval, cfg.RelayBatch, cfg.PublishWorkers, log,
	)
	relayDone := make(chan struct{})
	go func() {
		outboxWorker.Start(ctx) // retorna tras drenar el pool de publicación
		close(relayDone)
	}()
	go outboxWorker.StartRescue(ctx, cfg.RescueInterval, cfg.StuckAfter)
	go outboxWorker.StartRetention(ctx, cfg.RetentionInterval, cfg.RetentionKeep)

	// ------------ Consumidores ------------
	tripConsumer := tripEvents.NewTripConsumer(tripService, log)

	for _, topic := range []string{tripDomain.MatchingTopic, tripDomain.PaymentTopic} {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    topic,
			GroupID:  consumerGroup,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
		defer reader.Close()

		adapter := infraEvents.NewConsumerAdapter(
			reader, tripConsumer, writer,
			cfg.ConsumerAttempts, cfg.ConsumerBackoff, log,
		)
		adapter.Start(ctx)
	}

	// Telemetría de conductores: consumidor propio, lossy y por lotes.
	var locationSink tripEvents.LocationSink
	if cfg.ClickHouseAddr != "" {
		sink, err := tripAnalytics.NewLocationAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, sin histórico de ubicaciones", zap.Error(err))
		} else {
			locationSink = sink
			log.Info("✅ ClickHouse conectado, histórico de ubicaciones habilitado")
		}
	}

	locationReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    tripDomain.DriverLocationTopic,
		GroupID:  consumerGroup + ".location",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer locationReader.Close()

	locationConsumer := tripEvents.NewLocationConsumer(
		locationReader, tripService, locationSink,
		cfg.LocationBatchSize, cfg.LocationFlushEvery, log,
	)
	locationConsumer.Start(ctx)

	// Archivo de dead letters de los topics de entrada.
	dltReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupTopics: []string{
			tripDomain.MatchingTopic + infraEvents.DltSuffix,
			tripDomain.PaymentTopic + infraEvents.DltSuffix,
		},
		GroupID:  consumerGroup + ".dlt",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer dltReader.Close()

	dltConsumer := failedEvents.NewDltConsumer(dltReader, failedEventRepo, log)
	dltConsumer.Start(ctx)

	// ---------------- HTTP ----------------
	tripHandler := tripHttp.NewTripHandler(tripService, log)
	adminHandler := failedHttp.NewAdminHandler(replayService, log)

	router := gin.Default()
	tripHttp.RegisterTripRoutes(router, tripHandler)
	failedHttp.RegisterAdminRoutes(router, adminHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info("🚀 Server running",
			zap.String("url", "http://localhost:"+cfg.HTTPPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Señal de apagado recibida, cerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during HTTP shutdown", zap.Error(err))
	}

	// El drenaje del relay ya está acotado por su propio plazo interno.
	<-relayDone
	log.Info("✅ Apagado completo.")
}
