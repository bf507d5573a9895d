package main

import (
	"log"
	"time"

	"go.uber.org/zap"

	"posagent/internal/classifier"
	"posagent/internal/config"
	"posagent/internal/forwarder"
	"posagent/internal/handler"
	"posagent/internal/httpserver"
	"posagent/internal/intent"
	"posagent/internal/repository"
	"posagent/internal/service"
	"posagent/internal/util"
	"posagent/pkg/db"
	"posagent/pkg/logger"
	"posagent/pkg/mq"
	"posagent/pkg/redis"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog := logger.NewLogger()
	defer zlog.Sync()

	loc, err := time.LoadLocation(cfg.Classifier.Timezone)
	if err != nil {
		zlog.Fatal("Invalid timezone", zap.String("timezone", cfg.Classifier.Timezone), zap.Error(err))
	}

	// Core collaborators.
	classifierClient := classifier.NewClient(cfg.Classifier, loc, zlog)
	normalizer := intent.NewNormalizer(cfg.Agent.SourceTag, cfg.Agent.FallbackEmail, loc, zlog)
	recordStore := repository.NewRecordStore(cfg.Store, zlog)
	fwd := forwarder.NewForwarder(cfg.Handlers, zlog)

	dispatcher := service.NewDispatcher(classifierClient, normalizer, recordStore, fwd, cfg.Agent, zlog)

	// Optional collaborators: each logs a warning and stays off on failure.
	var dbPool *pgxpool.Pool
	if cfg.AuditEnabled() {
		dbPool, err = db.NewConnection(cfg.DB, zlog)
		if err != nil {
			zlog.Warn("Audit journal disabled: DB connection failed", zap.Error(err))
			dbPool = nil
		} else {
			defer dbPool.Close()
			dispatcher.WithAudit(repository.NewAuditRepository(dbPool, zlog))
		}
	}

	if cfg.DedupEnabled() {
		rdb := redis.NewRedisClient(cfg.Redis)
		dispatcher.WithDeduper(util.NewDeduper(rdb, cfg.Agent.DedupTTL(), zlog))
	}

	var publisher *mq.Publisher
	if cfg.EventsEnabled() {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			zlog.Warn("Event publishing disabled: MQ connection failed", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
			dispatcher.WithPublisher(publisher)
		}
	}

	routeHandler := handler.NewRouteHandler(dispatcher)
	router := httpserver.NewRouter(routeHandler, cfg.JWT.Secret, dbPool, publisher)

	zlog.Info("Starting parent agent",
		zap.String("port", cfg.Server.Port),
		zap.String("model", cfg.Classifier.Model),
		zap.Bool("audit", dbPool != nil),
		zap.Bool("events", publisher != nil),
		zap.Bool("auth", cfg.AuthEnabled()),
	)
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatalf("server start failed: %v", err)
	}
}
