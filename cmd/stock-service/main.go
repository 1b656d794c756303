package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clinicstock/clinicstock-backend/internal/stock/events"
	"github.com/clinicstock/clinicstock-backend/internal/stock/handler"
	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/config"
	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
	"github.com/clinicstock/clinicstock-backend/pkg/messaging"
)

const serviceName = "stock-service"

func main() {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// The broker is optional in development; publishers are nil-safe.
	var publisher *events.StockEventPublisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		if config.IsProductionLike() {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events disabled")
	} else {
		defer rmq.Close()
		publisher, err = events.NewStockEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	itemRepo := repository.NewItemRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	forecastRepo := repository.NewForecastRepository(db)

	catalog := service.NewCatalogReader(itemRepo)
	ledger := service.NewBatchLedger(db, itemRepo, batchRepo, usageRepo, publisher, cfg.Stock.LockTimeout, log)
	alerts := service.NewAlertEngine(itemRepo, batchRepo, cfg.Stock.ExpiryWindowDays, log)
	recorder := service.NewUsageRecorder(ledger, itemRepo, usageRepo, alerts, publisher, log)
	migrator := service.NewLegacyMigrator(db, itemRepo, batchRepo, publisher, cfg.Stock.MigrationPlaceholderYears, cfg.Stock.LockTimeout, log)
	forecaster := service.NewDemandForecaster(itemRepo, batchRepo, forecastRepo, log)

	itemHandler := handler.NewItemHandler(ledger, catalog, log)
	batchHandler := handler.NewBatchHandler(ledger, log)
	usageHandler := handler.NewUsageHandler(recorder, log)
	alertHandler := handler.NewAlertHandler(alerts, log)
	forecastHandler := handler.NewForecastHandler(forecaster, log)
	migrationHandler := handler.NewMigrationHandler(migrator, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Email"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.ServiceAuth(cfg.Auth.ServiceTokenSecret, log))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := map[string]interface{}{
			"service":  serviceName,
			"status":   "up",
			"database": db.Health(req.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Get("/items", itemHandler.List)
		r.Get("/items/{id}", itemHandler.Get)
		r.Get("/items/{id}/stock", itemHandler.CurrentStock)
		r.Get("/items/{id}/wastage", itemHandler.Wastage)

		r.Post("/items/{id}/batches", batchHandler.Create)
		r.Get("/items/{id}/batches", batchHandler.List)
		r.Delete("/batches/{id}", batchHandler.Delete)

		r.Post("/items/{id}/usage", usageHandler.Record)
		r.Get("/items/{id}/usage", usageHandler.History)

		r.Get("/alerts", alertHandler.Report)

		r.Get("/items/{id}/forecast", forecastHandler.Forecast)
		r.Put("/items/{id}/forecast-parameters", forecastHandler.SetParameters)
		r.Get("/items/{id}/forecast-parameters", forecastHandler.GetParameters)

		r.Post("/admin/migrate", migrationHandler.MigrateAll)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("stock service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("stock service stopped")
}
