package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"deliveryflow/internal/aws"
	"deliveryflow/internal/backend"
	"deliveryflow/internal/collection"
	"deliveryflow/internal/config"
	"deliveryflow/internal/handlers"
	"deliveryflow/internal/idempotency"
	"deliveryflow/internal/logging"
	"deliveryflow/internal/orders"
	"deliveryflow/internal/refdata"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDeliveryRoutes(r, cfg)

	return r
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("configuration invalid")
	}

	logger := logging.New(cfg.LogLevel)
	log := logging.Component(logger, "api")

	client := backend.New(cfg.BackendURL)
	store := orders.NewStore(client, logging.Component(logger, "orders"))
	refs := refdata.NewCache(client, logging.Component(logger, "refdata"))
	poller := orders.NewPoller(cfg.PollInterval, logging.Component(logger, "poller"), store, refs)

	flowCfg := collection.Config{
		Orders:         store,
		Payments:       client,
		Tolerance:      cfg.AmountTolerance,
		CommissionRate: cfg.CommissionRate,
		Log:            logging.Component(logger, "collection"),
	}

	// AWS wiring is optional; without a table/queue the flow still runs with
	// its in-process guards only.
	if cfg.IdempotencyTable != "" || cfg.QueueURL != "" {
		clients, err := aws.NewAWSClients(context.Background())
		if err != nil {
			log.WithError(err).Fatal("failed to init aws clients")
		}
		if cfg.IdempotencyTable != "" {
			flowCfg.Records = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, 48*time.Hour)
		}
		if cfg.QueueURL != "" {
			flowCfg.Events = aws.NewPublisher(clients.SQS, cfg.QueueURL)
		}
	}

	flow := collection.New(flowCfg)

	router := setupRouter(handlers.HandlerConfig{
		Store:          store,
		Flow:           flow,
		Refs:           refs,
		Poller:         poller,
		CommissionRate: cfg.CommissionRate,
		Log:            log,
	})

	// The server holds one subscription for its whole lifetime; request
	// handlers read the snapshot, they never own timers.
	poller.Subscribe()
	defer poller.Unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
