package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/aws"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/config"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/handlers"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/metrics"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/store/dynamo"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/store/memory"
	"go.uber.org/zap"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.PrometheusMiddleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	handlers.RegisterRoutes(r, cfg)

	return r
}

// buildHandlerConfig wires the store backend, event publisher and
// idempotency records selected by cfg.
func buildHandlerConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (handlers.HandlerConfig, error) {
	opts := fulfillment.Options{
		DefaultCurrency:  cfg.DefaultCurrency,
		OperationTimeout: cfg.OperationTimeout,
		LockTTL:          cfg.LockTTL,
		AllowBackorder:   cfg.AllowBackorder,
	}

	if cfg.StoreBackend == config.BackendMemory {
		logger.Info("using in-memory store")
		svc := fulfillment.NewService(memory.New(), nil, logger, opts)
		return handlers.HandlerConfig{
			Service:     svc,
			Idempotency: idempotency.NewMemoryStore(cfg.IdempotencyTTL),
			Logger:      logger,
		}, nil
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		return handlers.HandlerConfig{}, err
	}

	store := dynamo.NewStore(clients.DynamoDB, dynamo.Tables{
		Drafts:    cfg.DraftsTable,
		Orders:    cfg.OrdersTable,
		Inventory: cfg.InventoryTable,
		Bills:     cfg.BillsTable,
		Payments:  cfg.PaymentsTable,
		Locks:     cfg.LocksTable,
	}, logger)

	var publisher fulfillment.EventPublisher
	if cfg.EventsQueueURL != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
	} else {
		logger.Warn("EVENTS_QUEUE_URL not set, lifecycle events are dropped")
	}

	return handlers.HandlerConfig{
		Service:     fulfillment.NewService(store, publisher, logger, opts),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Logger:      logger,
	}, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	hcfg, err := buildHandlerConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to init dependencies", zap.Error(err))
	}

	r := setupRouter(hcfg)

	// if RUN_LOCAL is set to "true", run a local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr), zap.String("backend", cfg.StoreBackend))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
