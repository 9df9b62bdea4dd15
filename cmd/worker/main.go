package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	internalaws "deliveryflow/internal/aws"
	"deliveryflow/internal/config"
	"deliveryflow/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("configuration invalid")
	}
	logger := logging.New(cfg.LogLevel)
	log := logging.Component(logger, "worker")

	clients, err := internalaws.NewAWSClients(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to init aws clients")
	}

	p := NewProcessor(internalaws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace), log)

	// RUN_LOCAL simulates one SQS event for development without a Lambda
	// runtime.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"order_id":"local-order-1","driver_id":"local-driver","amount":150,"commission":15,"delivery_minutes":12,"completed_at":"2026-01-02T15:04:05Z"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.WithError(err).Fatal("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
