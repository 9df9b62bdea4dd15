package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	internalaws "deliveryflow/internal/aws"
)

// MetricsSink is the slice of the metrics emitter the processor needs.
type MetricsSink interface {
	PutDeliveryCompleted(ctx context.Context, driverID string, amount float64, minutes float64, at time.Time) error
}

// Processor consumes delivery-completed events and turns them into metrics.
type Processor struct {
	metrics MetricsSink
	log     *logrus.Entry
}

// NewProcessor creates a worker processor.
func NewProcessor(metrics MetricsSink, log *logrus.Entry) *Processor {
	return &Processor{metrics: metrics, log: log}
}

// Handle receives an SQS batch event and processes each message. Returning
// an error lets the Lambda runtime retry; repeated failures land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.WithError(err).Error("worker error")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev internalaws.DeliveryCompletedEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.OrderID == "" {
		return fmt.Errorf("message without order_id: %s", rec.Body)
	}

	at := ev.CompletedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if err := p.metrics.PutDeliveryCompleted(ctx, ev.DriverID, ev.Amount, float64(ev.DeliveryMinutes), at); err != nil {
		return fmt.Errorf("emit metrics for order %s: %w", ev.OrderID, err)
	}

	p.log.WithFields(logrus.Fields{
		"order":   ev.OrderID,
		"driver":  ev.DriverID,
		"amount":  ev.Amount,
		"minutes": ev.DeliveryMinutes,
	}).Info("delivery recorded")
	return nil
}
