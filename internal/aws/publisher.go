package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// DeliveryCompletedEvent is published after a collection closes out an order.
// The worker consumes it to emit delivery metrics.
type DeliveryCompletedEvent struct {
	OrderID         string    `json:"order_id"`
	DriverID        string    `json:"driver_id"`
	PaymentID       string    `json:"payment_id"`
	Amount          float64   `json:"amount"`
	Commission      float64   `json:"commission"`
	DeliveryMinutes int       `json:"delivery_minutes"`
	CompletedAt     time.Time `json:"completed_at"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// SendDeliveryCompleted publishes the event as a JSON message with the order
// and driver ids mirrored into message attributes for filtering.
func (p *Publisher) SendDeliveryCompleted(ctx context.Context, ev DeliveryCompletedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msgBody := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &msgBody,
	}

	attrs := map[string]string{
		"order_id":  ev.OrderID,
		"driver_id": ev.DriverID,
	}
	if ev.CorrelationID != "" {
		attrs["correlation_id"] = ev.CorrelationID
	}
	msgAttrs := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range attrs {
		v := v
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: &v,
		}
	}
	input.MessageAttributes = msgAttrs

	_, err = p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
