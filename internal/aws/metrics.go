package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics emits delivery metrics to CloudWatch under a single namespace.
type Metrics struct {
	CW        CloudWatchAPI
	Namespace string
}

// NewMetrics returns a Metrics emitter.
func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CW: cw, Namespace: namespace}
}

// PutDeliveryCompleted records one completed delivery: a count, the cash
// collected, and the delivery duration, dimensioned by driver.
func (m *Metrics) PutDeliveryCompleted(ctx context.Context, driverID string, amount float64, minutes float64, at time.Time) error {
	dim := cwtypes.Dimension{Name: awsString("Driver"), Value: &driverID}

	data := []cwtypes.MetricDatum{
		{
			MetricName: awsString("DeliveriesCompleted"),
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(1),
			Timestamp:  &at,
			Dimensions: []cwtypes.Dimension{dim},
		},
		{
			MetricName: awsString("CashCollected"),
			Unit:       cwtypes.StandardUnitNone,
			Value:      &amount,
			Timestamp:  &at,
			Dimensions: []cwtypes.Dimension{dim},
		},
		{
			MetricName: awsString("DeliveryMinutes"),
			Unit:       cwtypes.StandardUnitNone,
			Value:      &minutes,
			Timestamp:  &at,
			Dimensions: []cwtypes.Dimension{dim},
		},
	}

	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func awsFloat(f float64) *float64 { return &f }
