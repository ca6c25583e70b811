package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"iptvpanel/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSweepMetrics implements SweepMetrics by emitting to CloudWatch.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Channel, Result} on every channel send
//   - ReminderOutcome: Dims {Stage, Result} on every evaluated candidate
//   - SweepDuration, SweepConfigError, SweepSelectError: once per sweep
//
// Publishing failures are logged and never surface to the sweep.
type CloudWatchSweepMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ SweepMetrics = (*CloudWatchSweepMetrics)(nil)

// NewCloudWatchSweepMetrics creates a CloudWatchSweepMetrics publishing to
// the reminder namespace.
func NewCloudWatchSweepMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchSweepMetrics {
	return &CloudWatchSweepMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt count with Channel and Result dimensions.
func (m *CloudWatchSweepMetrics) RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimChannel), Value: aws.String(string(channel))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
		},
	})
}

// RecordOutcome emits a ReminderOutcome count with Stage and Result dimensions.
func (m *CloudWatchSweepMetrics) RecordOutcome(ctx context.Context, stage types.Stage, outcome types.Outcome) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricReminderOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimStage), Value: aws.String(stage.String())},
			{Name: aws.String(types.DimResult), Value: aws.String(string(ResultOf(outcome)))},
		},
	})
}

// RecordSweep emits the per-sweep duration and error counts in one call.
// Duration is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchSweepMetrics) RecordSweep(ctx context.Context, report *types.SweepReport, duration time.Duration) {
	if report == nil {
		return
	}
	m.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricSweepDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricSweepConfigError),
			Value:      aws.Float64(float64(report.ConfigErrors)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricSweepSelectError),
			Value:      aws.Float64(float64(report.SelectionErrors)),
			Unit:       cwtypes.StandardUnitCount,
		},
	)
}

func (m *CloudWatchSweepMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to put sweep metric",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}
