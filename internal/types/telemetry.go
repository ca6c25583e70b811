package types

// Telemetry metric names for CloudWatch.
const (
	MetricReminderOutcome  = "ReminderOutcome"
	MetricDeliveryAttempt  = "DeliveryAttempt"
	MetricSweepDuration    = "SweepDuration"
	MetricSweepConfigError = "SweepConfigError"
	MetricSweepSelectError = "SweepSelectError"

	DimChannel = "Channel"
	DimResult  = "Result"
	DimStage   = "Stage"

	MetricNamespace = "IPTVPanel/Reminders"
)
