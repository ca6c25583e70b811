package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"iptvpanel/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SweepSummary is the message body published after each sweep for
// downstream consumers (billing dashboards, operator alerts).
type SweepSummary struct {
	SweepID         string                               `json:"sweep_id"`
	Today           string                               `json:"today"`
	DryRun          bool                                 `json:"dry_run,omitempty"`
	Totals          types.Counters                       `json:"totals"`
	ByChannel       map[types.ChannelType]types.Counters `json:"by_channel"`
	ConfigErrors    int                                  `json:"config_errors"`
	SelectionErrors int                                  `json:"selection_errors"`
	DurationMS      int64                                `json:"duration_ms"`
}

// SummaryFromReport flattens a report into its published form.
func SummaryFromReport(r *types.SweepReport) SweepSummary {
	return SweepSummary{
		SweepID:         r.SweepID,
		Today:           r.Today.Format(types.DateLayout),
		DryRun:          r.DryRun,
		Totals:          r.Totals,
		ByChannel:       r.ByChannel,
		ConfigErrors:    r.ConfigErrors,
		SelectionErrors: r.SelectionErrors,
		DurationMS:      r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
}

// SummaryPublisher sends one SweepSummary per sweep to an SQS queue.
type SummaryPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewSummaryPublisher creates a SummaryPublisher targeting queueURL.
func NewSummaryPublisher(client SQSSender, queueURL string, logger types.Logger) *SummaryPublisher {
	return &SummaryPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish serializes the report summary and sends it with the sweep id as a
// message attribute so consumers can deduplicate replays.
func (p *SummaryPublisher) Publish(ctx context.Context, report *types.SweepReport) error {
	if report == nil {
		return fmt.Errorf("summary publisher: report is nil")
	}

	body, err := json.Marshal(SummaryFromReport(report))
	if err != nil {
		return fmt.Errorf("summary publisher: failed to marshal summary: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"SweepID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(report.SweepID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("summary publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("sweep summary published",
		"sweep_id", report.SweepID,
		"sent", report.Totals.Sent,
		"failed", report.Totals.Failed,
		"skipped", report.Totals.Skipped,
	)
	return nil
}
