package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"iptvpanel/internal/types"
)

// SMSGatewayConfig holds the configuration for the batch SMS API.
type SMSGatewayConfig struct {
	BaseURL string
	Token   string
	Sender  string
}

// BatchSMSClient implements SMSGateway against a REST batch API:
//
//	POST {base}/batches
//	Authorization: Bearer <token>
//	{"from": "...", "to": ["..."], "body": "..."}
//
// A 200/201 response carries {"id": "<batch id>"}.
type BatchSMSClient struct {
	base    *BaseClient
	baseURL string
	token   string
	sender  string
}

// NewBatchSMSClient creates an SMS gateway client.
func NewBatchSMSClient(httpClient *http.Client, cfg SMSGatewayConfig) *BatchSMSClient {
	base := NewBaseClient(httpClient, "sms-gateway", DefaultRetryPolicy(), userAgent,
		WithUpstreamCode(types.ErrCodeUpstreamSMSGateway))
	return NewBatchSMSClientWithBase(base, cfg)
}

// NewBatchSMSClientWithBase creates an SMS gateway client with a
// pre-configured BaseClient.
func NewBatchSMSClientWithBase(base *BaseClient, cfg SMSGatewayConfig) *BatchSMSClient {
	return &BatchSMSClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		sender:  cfg.Sender,
	}
}

type smsBatchRequest struct {
	From string   `json:"from"`
	To   []string `json:"to"`
	Body string   `json:"body"`
}

type smsBatchResponse struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
	Code string `json:"code,omitempty"`
}

// SendBatch submits body to every recipient in one batch.
func (c *BatchSMSClient) SendBatch(ctx context.Context, to []string, body string) (string, error) {
	if len(to) == 0 {
		return "", types.NewAppError(types.ErrCodeValidationRecipient, "sms batch has no recipients", nil)
	}

	payload, err := json.Marshal(smsBatchRequest{From: c.sender, To: to, Body: body})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal sms batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create sms batch request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMSGateway, "failed to read sms gateway response", err)
	}

	var sr smsBatchResponse
	_ = json.Unmarshal(raw, &sr)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := sr.Text
		if msg == "" {
			msg = truncate(string(raw), 200)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamSMSGateway,
			fmt.Sprintf("sms gateway returned %d: %s", resp.StatusCode, msg), nil)
	}
	if sr.ID == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamBadResponse, "sms gateway accepted batch without an id", nil)
	}
	return sr.ID, nil
}

var _ SMSGateway = (*BatchSMSClient)(nil)
