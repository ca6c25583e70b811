package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"iptvpanel/internal/types"
)

// PortalClientConfig holds the configuration for one STB middleware portal.
type PortalClientConfig struct {
	BaseURL  string
	Username string
	Password string
}

// StalkerPortalClient implements PortalClient against a Ministra/Stalker
// style REST API:
//
//	POST {base}/send_event/{mac}
//	Content-Type: application/x-www-form-urlencoded
//	event=send_msg&msg=...
//
// The portal answers 200 with {"status":"OK","results":...} on success and
// {"status":"ERROR","error":"..."} otherwise.
type StalkerPortalClient struct {
	base     *BaseClient
	baseURL  string
	username string
	password string
}

// NewStalkerPortalClient creates a portal client with its own breaker named
// after the portal host.
func NewStalkerPortalClient(httpClient *http.Client, cfg PortalClientConfig) *StalkerPortalClient {
	name := "stb-portal"
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		name += ":" + u.Host
	}
	base := NewBaseClient(httpClient, name, DefaultRetryPolicy(), userAgent,
		WithUpstreamCode(types.ErrCodeUpstreamPortal))
	return NewStalkerPortalClientWithBase(base, cfg)
}

// NewStalkerPortalClientWithBase creates a portal client with a
// pre-configured BaseClient.
func NewStalkerPortalClientWithBase(base *BaseClient, cfg PortalClientConfig) *StalkerPortalClient {
	return &StalkerPortalClient{
		base:     base,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}
}

type portalResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SendMessage posts a send_msg event for the box. Only an explicit
// status "OK" counts as delivered.
func (p *StalkerPortalClient) SendMessage(ctx context.Context, mac, text string) (string, error) {
	form := url.Values{}
	form.Set("event", "send_msg")
	form.Set("msg", text)

	reqURL := p.baseURL + "/send_event/" + url.PathEscape(mac)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create portal request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPortal, "failed to read portal response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", types.NewAppError(types.ErrCodeUpstreamPortal,
			fmt.Sprintf("portal rejected credentials (%d)", resp.StatusCode), nil)
	}

	var pr portalResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamBadResponse,
			fmt.Sprintf("portal returned %d with unparseable body: %s", resp.StatusCode, truncate(string(body), 200)), err)
	}
	if !strings.EqualFold(pr.Status, "OK") {
		msg := pr.Error
		if msg == "" {
			msg = fmt.Sprintf("status %q", pr.Status)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamPortal,
			fmt.Sprintf("portal refused message (%d): %s", resp.StatusCode, msg), nil)
	}

	ack := strings.Trim(string(pr.Results), `"`)
	if ack == "" || ack == "null" {
		ack = "OK"
	}
	return ack, nil
}

var _ PortalClient = (*StalkerPortalClient)(nil)
