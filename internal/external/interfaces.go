package external

import "context"

// PortalClient pushes on-screen messages to set-top boxes through one
// middleware portal.
type PortalClient interface {
	// SendMessage delivers text to the box identified by mac. It returns the
	// portal's acknowledgement on success.
	SendMessage(ctx context.Context, mac, text string) (string, error)
}

// SMSGateway submits text messages through a batch SMS API.
type SMSGateway interface {
	// SendBatch submits one body to every recipient and returns the
	// provider's batch id.
	SendBatch(ctx context.Context, to []string, body string) (batchID string, err error)
}
