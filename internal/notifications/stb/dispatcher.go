// Package stb delivers reminders as on-screen messages to set-top boxes
// through one or two middleware portals.
//
// In dual-server mode both portals are called concurrently for every box.
// A box is usually registered on only one of them, so a single rejection is
// expected and only logged; the send fails only when every portal fails.
package stb

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"iptvpanel/internal/external"
	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

// Portal is a named middleware endpoint.
type Portal struct {
	Name   string
	Client external.PortalClient
}

// Dispatcher implements core.Dispatcher for the stb channel.
type Dispatcher struct {
	portals []Portal
	logger  types.Logger
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates an stb dispatcher. At least one portal is required;
// portals with a nil client are ignored so an unset secondary can be passed
// through unconditionally.
func NewDispatcher(logger types.Logger, portals ...Portal) (*Dispatcher, error) {
	var live []Portal
	for _, p := range portals {
		if p.Client != nil {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("stb dispatcher: at least one portal is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("stb dispatcher: logger is nil")
	}
	return &Dispatcher{portals: live, logger: logger}, nil
}

// Channel returns types.ChannelSTB.
func (d *Dispatcher) Channel() types.ChannelType { return types.ChannelSTB }

// Send pushes the message to every portal and succeeds if any acknowledges.
func (d *Dispatcher) Send(ctx context.Context, to core.Recipient, msg core.Message) core.Result {
	mac := types.NormalizeHardwareID(to.Address)
	if mac == "" {
		return core.Failure(core.ErrRecipientMissing)
	}

	acks := make([]string, len(d.portals))
	errs := make([]error, len(d.portals))

	// Plain Group: one portal failing must not cancel the other.
	var g errgroup.Group
	for i, p := range d.portals {
		g.Go(func() error {
			acks[i], errs[i] = p.Client.SendMessage(ctx, mac, msg.Body)
			return nil
		})
	}
	_ = g.Wait()

	var refs, failures []string
	for i, p := range d.portals {
		if errs[i] != nil {
			failures = append(failures, p.Name+": "+core.FailureFromError(errs[i]).Message())
			continue
		}
		refs = append(refs, p.Name+":"+acks[i])
		d.logger.Info("stb portal accepted message",
			"portal", p.Name,
			"hardware_id", mac,
			"ack", acks[i],
		)
	}

	if len(refs) == 0 {
		return core.Failure(strings.Join(failures, "; "))
	}
	for _, f := range failures {
		d.logger.Warn("stb portal rejected message",
			"hardware_id", mac,
			"error", f,
		)
	}
	return core.Success(strings.Join(refs, ","))
}
