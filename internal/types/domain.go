package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date format used for expiry dates in
// stores, payloads and lock ids.
const DateLayout = "2006-01-02"

// Device is one billed subscriber device as seen by the reminder engine.
// ID is the store's row id and may be reissued by the nightly resync;
// HardwareID is stable and is the only key the ledger relies on.
type Device struct {
	ID         int64     `json:"id"`
	HardwareID string    `json:"hardware_id"`
	TenantID   string    `json:"tenant_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone,omitempty"`
	ChatHandle string    `json:"chat_handle,omitempty"`
	Email      string    `json:"email,omitempty"`
	ExpiresOn  time.Time `json:"expires_on"`
	Active     bool      `json:"active"`
}

// Recipient returns the address the given channel should deliver to, or an
// empty string if the device has none on file.
func (d Device) Recipient(ch ChannelType) string {
	switch ch {
	case ChannelSTB:
		return d.HardwareID
	case ChannelSMS:
		return strings.TrimSpace(d.Phone)
	case ChannelChatBot:
		return strings.TrimSpace(d.ChatHandle)
	case ChannelEmail:
		return strings.TrimSpace(d.Email)
	}
	return ""
}

// Tenant is a reseller account owning devices and a reminder configuration.
type Tenant struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Stage is a reminder day offset. Zero is the terminal "expired" stage.
type Stage int

// ExpiredStage is the terminal stage sent once a device has been deactivated.
const ExpiredStage Stage = 0

// LadderStages is the fixed four-step reminder ladder.
var LadderStages = []Stage{7, 3, 1, ExpiredStage}

// IsExpired reports whether s is the terminal stage.
func (s Stage) IsExpired() bool { return s == ExpiredStage }

// String renders the stage for logs and metric dimensions.
func (s Stage) String() string {
	if s.IsExpired() {
		return "expired"
	}
	return fmt.Sprintf("%dd", int(s))
}

// TemplateKey addresses a message template for a stage and, optionally, a
// channel. An empty Channel is the stage-wide default.
type TemplateKey struct {
	Stage   Stage
	Channel ChannelType
}

// ReminderConfig is a tenant's automatic reminder configuration.
type ReminderConfig struct {
	TenantID         string                 `json:"tenant_id" validate:"required"`
	Enabled          bool                   `json:"enabled"`
	Mode             StageMode              `json:"mode" validate:"required,oneof=single ladder"`
	SingleOffsetDays int                    `json:"single_offset_days" validate:"gte=0,lte=365"`
	Channels         []ChannelType          `json:"channels" validate:"required,min=1,dive,oneof=stb sms chatbot email"`
	DefaultTemplate  string                 `json:"default_template"`
	EmailSubject     string                 `json:"email_subject"`
	Templates        map[TemplateKey]string `json:"-"`
	LastSweepAt      *time.Time             `json:"last_sweep_at,omitempty"`
}

// Stages returns the notification stages for this configuration in the order
// they are evaluated.
func (c ReminderConfig) Stages() []Stage {
	if c.Mode == StageModeSingle {
		return []Stage{Stage(c.SingleOffsetDays)}
	}
	out := make([]Stage, len(LadderStages))
	copy(out, LadderStages)
	return out
}

// Template resolves the message template for a stage and channel. Lookup
// order: exact (stage, channel), stage default, configuration default.
// Blank templates are treated as unset.
func (c ReminderConfig) Template(stage Stage, ch ChannelType) string {
	if t := c.Templates[TemplateKey{Stage: stage, Channel: ch}]; strings.TrimSpace(t) != "" {
		return t
	}
	if t := c.Templates[TemplateKey{Stage: stage}]; strings.TrimSpace(t) != "" {
		return t
	}
	return c.DefaultTemplate
}

// TenantReminder pairs a tenant with its reminder configuration, as loaded at
// sweep start.
type TenantReminder struct {
	Tenant Tenant
	Config ReminderConfig
}

// ChannelResult summarizes one channel's delivery for the ledger audit trail.
type ChannelResult struct {
	Channel   ChannelType `json:"channel"`
	Delivered bool        `json:"delivered"`
	Reference string      `json:"reference,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// LedgerEntry is the deduplication record for one notification attempt.
// The store enforces uniqueness on (HardwareID, ExpiryDate, Stage).
type LedgerEntry struct {
	ID          string          `json:"id"`
	HardwareID  string          `json:"hardware_id"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	Stage       Stage           `json:"stage"`
	TenantID    string          `json:"tenant_id"`
	AttemptedAt time.Time       `json:"attempted_at"`
	Outcome     Outcome         `json:"outcome"`
	Message     string          `json:"message"`
	Error       string          `json:"error,omitempty"`
	Channels    []ChannelResult `json:"channels,omitempty"`
}

// Counters tallies sweep outcomes.
type Counters struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add increments the counter matching outcome.
func (c *Counters) Add(o Outcome) {
	switch o {
	case OutcomeSent:
		c.Sent++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Total returns the number of evaluated candidates.
func (c Counters) Total() int { return c.Sent + c.Skipped + c.Failed }

// TenantReport is the per-tenant slice of a sweep report.
type TenantReport struct {
	TenantID    string   `json:"tenant_id"`
	Counters    Counters `json:"counters"`
	ConfigError string   `json:"config_error,omitempty"`
	SelectError string   `json:"select_error,omitempty"`
}

// SweepReport is the operator-facing summary of one sweep.
type SweepReport struct {
	SweepID         string                   `json:"sweep_id"`
	Today           time.Time                `json:"today"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
	DryRun          bool                     `json:"dry_run,omitempty"`
	Totals          Counters                 `json:"totals"`
	ByChannel       map[ChannelType]Counters `json:"by_channel"`
	Tenants         []TenantReport           `json:"tenants"`
	ConfigErrors    int                      `json:"config_errors"`
	SelectionErrors int                      `json:"selection_errors"`
}

// DateOf truncates t to its calendar date in t's location and returns it as
// midnight UTC so dates from different zones compare by value.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, NewAppError(ErrCodeValidationInvalidDate, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s), err)
	}
	return t, nil
}
