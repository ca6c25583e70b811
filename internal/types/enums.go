package types

import "strings"

// ChannelType identifies a reminder delivery channel.
type ChannelType string

const (
	ChannelSTB     ChannelType = "stb"
	ChannelSMS     ChannelType = "sms"
	ChannelChatBot ChannelType = "chatbot"
	ChannelEmail   ChannelType = "email"
)

// AllChannels lists every channel in dispatch order.
var AllChannels = []ChannelType{ChannelSTB, ChannelSMS, ChannelChatBot, ChannelEmail}

// Valid reports whether c is a known channel.
func (c ChannelType) Valid() bool {
	switch c {
	case ChannelSTB, ChannelSMS, ChannelChatBot, ChannelEmail:
		return true
	}
	return false
}

// ParseChannels decodes a stored comma-separated channel list. Blank
// entries are dropped; unknown names are kept so validation can report them.
func ParseChannels(raw string) []ChannelType {
	var out []ChannelType
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		out = append(out, ChannelType(part))
	}
	return out
}

// JoinChannels renders a channel list in its stored form.
func JoinChannels(chs []ChannelType) string {
	parts := make([]string, len(chs))
	for i, ch := range chs {
		parts[i] = string(ch)
	}
	return strings.Join(parts, ",")
}

// Outcome is the result of evaluating one (device, expiry date, stage) triple
// during a sweep. Only sent and failed are ever persisted to the ledger.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// StageMode selects how a tenant's notification stages are derived.
type StageMode string

const (
	// StageModeSingle uses one configurable day offset.
	StageModeSingle StageMode = "single"
	// StageModeLadder uses the fixed 7/3/1/0 ladder.
	StageModeLadder StageMode = "ladder"
)

// JobStatus values written to job_history.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
	JobStatusSkipped = "skipped"
)
