package types

import "strings"

// Capabilities is the typed permission set of a tenant, resolved once per
// sweep from the panel's stored permission string.
type Capabilities struct {
	STBMessage     bool `json:"stb_message"`
	SMS            bool `json:"sms"`
	ChatBot        bool `json:"chatbot"`
	Email          bool `json:"email"`
	ViewAllDevices bool `json:"view_all_devices"`
	AutoReminders  bool `json:"auto_reminders"`
}

// permissionSlots is the position of each flag in the stored
// pipe-separated permission string, e.g. "1|1|0|0|0|1".
var permissionSlots = []func(*Capabilities) *bool{
	func(c *Capabilities) *bool { return &c.STBMessage },
	func(c *Capabilities) *bool { return &c.SMS },
	func(c *Capabilities) *bool { return &c.ChatBot },
	func(c *Capabilities) *bool { return &c.Email },
	func(c *Capabilities) *bool { return &c.ViewAllDevices },
	func(c *Capabilities) *bool { return &c.AutoReminders },
}

// ParseCapabilities decodes the stored permission string. Missing trailing
// slots and any value other than "1" decode as false.
func ParseCapabilities(raw string) Capabilities {
	var c Capabilities
	parts := strings.Split(strings.TrimSpace(raw), "|")
	for i, slot := range permissionSlots {
		if i >= len(parts) {
			break
		}
		*slot(&c) = strings.TrimSpace(parts[i]) == "1"
	}
	return c
}

// Encode renders the capability set back into the stored string form.
func (c Capabilities) Encode() string {
	parts := make([]string, len(permissionSlots))
	for i, slot := range permissionSlots {
		if *slot(&c) {
			parts[i] = "1"
		} else {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, "|")
}

// Allows reports whether the tenant may use the channel.
func (c Capabilities) Allows(ch ChannelType) bool {
	switch ch {
	case ChannelSTB:
		return c.STBMessage
	case ChannelSMS:
		return c.SMS
	case ChannelChatBot:
		return c.ChatBot
	case ChannelEmail:
		return c.Email
	}
	return false
}
