package core

import (
	"strings"

	"iptvpanel/internal/types"
)

// RedactAddress masks a recipient address for safe logging. Hardware ids
// are not personal data and pass through unchanged.
func RedactAddress(ch types.ChannelType, addr string) string {
	switch ch {
	case types.ChannelEmail:
		return RedactEmail(addr)
	case types.ChannelSMS, types.ChannelChatBot:
		return redactTail(addr, 3)
	}
	return addr
}

// RedactEmail replaces all but the first character of the local part with
// asterisks: "john@gmail.com" becomes "j***@gmail.com". A string without an
// "@" is masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 {
		return "***@" + domain
	}
	return string(local[0]) + "***@" + domain
}

// redactTail keeps the last n characters of s.
func redactTail(s string, n int) string {
	if s == "" {
		return ""
	}
	if len(s) <= n {
		return "***"
	}
	return "***" + s[len(s)-n:]
}
