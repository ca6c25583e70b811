package external

// userAgent identifies the engine to upstreams.
const userAgent = "IPTVPanel-Reminders/1.0"

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 64 << 10

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
