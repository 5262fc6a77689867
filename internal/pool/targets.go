package pool

import (
	"strings"
)

// Target describes one entry from the discovery endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// eligible reports whether a discovered target should be connected to.
// Targets without a socket endpoint cannot be driven at all, and the
// app's own settings surface must never receive the payload.
func eligible(target Target, settingsTitle string) bool {
	if strings.TrimSpace(target.WebSocketDebuggerURL) == "" {
		return false
	}
	if settingsTitle != "" && strings.EqualFold(strings.TrimSpace(target.Title), settingsTitle) {
		return false
	}
	return true
}

// TargetInfo is the externally visible view of one pooled connection.
type TargetInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Injected bool   `json:"injected"`
}
