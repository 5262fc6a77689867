package scheduler

import (
	"errors"
	"time"
	"unicode/utf8"
)

var (
	// ErrAlreadyRunning rejects a start while a run is active.
	ErrAlreadyRunning = errors.New("scheduler: queue already running")

	// ErrWrongMode rejects queue starts outside queue execution mode.
	ErrWrongMode = errors.New("scheduler: not in queue mode")

	// ErrQueueEmpty rejects a start with no persisted tasks.
	ErrQueueEmpty = errors.New("scheduler: task list is empty")

	// ErrGraceActive rejects automated starts inside the post-activation
	// grace window. Explicit user starts bypass it.
	ErrGraceActive = errors.New("scheduler: inside post-activation grace window")

	// ErrNotRunning rejects run-scoped commands while idle.
	ErrNotRunning = errors.New("scheduler: queue not running")
)

// ItemKind distinguishes tasks from interleaved verification prompts.
type ItemKind int

const (
	KindTask ItemKind = iota
	KindVerification
)

func (k ItemKind) String() string {
	if k == KindVerification {
		return "verification"
	}
	return "task"
}

// QueueItem is one entry of the runtime queue. Immutable once built.
type QueueItem struct {
	Kind        ItemKind
	Text        string
	SourceIndex int
}

// StartSource identifies who asked for a queue start.
type StartSource int

const (
	// StartSourceUser is an explicit operator action.
	StartSourceUser StartSource = iota
	// StartSourceAuto covers schedule triggers and other automation.
	StartSourceAuto
)

func (s StartSource) String() string {
	if s == StartSourceUser {
		return "user"
	}
	return "auto"
}

// HistoryEntry records one confirmed delivery.
type HistoryEntry struct {
	Text         string    `json:"text"`
	Truncated    string    `json:"truncated"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	Conversation string    `json:"conversation,omitempty"`
}

// Status is the externally visible scheduler state.
type Status struct {
	Enabled        bool   `json:"enabled"`
	Mode           string `json:"mode"`
	Running        bool   `json:"running"`
	QueueLength    int    `json:"queueLength"`
	QueueIndex     int    `json:"queueIndex"`
	QuotaExhausted bool   `json:"quotaExhausted"`
	Paused         bool   `json:"paused"`
	CurrentPrompt  string `json:"currentPrompt,omitempty"`
	Conversation   string `json:"conversation,omitempty"`
	LastError      string `json:"lastError,omitempty"`
}

const historyLimit = 50

const truncateLimit = 80

// truncate shortens text for status and history views, cutting on a
// rune boundary so multi-byte prompts stay valid UTF-8.
func truncate(text string) string {
	if utf8.RuneCountInString(text) <= truncateLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:truncateLimit]) + "..."
}
