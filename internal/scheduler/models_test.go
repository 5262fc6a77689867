package scheduler

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 100)
	got := truncate(text)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	want := strings.Repeat("é", truncateLimit) + "..."
	if got != want {
		t.Fatalf("truncate mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	if got := truncate("短いプロンプト"); got != "短いプロンプト" {
		t.Fatalf("short text modified: %q", got)
	}
}
