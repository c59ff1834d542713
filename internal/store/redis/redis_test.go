package redis

import (
	"testing"
	"time"
)

func TestLastSeenKey(t *testing.T) {
	if got := lastSeenKey(42); got != "presence:lastseen:42" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseMillis(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	got, err := parseMillis("1777863721000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}

	if _, err := parseMillis("not-a-number"); err == nil {
		t.Fatalf("expected error for garbage value")
	}
}
