package logging_test

import (
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

func TestStreamHubPublishAndTail(t *testing.T) {
	hub := logging.NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(logging.LogEvent{Message: "tick"})
	}
	events := hub.Tail(10)
	if len(events) != 4 {
		t.Fatalf("expected hub capped at capacity 4, got %d", len(events))
	}
	if events[len(events)-1].Sequence != 6 {
		t.Fatalf("expected last sequence 6, got %d", events[len(events)-1].Sequence)
	}
}

func TestNewBuildsLoggerWithStreamHub(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, closer, err := logging.New(logging.Options{Level: "debug", Format: "console", StreamHub: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer()

	logger.Info("hello", logging.String(logging.FieldComponent, "test"))
	events := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one streamed event, got %d", len(events))
	}
	if events[0].Component != "test" {
		t.Fatalf("unexpected component: %q", events[0].Component)
	}
}

func TestNewWritesRotatingFileSink(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := logging.New(logging.Options{Level: "info", Format: "json", LogDir: dir})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer()
	logger.Info("recorded")
}
