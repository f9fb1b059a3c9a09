package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/ipc"
)

// fakeHandler implements ipc.Handler with canned responses, the same shape
// as stubbing the daemon side of the control channel without spinning up a
// real pipeline.
type fakeHandler struct {
	status   statusPayload
	events   []logEventPayload
	evidence []evidenceEntryPayload
	stopped  bool
}

func (h *fakeHandler) Status(ctx context.Context) (any, error) {
	return h.status, nil
}

func (h *fakeHandler) Stop(ctx context.Context) error {
	h.stopped = true
	return nil
}

func (h *fakeHandler) EventsTail(ctx context.Context, limit int) (any, error) {
	if limit < len(h.events) {
		return h.events[:limit], nil
	}
	return h.events, nil
}

func (h *fakeHandler) EvidenceList(ctx context.Context, limit int) (any, error) {
	if limit < len(h.evidence) {
		return h.evidence[:limit], nil
	}
	return h.evidence, nil
}

func startFakeServer(t *testing.T, handler ipc.Handler) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "barkd.sock")
	server, err := ipc.NewServer(socketPath, handler, slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go server.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return socketPath
}

func TestStatusCommandRendersCounters(t *testing.T) {
	handler := &fakeHandler{
		status: statusPayload{
			Running: true,
			PID:     4242,
			Pipeline: pipelineStatusPayload{
				Running:      true,
				DeviceName:   "USB Mic",
				LastEventRef: "evt-0001",
			},
		},
	}
	handler.status.Pipeline.Counters.FramesIn = 100
	handler.status.Pipeline.Counters.EventsEmitted = 3

	socket := startFakeServer(t, handler)
	socketFlag := socket
	configFlag := ""
	ctx := newCommandContext(&socketFlag, &configFlag)

	cmd := newStatusCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}

	rendered := out.String()
	if !strings.Contains(rendered, "USB Mic") {
		t.Fatalf("expected device name in output, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "evt-0001") {
		t.Fatalf("expected last event ref in output, got:\n%s", rendered)
	}
}

func TestStatusCommandWhenDaemonNotRunning(t *testing.T) {
	socketFlag := filepath.Join(t.TempDir(), "missing.sock")
	configFlag := ""
	ctx := newCommandContext(&socketFlag, &configFlag)

	cmd := newStatusCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status should not error when daemon absent: %v", err)
	}
	if !strings.Contains(out.String(), "not running") {
		t.Fatalf("expected not-running message, got: %q", out.String())
	}
}

func TestStopCommandCallsHandler(t *testing.T) {
	handler := &fakeHandler{}
	socket := startFakeServer(t, handler)
	socketFlag := socket
	configFlag := ""
	ctx := newCommandContext(&socketFlag, &configFlag)

	cmd := newStopCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !handler.stopped {
		t.Fatalf("expected handler.Stop to be called")
	}
}

func TestEventsTailCommandRendersRows(t *testing.T) {
	handler := &fakeHandler{
		events: []logEventPayload{
			{Sequence: 1, Timestamp: "2026-07-31T00:00:00Z", Level: "INFO", Component: "pipeline", Message: "bark detected"},
		},
	}
	socket := startFakeServer(t, handler)
	socketFlag := socket
	configFlag := ""
	ctx := newCommandContext(&socketFlag, &configFlag)

	cmd := newEventsCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tail"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("events tail: %v", err)
	}
	if !strings.Contains(out.String(), "bark detected") {
		t.Fatalf("expected event message in output, got:\n%s", out.String())
	}
}

func TestEvidenceListCommandRendersRows(t *testing.T) {
	handler := &fakeHandler{
		evidence: []evidenceEntryPayload{
			{ID: 7, Filename: "clip-0007.wav", TimestampUTC: "2026-07-31T00:00:01Z", DurationSeconds: 2.5, PeakProbability: 0.91, BarkCountInClip: 2, TopLabel: "bark", DogID: "rex"},
		},
	}
	socket := startFakeServer(t, handler)
	socketFlag := socket
	configFlag := ""
	ctx := newCommandContext(&socketFlag, &configFlag)

	cmd := newEvidenceCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("evidence list: %v", err)
	}
	if !strings.Contains(out.String(), "clip-0007.wav") {
		t.Fatalf("expected filename in output, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "rex") {
		t.Fatalf("expected dog id in output, got:\n%s", out.String())
	}
}

func TestDecodeIntoRoundTrips(t *testing.T) {
	var dst evidenceEntryPayload
	src := map[string]any{
		"ID":       float64(9),
		"Filename": "clip-0009.wav",
	}
	if err := decodeInto(src, &dst); err != nil {
		t.Fatalf("decodeInto: %v", err)
	}
	if dst.ID != 9 || dst.Filename != "clip-0009.wav" {
		t.Fatalf("unexpected decode result: %+v", dst)
	}
}
