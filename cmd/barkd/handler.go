package main

import (
	"context"
	"fmt"

	"github.com/machug/woofalytics-v2-sub000/internal/daemon"
	"github.com/machug/woofalytics-v2-sub000/internal/evidence"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// daemonHandler bridges *daemon.Daemon to ipc.Handler: the wire protocol's
// shape (any, error) doesn't match the daemon's own method signatures, so
// the adapter lives here rather than blurring that boundary into package
// daemon or package ipc.
type daemonHandler struct {
	daemon        *daemon.Daemon
	evidenceIndex *evidence.Index
	hub           *logging.StreamHub
}

func (h *daemonHandler) Status(ctx context.Context) (any, error) {
	return h.daemon.Status(ctx), nil
}

func (h *daemonHandler) Stop(ctx context.Context) error {
	h.daemon.Stop(ctx)
	return nil
}

func (h *daemonHandler) EventsTail(ctx context.Context, limit int) (any, error) {
	if h.hub == nil {
		return nil, fmt.Errorf("log stream unavailable")
	}
	return h.hub.Tail(limit), nil
}

func (h *daemonHandler) EvidenceList(ctx context.Context, limit int) (any, error) {
	return h.evidenceIndex.Recent(ctx, limit)
}
