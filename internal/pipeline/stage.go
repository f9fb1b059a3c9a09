package pipeline

import "context"

// Health is a component's self-reported status, returned by HealthCheck.
type Health struct {
	OK      bool
	Detail  string
}

// Stage is a uniform start/stop/health-check contract for pipeline
// components. None of the C1-C8 component types implements it; the
// supervisor starts, runs, and stops each one through its own methods.
type Stage interface {
	Start(ctx context.Context) error
	Stop()
	HealthCheck(ctx context.Context) Health
}
