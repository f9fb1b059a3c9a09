// Package logging assembles the structured slog loggers used across the
// bark detection pipeline.
//
// It fans log lines out to a console handler (for interactive operator
// use) and an optional JSON file sink (a single append-only file that is
// not rotated), and feeds a StreamHub so
// `barkdctl events tail` can follow live log events without attaching to
// the daemon's stdout. Components tag their lines with the field
// constants below rather than ad-hoc keys so log aggregation stays
// consistent across C1-C9.
//
// # Required fields by level
//
// INFO logs should include event_type for lifecycle milestones (stage
// start/stop, device change, BarkEvent emission). WARN logs should carry
// event_type plus error_hint and impact, describing what degraded and
// what the operator should do about it. ERROR logs should include
// event_type, error_hint, and the error itself via logging.Error().
package logging
