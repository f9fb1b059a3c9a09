// Package daemon owns the long-running barkd process lifecycle.
//
// It acquires a single-instance lock, runs the pre-flight dependency
// checks, starts the pipeline supervisor, and unwinds everything in
// reverse order on shutdown. Keep orchestration here; individual pipeline
// stages live in their own packages.
package daemon
