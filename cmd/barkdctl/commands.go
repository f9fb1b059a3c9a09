package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/machug/woofalytics-v2-sub000/internal/ipc"
)

// decodeInto re-marshals a Response's loosely-typed Data payload into a
// concrete struct, turning the wire envelope's interface{} field into a
// typed result.
func decodeInto(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("barkdctl: re-encode response data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("barkdctl: decode response data: %w", err)
	}
	return nil
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the barkd detection daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			socket := ctx.socketPath()

			if client, err := ipc.Dial(socket); err == nil {
				_ = client.Close()
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}

			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := launchDaemonProcess(ctx); err != nil {
				return err
			}
			client, err := waitForDaemonClient(socket, 10*time.Second)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Call(ipc.Request{Command: ipc.CommandStatus})
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("barkd: %s", resp.Error)
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the barkd detection daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			socket := ctx.socketPath()

			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Call(ipc.Request{Command: ipc.CommandStop})
				if err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("barkd: %s", resp.Error)
				}
				return nil
			})
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}

			if waitForDaemonShutdown(socket, 5*time.Second) {
				fmt.Fprintln(stdout, "Daemon stopped")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			var status statusPayload
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Call(ipc.Request{Command: ipc.CommandStatus})
				if err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("barkd: %s", resp.Error)
				}
				return decodeInto(resp.Data, &status)
			})
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}

			rows := [][]string{
				{"running", strconv.FormatBool(status.Running)},
				{"pid", strconv.Itoa(status.PID)},
				{"device", status.Pipeline.DeviceName},
				{"uptime_s", strconv.FormatFloat(status.Pipeline.UptimeSeconds, 'f', 1, 64)},
				{"frames_in", strconv.FormatUint(status.Pipeline.Counters.FramesIn, 10)},
				{"vad_skipped", strconv.FormatUint(status.Pipeline.Counters.VadSkipped, 10)},
				{"coarse_skipped", strconv.FormatUint(status.Pipeline.Counters.CoarseSkipped, 10)},
				{"fine_runs", strconv.FormatUint(status.Pipeline.Counters.FineRuns, 10)},
				{"events_emitted", strconv.FormatUint(status.Pipeline.Counters.EventsEmitted, 10)},
				{"last_event", status.Pipeline.LastEventRef},
			}
			fmt.Fprintln(stdout, renderTable([]string{"field", "value"}, rows, []columnAlignment{alignLeft, alignLeft}))

			if len(status.Dependencies) > 0 {
				depRows := make([][]string, 0, len(status.Dependencies))
				for _, dep := range status.Dependencies {
					depRows = append(depRows, []string{dep.Name, dep.Command, strconv.FormatBool(dep.Available), dep.Detail})
				}
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderTable(
					[]string{"dependency", "command", "available", "detail"},
					depRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}
			return nil
		},
	}
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the daemon's recent log events",
	}

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			var events []logEventPayload
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Call(ipc.Request{
					Command: ipc.CommandEventsTail,
					Args:    map[string]any{"limit": limit},
				})
				if err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("barkd: %s", resp.Error)
				}
				return decodeInto(resp.Data, &events)
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					strconv.FormatUint(ev.Sequence, 10),
					ev.Timestamp,
					ev.Level,
					ev.Component,
					ev.Message,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"seq", "timestamp", "level", "component", "message"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	tailCmd.Flags().IntVar(&limit, "limit", 50, "Number of recent events to show")

	eventsCmd.AddCommand(tailCmd)
	return eventsCmd
}

func newEvidenceCommand(ctx *commandContext) *cobra.Command {
	var limit int

	evidenceCmd := &cobra.Command{
		Use:   "evidence",
		Short: "Inspect recorded bark evidence",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recently recorded evidence clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			var entries []evidenceEntryPayload
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Call(ipc.Request{
					Command: ipc.CommandEvidenceList,
					Args:    map[string]any{"limit": limit},
				})
				if err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("barkd: %s", resp.Error)
				}
				return decodeInto(resp.Data, &entries)
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				dogID := e.DogID
				if dogID == "" {
					dogID = "-"
				}
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					e.Filename,
					e.TimestampUTC,
					strconv.FormatFloat(e.DurationSeconds, 'f', 1, 64),
					strconv.FormatFloat(e.PeakProbability, 'f', 3, 64),
					strconv.Itoa(e.BarkCountInClip),
					e.TopLabel,
					dogID,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"id", "filename", "timestamp", "duration_s", "peak_prob", "barks", "label", "dog_id"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Number of recent evidence records to show")

	evidenceCmd.AddCommand(listCmd)
	return evidenceCmd
}
