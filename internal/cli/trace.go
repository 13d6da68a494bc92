package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nbridge/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Domain   string // optional - filter to one domain
}

// TraceResult holds the journal of one session.
type TraceResult struct {
	Session string             `json:"session"`
	Calls   []store.CallRecord `json:"calls"`
	Drops   []store.Drop       `json:"drops"`
	Stats   TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the session.
type TraceStats struct {
	Calls    int `json:"calls"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	TimedOut int `json:"timed_out"`
	Awaiting int `json:"awaiting"`
	Drops    int `json:"drops"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled calls",
		Long: `Show what the call journal recorded.

Without --session, lists every journaled session. With --session, shows the
session's calls in correlation order with their outcome, followed by every
callback or late result that was dropped.

The journal defaults to journal.path from the configuration.

Examples:
  nbridge trace --db ./nbridge.db
  nbridge trace --db ./nbridge.db --session 01890a5d-ac96-774b-bcce-b302099a8057
  nbridge trace --session 01890a5d-ac96-774b-bcce-b302099a8057 --domain ads --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (default: journal.path)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to show")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "filter to one domain")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	path := opts.Database
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			_ = f.Error(ErrCodeConfig, err.Error(), nil)
			return err
		}
		path = cfg.Journal.Path
	}

	// store.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := st.ReadSessions(ctx)
		if err != nil {
			_ = f.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		if opts.Format == "json" {
			return outputTraceJSON(cmd.OutOrStdout(), sessions)
		}
		outputSessionsText(cmd.OutOrStdout(), sessions)
		return nil
	}

	calls, err := st.ReadCalls(ctx, opts.Session)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read calls", err)
	}
	drops, err := st.ReadDrops(ctx, opts.Session)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read drops", err)
	}
	if len(calls) == 0 && len(drops) == 0 {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("session not found: %s", opts.Session), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}

	result := buildTraceResult(opts.Session, calls, drops, opts.Domain)
	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), result)
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

// buildTraceResult filters by domain and computes the summary.
func buildTraceResult(session string, calls []store.CallRecord, drops []store.Drop, domain string) TraceResult {
	result := TraceResult{
		Session: session,
		Calls:   []store.CallRecord{},
		Drops:   []store.Drop{},
	}
	for _, c := range calls {
		if domain != "" && c.Domain != domain {
			continue
		}
		result.Calls = append(result.Calls, c)
		switch c.State {
		case "resolved":
			result.Stats.Resolved++
		case "failed":
			result.Stats.Failed++
		case "timed_out":
			result.Stats.TimedOut++
		case "awaiting":
			result.Stats.Awaiting++
		}
	}
	for _, d := range drops {
		if domain != "" && d.Domain != domain {
			continue
		}
		result.Drops = append(result.Drops, d)
	}
	result.Stats.Calls = len(result.Calls)
	result.Stats.Drops = len(result.Drops)
	return result
}

func outputTraceJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputSessionsText(w io.Writer, sessions []store.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions journaled.")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  calls=%d drops=%d  %s .. %s\n",
			s.Session, s.Calls, s.Drops,
			s.FirstAt.Format(time.RFC3339Nano), s.LastAt.Format(time.RFC3339Nano))
	}
}

func outputTraceText(w io.Writer, r TraceResult) {
	fmt.Fprintf(w, "Session: %s\n\n", r.Session)

	fmt.Fprintln(w, "Calls:")
	for _, c := range r.Calls {
		fmt.Fprintf(w, "  [%d] %s %s %s data=%q extra=%q\n", c.CorrelationID, c.IssuedAt.Format(time.RFC3339Nano), c.Mode, c.Domain, c.Data, c.Extra)
		switch c.State {
		case "resolved":
			fmt.Fprintf(w, "      -> resolved data=%q extra=%q\n", c.ResponseData, c.ResponseExtra)
		case "awaiting":
			fmt.Fprintln(w, "      -> awaiting")
		default:
			fmt.Fprintf(w, "      -> %s %s: %s\n", c.State, c.ErrorCode, c.ErrorMessage)
		}
	}

	if len(r.Drops) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Dropped:")
		for _, d := range r.Drops {
			fmt.Fprintf(w, "  [%d] %s %s %s\n", d.CorrelationID, d.At.Format(time.RFC3339Nano), d.Domain, d.Reason)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d calls (%d resolved, %d failed, %d timed out, %d awaiting), %d dropped\n",
		r.Stats.Calls, r.Stats.Resolved, r.Stats.Failed, r.Stats.TimedOut, r.Stats.Awaiting, r.Stats.Drops)
}
