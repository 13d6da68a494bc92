package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/wire"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Domains []string      // receivers registered up front
	Scripts string        // editor stub scripts (YAML)
	Linger  time.Duration // how long to keep delivering after input ends

	// Input overrides stdin (for testing).
	Input io.Reader
}

// RunEvent is one line of run output.
type RunEvent struct {
	Event  string `json:"event"` // "issued", "result", "delivery" or "error"
	ID     int64  `json:"id,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Domain string `json:"domain,omitempty"`
	Data   string `json:"data,omitempty"`
	Extra  string `json:"extra,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher loop and issue calls read from stdin",
		Long: `Start the dispatcher main loop and issue calls read from standard input.

Each input line is a JSON object:
  {"mode":"sync","domain":"ads","data":"load","extra":""}
  {"mode":"async","domain":"ads","data":"show"}
  {"mode":"forget","id":3}

Every sync result, receiver delivery and failure is written to standard
output as one JSON line. Async calls register a receiver for their domain on
first use. When input ends the loop keeps delivering for --linger, then
stops. SIGINT or SIGTERM stops it at once.

Example:
  echo '{"mode":"async","domain":"ads","data":"load"}' | nbridge run --config editor.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Domains, "domain", nil, "register a receiver for domain (repeatable)")
	cmd.Flags().StringVar(&opts.Scripts, "scripts", "", "YAML file of editor stub scripts by domain")
	cmd.Flags().DurationVar(&opts.Linger, "linger", time.Second, "keep delivering this long after input ends")

	return cmd
}

// eventWriter serializes output lines from the loop and the input reader.
type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *eventWriter) write(ev RunEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(ev)
}

// issue holds the output while call runs and writes the event it returns.
// A callback queued during call cannot print ahead of its issued line.
func (w *eventWriter) issue(call func() RunEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(call())
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())

	scripts, err := loadScripts(opts.Scripts)
	if err != nil {
		return err
	}
	nb, err := openBridge(cfg, log, scripts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := nb.Close(); closeErr != nil {
			log.Error("error closing bridge", "error", closeErr)
		}
	}()
	d := nb.Dispatcher

	out := &eventWriter{enc: json.NewEncoder(cmd.OutOrStdout())}
	deliver := func(domain string) bridge.Receiver {
		return func(del bridge.Delivery) {
			ev := RunEvent{
				Event:  "delivery",
				ID:     int64(del.Message.CorrelationID),
				Domain: domain,
				Data:   del.Message.Data,
				Extra:  del.Message.Extra,
			}
			if del.Err != nil {
				ev.Error = del.Err.Error()
				ev.Code = string(bridge.CodeOf(del.Err))
			}
			out.write(ev)
		}
	}
	for _, domain := range opts.Domains {
		if err := d.AddReceiver(domain, deliver(domain)); err != nil {
			return WrapExitError(ExitCommandError, "invalid --domain", err)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := opts.Input
	if input == nil {
		input = cmd.InOrStdin()
	}
	lines := scanLines(input)

	log.Info("dispatcher loop starting", "platform", d.Platform(), "session", d.Session())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					linger(gctx, opts.Linger)
					d.Stop()
					return nil
				}
				handleInput(gctx, d, line, deliver, out)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatcher loop failed", err)
	}
	stats := d.Stats()
	log.Info("dispatcher loop stopped",
		"issued", stats.Issued,
		"resolved", stats.Resolved,
		"failed", stats.Failed,
		"timed_out", stats.TimedOut,
		"dropped", stats.Dropped,
	)
	return nil
}

// scanLines feeds non-empty input lines into a channel that closes at EOF.
// The reader goroutine is left behind if the loop stops first; stdin cannot
// be interrupted.
func scanLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				lines <- line
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("input read failed", "error", err)
		}
	}()
	return lines
}

func linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// handleInput issues the call described by one input line.
func handleInput(ctx context.Context, d *bridge.Dispatcher, line string, deliver func(string) bridge.Receiver, out *eventWriter) {
	if !gjson.Valid(line) {
		out.write(RunEvent{Event: "error", Error: "input is not valid JSON", Code: ErrCodeInvalidInput})
		return
	}
	in := gjson.Parse(line)
	msg := wire.Message{
		Domain: in.Get("domain").String(),
		Data:   in.Get("data").String(),
		Extra:  in.Get("extra").String(),
	}

	switch mode := in.Get("mode").String(); mode {
	case "sync":
		resp, err := d.CallSync(ctx, msg)
		if err != nil {
			out.write(failureEvent(wire.ModeSync, msg.Domain, err))
			return
		}
		out.write(RunEvent{
			Event:  "result",
			ID:     int64(resp.CorrelationID),
			Mode:   string(wire.ModeSync),
			Domain: resp.Domain,
			Data:   resp.Data,
			Extra:  resp.Extra,
		})

	case "async":
		if wire.ValidDomain(msg.Domain) && !d.HasReceiver(msg.Domain) {
			_ = d.AddReceiver(msg.Domain, deliver(msg.Domain))
		}
		out.issue(func() RunEvent {
			id, err := d.CallAsync(msg)
			if err != nil {
				return failureEvent(wire.ModeAsync, msg.Domain, err)
			}
			return RunEvent{Event: "issued", ID: int64(id), Mode: string(wire.ModeAsync), Domain: msg.Domain}
		})

	case "forget":
		id := in.Get("id").Int()
		if !d.Forget(wire.CorrelationID(id)) {
			out.write(RunEvent{Event: "error", ID: id, Error: "no pending async call", Code: ErrCodeNotFound})
		}

	default:
		out.write(RunEvent{Event: "error", Error: fmt.Sprintf("unknown mode %q", mode), Code: ErrCodeInvalidInput})
	}
}

func failureEvent(mode wire.CallMode, domain string, err error) RunEvent {
	ev := RunEvent{
		Event:  "error",
		Mode:   string(mode),
		Domain: domain,
		Error:  err.Error(),
		Code:   string(bridge.CodeOf(err)),
	}
	var be *bridge.BridgeError
	if errors.As(err, &be) {
		ev.ID = int64(be.CorrelationID)
	}
	return ev
}
