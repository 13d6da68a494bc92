package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/wire"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Extra   string
	Async   bool
	Wait    time.Duration // how long an async call waits for its callback
	Scripts string        // editor stub scripts (YAML)
}

// CallResult is the outcome of one call.
type CallResult struct {
	Session string `json:"session"`
	ID      int64  `json:"id"`
	Mode    string `json:"mode"`
	Domain  string `json:"domain"`
	Data    string `json:"data"`
	Extra   string `json:"extra"`
}

// String renders the result for text output.
func (r CallResult) String() string {
	return fmt.Sprintf("%s call %d on %s\n  data:  %s\n  extra: %s", r.Mode, r.ID, r.Domain, r.Data, r.Extra)
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <domain> [data]",
		Short: "Issue one native call",
		Long: `Issue one call through the configured platform adapter and print its result.

A sync call blocks on the native channel until the native side answers or the
configured timeout passes. An async call runs the dispatcher loop until the
callback for its correlation id reaches the domain receiver.

Exit codes:
  0 - Call resolved
  1 - Call failed (native error, timeout, no platform)
  2 - Command error (bad configuration, unreadable scripts)

Examples:
  nbridge call GPM_WEBVIEW '{"scheme":"gpmwebview://isActive"}'
  nbridge call ads load --async --wait 10s
  nbridge call ads load --config editor.yaml --scripts scripts.yaml --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Extra, "extra", "", "extra side-channel value")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "issue an async call and wait for its callback")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 5*time.Second, "how long an async call waits for its callback")
	cmd.Flags().StringVar(&opts.Scripts, "scripts", "", "YAML file of editor stub scripts by domain")

	return cmd
}

func runCall(opts *CallOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	scripts, err := loadScripts(opts.Scripts)
	if err != nil {
		_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
		return err
	}

	nb, err := openBridge(cfg, newLogger(cfg, opts.Verbose, cmd.ErrOrStderr()), scripts)
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer nb.Close()

	msg := wire.Message{Domain: args[0], Extra: opts.Extra}
	if len(args) > 1 {
		msg.Data = args[1]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f.VerboseLog("platform=%s session=%s", nb.Dispatcher.Platform(), nb.Dispatcher.Session())

	var result CallResult
	if opts.Async {
		result, err = callAsync(ctx, nb.Dispatcher, msg, opts.Wait)
	} else {
		result, err = callSync(ctx, nb.Dispatcher, msg)
	}
	if err != nil {
		_ = f.Error(bridgeErrorCode(err), err.Error(), map[string]any{
			"domain": msg.Domain,
			"code":   string(bridge.CodeOf(err)),
		})
		return WrapExitError(ExitFailure, "call failed", err)
	}
	result.Session = nb.Dispatcher.Session()
	return f.Success(result)
}

func callSync(ctx context.Context, d *bridge.Dispatcher, msg wire.Message) (CallResult, error) {
	resp, err := d.CallSync(ctx, msg)
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{
		ID:     int64(resp.CorrelationID),
		Mode:   string(wire.ModeSync),
		Domain: resp.Domain,
		Data:   resp.Data,
		Extra:  resp.Extra,
	}, nil
}

// callAsync runs the dispatcher loop until the callback for the issued call
// arrives or wait passes. Unsolicited events for the domain are skipped.
func callAsync(ctx context.Context, d *bridge.Dispatcher, msg wire.Message, wait time.Duration) (CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// Every correlated delivery is handed over; the loop below picks ours.
	deliveries := make(chan bridge.Delivery)
	err := d.AddReceiver(msg.Domain, func(del bridge.Delivery) {
		if del.Message.CorrelationID == 0 {
			return
		}
		select {
		case deliveries <- del:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return CallResult{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	// Run only returns once the context ends.
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	id, err := d.CallAsync(msg)
	if err != nil {
		return CallResult{}, err
	}

	for {
		select {
		case del := <-deliveries:
			if del.Message.CorrelationID != id {
				continue
			}
			if del.Err != nil {
				return CallResult{}, del.Err
			}
			return CallResult{
				ID:     int64(id),
				Mode:   string(wire.ModeAsync),
				Domain: del.Message.Domain,
				Data:   del.Message.Data,
				Extra:  del.Message.Extra,
			}, nil

		case <-ctx.Done():
			d.Forget(id)
			return CallResult{}, bridge.NewTimeoutError(msg.Domain, id, ctx.Err())
		}
	}
}
