package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbridge/internal/config"
	"github.com/roach88/nbridge/internal/platform"
)

// shutdownTimeout bounds graceful companion shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen        string
	Scripts       string
	PluginVersion string

	// Ready, when set, receives the bound address once the listener is up
	// (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local adapter to remote bridges over WebSocket",
		Long: `Run a device companion: a WebSocket endpoint that relays calls from a
remote-platform bridge to the local adapter and streams its callbacks back.

On a device the local adapter is the native plugin. On a desktop, where no
native platform exists, the editor stub answers instead (see --scripts).

Example:
  nbridge serve --listen 127.0.0.1:8765 --scripts scripts.yaml
  # elsewhere, with platform: remote and remote.url: ws://127.0.0.1:8765
  nbridge call ads load --async`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:8765", "address to listen on")
	cmd.Flags().StringVar(&opts.Scripts, "scripts", "", "YAML file of editor stub scripts by domain")
	cmd.Flags().StringVar(&opts.PluginVersion, "plugin-version", platform.PluginVersion, "plugin version announced to peers")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr()).With("component", "companion")

	scripts, err := loadScripts(opts.Scripts)
	if err != nil {
		return err
	}
	editorOpts := editorOptions(scripts)

	adapter, err := cfg.NewAdapter(config.HostBindings{Editor: editorOpts})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to select platform", err)
	}
	switch {
	case adapter == nil:
		log.Info("no native platform, serving the editor stub")
		adapter = platform.NewEditorAdapter(editorOpts...)
	case adapter.Kind() == platform.KindRemote:
		return NewExitError(ExitCommandError, "serve needs a local adapter, not remote")
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           platform.NewCompanion(adapter, opts.PluginVersion),
		ReadHeaderTimeout: 10 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ln.Addr().String()
	log.Info("companion listening", "addr", addr, "platform", adapter.Kind(), "version", opts.PluginVersion)
	fmt.Fprintf(cmd.OutOrStdout(), "Companion listening on ws://%s\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "companion failed", err)
	}
	log.Info("companion stopped")
	return nil
}
