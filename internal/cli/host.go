package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/config"
	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/store"
)

// nativeBridge is a dispatcher built from configuration together with the
// resources it owns.
type nativeBridge struct {
	Dispatcher *bridge.Dispatcher
	Adapter    platform.Adapter
	journal    *store.Store
}

// openBridge selects the adapter, opens the journal and creates the
// dispatcher. A non-empty class_name is bound right away; a failure there is
// logged, not fatal, so calls can still report why native code is missing.
func openBridge(cfg config.Config, log *slog.Logger, scripts map[string]platform.Script) (*nativeBridge, error) {
	adapter, err := cfg.NewAdapter(config.HostBindings{Editor: editorOptions(scripts)})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to select platform", err)
	}

	journal, err := cfg.OpenJournal()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	opts := append(cfg.DispatcherOptions(), bridge.WithLogger(log))
	if journal != nil {
		opts = append(opts, bridge.WithJournal(journal))
	}

	nb := &nativeBridge{
		Dispatcher: bridge.New(adapter, opts...),
		Adapter:    adapter,
		journal:    journal,
	}

	if cfg.ClassName != "" {
		if err := nb.Dispatcher.InitializeClass(cfg.ClassConfiguration()); err != nil {
			log.Warn("native class not bound", "class", cfg.ClassName, "error", err)
		}
	}
	return nb, nil
}

// Close releases the journal and any adapter connection.
func (nb *nativeBridge) Close() error {
	var errs []error
	if c, ok := nb.Adapter.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if nb.journal != nil {
		errs = append(errs, nb.journal.Close())
	}
	return errors.Join(errs...)
}

func editorOptions(scripts map[string]platform.Script) []platform.EditorOption {
	var opts []platform.EditorOption
	for domain, s := range scripts {
		opts = append(opts, platform.WithScript(domain, s))
	}
	return opts
}

// loadScripts reads editor stub scripts: a YAML map from domain to script.
// An empty path means no scripts, so every domain echoes.
func loadScripts(path string) (map[string]platform.Script, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read scripts", err)
	}

	scripts := map[string]platform.Script{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scripts); err != nil && !errors.Is(err, io.EOF) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to parse scripts %s", path), err)
	}
	return scripts, nil
}

// bridgeErrorCode maps a bridge error to the CLI error code reported in
// JSON output.
func bridgeErrorCode(err error) string {
	switch {
	case bridge.IsTimeout(err):
		return ErrCodeCallTimeout
	case bridge.IsNativeUnavailable(err):
		return ErrCodeUnavailable
	case bridge.IsInvalidPayload(err):
		return ErrCodeInvalidInput
	case bridge.CodeOf(err) != "":
		return ErrCodeCallFailed
	}
	return ErrCodeGeneric
}
