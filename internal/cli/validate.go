package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nbridge/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path"`
	Issues []string `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Validate an nbridge configuration file against its schema.

Environment overrides (NBRIDGE_*) are applied before validation, exactly as
the other commands load configuration. Defaults to the --config path.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// config.Load treats a missing file as defaults; validate must not.
	if _, err := os.Stat(path); err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("config not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "config not found", err)
	}

	result := ValidationResult{Valid: true, Path: path}
	cfg, err := config.Load(path)
	if err != nil {
		result.Valid = false
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			result.Issues = ve.Issues
		} else {
			result.Issues = []string{err.Error()}
		}
	} else {
		f.VerboseLog("platform=%s sync_timeout=%s journal=%t", cfg.Platform, cfg.SyncTimeout(), cfg.Journal.Enabled)
	}

	if !result.Valid {
		_ = f.Error(ErrCodeConfig, fmt.Sprintf("%s has %d issue(s)", path, len(result.Issues)), result)
		return NewExitError(ExitFailure, "validation failed")
	}
	if opts.Format == "json" {
		return f.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", path)
	return nil
}
