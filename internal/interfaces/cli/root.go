// Package cli wires the curation pipeline into the mskb command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
}

// runtime carries the initialized dependencies through the command tree.
type runtime struct {
	cfg    *config.Config
	logger logging.Logger
}

// NewRootCommand creates the mskb root command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rt := &runtime{}

	cmd := &cobra.Command{
		Use:     "mskb",
		Short:   "FoodSafety-MS-KB compound curation pipeline",
		Long: "mskb curates the mass-spectrometry knowledge base compound catalog:\n" +
			"it indexes detection records, builds the catalog, enriches orphans from\n" +
			"the external chemical database, fuses candidate identities through the\n" +
			"source waterfall, and backfills the corpus.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (default: ./mskb.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newCurateCmd(rt),
		newValidateCmd(rt),
	)
	return cmd
}

// init loads configuration and builds the logger.  Configuration failures
// are fatal before any processing starts.
func (rt *runtime) init(opts *rootOptions) error {
	path := opts.configPath
	if path == "" {
		if _, statErr := os.Stat("mskb.yaml"); statErr == nil {
			path = "mskb.yaml"
		}
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "configuration load failed")
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to initialize logging")
	}

	rt.cfg = cfg
	rt.logger = logger.Named("mskb")
	return nil
}

// Execute runs the root command and maps failures to exit codes: 2 for
// configuration errors, 1 otherwise.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.IsConfiguration(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
