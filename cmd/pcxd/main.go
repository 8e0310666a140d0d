// Command pcxd runs the PCX certification service and its maintenance tasks.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pcx/internal/config"
	"pcx/internal/infra/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
	trace      bool

	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	traceOut io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	root := &cobra.Command{
		Use:           "pcxd",
		Short:         "PCX recycled-content certification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Level, opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.cfg = cfg
			opts.logger = logger
			opts.traceOut = cmd.ErrOrStderr()
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "pcx.yaml", "Path to the YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&opts.trace, "trace", false, "Write a JSON line per service operation span to stderr")

	root.AddCommand(
		newServeCmd(opts),
		newSeedCmd(opts),
		newMassBalanceCmd(opts),
		newReconcileCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
