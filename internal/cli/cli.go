package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that maps onto a flag, e.g.
// DUNGEONJOB_LOG_LEVEL for --log-level.
const EnvPrefix = "DUNGEONJOB"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// usageError marks bad invocations, which exit with code 2.
func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Execute runs the command line in args. Every failure comes back as an
// *ExitError carrying the process exit code.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	root := newRootCommand(outW)
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(outW)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Cobra reports unknown commands as plain errors.
	if strings.HasPrefix(err.Error(), "unknown command") {
		return usageError("%s", err.Error())
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

func newRootCommand(outW io.Writer) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "dungeonjob",
		Short: "Run dungeon battle simulations on remote execution nodes",
		Long: `dungeonjob validates a battle request, prepares the simulator on an
execution node, runs it, and archives the battle report and game log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd, cfgFile)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%s", err.Error())
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "YAML file with default settings")
	pf.String("log-level", "info", "Logging level: 'debug', 'info', 'warn', 'error'")
	pf.String("log-format", "text", "Log output format: 'text' or 'json'")
	pf.String("state-db", "", "SQLite file for job records (empty keeps them in memory)")
	pf.Int("status-port", 0, "Port for the /health and /jobs status server. 0 is disabled.")
	pf.String("tracing-exporter", "none", "Trace exporter: 'none', 'stdout' or 'otlp'")
	pf.String("otlp-endpoint", "localhost:4317", "OTLP collector address")

	root.AddCommand(newRunCommand(v, outW), newStatusCommand(v, outW), newServeCommand(v, outW))
	return root
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError("%s", err.Error())
		}
		return nil
	}
}

// initConfig layers the config file and environment under the flags.
func initConfig(v *viper.Viper, cmd *cobra.Command, cfgFile string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return usageError("failed to read config file '%s': %v", cfgFile, err)
		}
	}
	return nil
}
