package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/specialistvlad/dungeonjob/internal/app"
	"github.com/specialistvlad/dungeonjob/internal/hcl"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/sequencer"
	"github.com/specialistvlad/dungeonjob/internal/tracing"
)

// appConfig assembles the process settings from viper, which already merges
// flags, DUNGEONJOB_* variables and the config file.
func appConfig(v *viper.Viper, pipelinePath string) app.Config {
	tc := tracing.DefaultConfig()
	tc.Exporter = v.GetString("tracing-exporter")
	tc.OTLPEndpoint = v.GetString("otlp-endpoint")
	return app.Config{
		PipelinePath: pipelinePath,
		LogFormat:    v.GetString("log-format"),
		LogLevel:     v.GetString("log-level"),
		StatusPort:   v.GetInt("status-port"),
		StateDB:      v.GetString("state-db"),
		Tracing:      tc,
	}
}

func newRunCommand(v *viper.Viper, outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [PIPELINE_PATH]",
		Short: "Run one battle simulation job",
		Long: `Run validates the job parameters, prepares the simulator on a node,
runs it on a node, and archives the produced files.

PIPELINE_PATH is a single .hcl file or a directory of .hcl files. It may also
be given with --pipeline or DUNGEONJOB_PIPELINE.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError("%s", err.Error())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("pipeline")
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := app.NewConfig(appConfig(v, path))
			if err != nil {
				return usageError("%s", err.Error())
			}
			raw, err := jobParams(cmd)
			if err != nil {
				return err
			}

			a := app.NewApp(outW, cfg, hcl.NewLoader())
			report, err := a.Run(cmd.Context(), raw)
			if err != nil {
				return &ExitError{Code: sequencer.ExitInternal, Message: err.Error()}
			}
			printReport(outW, report)
			if code := report.ExitCode(); code != 0 {
				return &ExitError{Code: code, Message: fmt.Sprintf("job %s %s: %s", report.JobID, report.Outcome, report.Reason)}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("pipeline", "p", "", "Path to the pipeline file or directory")
	f.String("params-file", "", "YAML file with the job parameters; flags override its values")
	f.String("participant-name", "", "Participant (player) name")
	f.String("category", "", "Hero category: A, B or C")
	f.String("level", "", "Level between 1 and 100")
	f.Bool("hardcore", false, "Enable hardcore mode")
	f.String("platform", "any", "Target platform: windows, linux or any")
	return cmd
}

// jobParams reads the params file, if any, and applies explicitly set flags
// on top of it.
func jobParams(cmd *cobra.Command) (params.Raw, error) {
	f := cmd.Flags()
	var raw params.Raw
	if path, _ := f.GetString("params-file"); path != "" {
		loaded, err := params.LoadFile(path)
		if err != nil {
			return params.Raw{}, usageError("%s", err.Error())
		}
		raw = loaded
	}
	if f.Changed("participant-name") || raw.ParticipantName == "" {
		raw.ParticipantName, _ = f.GetString("participant-name")
	}
	if f.Changed("category") || raw.Category == "" {
		raw.Category, _ = f.GetString("category")
	}
	if f.Changed("level") || raw.Level == "" {
		raw.Level, _ = f.GetString("level")
	}
	if f.Changed("hardcore") {
		raw.Hardcore, _ = f.GetBool("hardcore")
	}
	if f.Changed("platform") || raw.Platform == "" {
		raw.Platform, _ = f.GetString("platform")
	}
	return raw, nil
}

func printReport(w io.Writer, r *sequencer.Report) {
	fmt.Fprintf(w, "job %s: %s (state %s)\n", r.JobID, r.Outcome, r.State)
	for _, s := range r.Stages {
		fmt.Fprintf(w, "  %-8s %-6s node=%s os=%s took=%s\n", s.Stage, s.Status, s.NodeID, s.NodeOS, s.Duration())
	}
	if r.Receipt != nil {
		for _, k := range r.Receipt.Keys {
			fmt.Fprintf(w, "  archived %s\n", k)
		}
	}
}

func newStatusCommand(v *viper.Viper, outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Print the stored record of a job",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.LookupJob(cmd.Context(), v.GetString("state-db"), args[0])
			switch {
			case errors.Is(err, jobstore.ErrNotFound), errors.Is(err, app.ErrNoStateDB):
				return usageError("%s", err.Error())
			case err != nil:
				return &ExitError{Code: sequencer.ExitInternal, Message: err.Error()}
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode job record: %w", err)
			}
			fmt.Fprintln(outW, string(out))
			return nil
		},
	}
}

func newServeCommand(v *viper.Viper, outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve job records over HTTP until interrupted",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := appConfig(v, "")
			if err := app.Serve(cmd.Context(), outW, &cfg); err != nil {
				return usageError("%s", err.Error())
			}
			return nil
		},
	}
}
