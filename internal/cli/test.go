package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"connkit/internal/harness"

	"github.com/spf13/cobra"
)

// ErrTestsFailed is returned when at least one test case failed.
var ErrTestsFailed = errors.New("one or more tests failed")

// NewTestCmd creates the test command.
func NewTestCmd() *cobra.Command {
	var (
		strict     bool
		watch      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "test <plugin> <config>",
		Short: "Run a test configuration against a plugin",
		Long: `Load the plugin into a sandbox and run every case in the YAML test
configuration. Network calls made by the plugin are matched against the
declared fetch assertions and answered with their canned responses.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("cli context not initialized")
			}
			pluginPath, configPath := args[0], args[1]
			strict = strict || cliCtx.Config.Harness.StrictFetchCounts

			run := func(ctx context.Context) error {
				report, err := runTests(ctx, cliCtx, pluginPath, configPath, strict)
				if err != nil {
					return err
				}
				if jsonOutput {
					data, _ := json.MarshalIndent(report, "", "  ")
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
				} else {
					report.Print(cmd.OutOrStdout(), harness.UseColor(os.Stdout))
				}
				if !report.OK() {
					return ErrTestsFailed
				}
				return nil
			}

			if !watch {
				return run(cmd.Context())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			w, err := harness.NewWatcher([]string{pluginPath, configPath}, cliCtx.Config.Harness.WatchDebounce, cliCtx.Logger)
			if err != nil {
				return err
			}
			return w.Run(ctx, func() {
				if err := run(ctx); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail cases whose fetch assertions were under-called")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run when the plugin or config changes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the report as JSON")

	return cmd
}

func runTests(ctx context.Context, cliCtx *CLIContext, pluginPath, configPath string, strict bool) (*harness.Report, error) {
	script, err := compilePlugin(ctx, cliCtx, pluginPath)
	if err != nil {
		return nil, err
	}
	cfg, err := harness.LoadConfiguration(configPath)
	if err != nil {
		return nil, err
	}
	cache, err := cliCtx.GetCache()
	if err != nil {
		return nil, err
	}

	name := pluginName(pluginPath)
	runner := harness.NewRunner(harness.Options{
		Sandbox: cliCtx.SandboxConfig(name),
		Strict:  strict,
		Cache:   cache,
	}, cliCtx.Logger.With().Str("plugin", name).Logger())
	return runner.Run(ctx, script, cfg)
}
