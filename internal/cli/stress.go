package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"connkit/internal/jsvm"
	"connkit/internal/stress"

	"github.com/spf13/cobra"
)

// NewStressCmd creates the stress command.
func NewStressCmd() *cobra.Command {
	var (
		iterations int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stress <plugin>",
		Short: "Repeatedly call a plugin's introspection methods and sample memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("cli context not initialized")
			}
			if !cmd.Flags().Changed("iterations") {
				iterations = cliCtx.Config.Stress.Iterations
			}

			path := args[0]
			script, err := compilePlugin(cmd.Context(), cliCtx, path)
			if err != nil {
				return err
			}
			cache, err := cliCtx.GetCache()
			if err != nil {
				return err
			}

			name := pluginName(path)
			log := cliCtx.Logger.With().Str("plugin", name).Logger()
			sctx, err := jsvm.New(cliCtx.SandboxConfig(name), script, map[string]any{}, cache, log)
			if err != nil {
				return err
			}
			defer func() { _ = sctx.Dispose() }()

			out := cmd.OutOrStdout()
			opts := stress.Options{Iterations: iterations, Logger: log}
			if !jsonOutput {
				fmt.Fprintf(out, "%-10s %14s %12s %6s %8s %12s\n", "ITERATION", "HEAP", "OBJECTS", "GC", "BUFFERS", "BUFFER BYTES")
				opts.OnSample = func(s stress.Sample) { printSample(out, s) }
			}

			report, err := stress.Run(cmd.Context(), sctx, opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(report, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "\n%d iterations in %s, heap growth %+d bytes\n",
				report.Iterations, report.Duration.Round(time.Millisecond), report.Growth())
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", stress.DefaultIterations, "number of iterations")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the samples as JSON")

	return cmd
}

func printSample(w io.Writer, s stress.Sample) {
	fmt.Fprintf(w, "%-10d %14d %12d %6d %8d %12d\n",
		s.Iteration, s.HeapAlloc, s.HeapObjects, s.NumGC, s.CacheEntries, s.CacheBytes)
}
