package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"connkit/internal/jsvm"

	"github.com/spf13/cobra"
)

// PluginInfo is what the info command reports about a plugin.
type PluginInfo struct {
	Name          string        `json:"name"`
	SDK           string        `json:"sdk,omitempty"`
	Methods       []jsvm.Method `json:"methods"`
	Configuration any           `json:"configuration,omitempty"`
}

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	var (
		jsonOutput  bool
		optionsJSON string
	)

	cmd := &cobra.Command{
		Use:   "info <plugin>",
		Short: "Show the capabilities and configuration options a plugin declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("cli context not initialized")
			}

			options := map[string]any{}
			if optionsJSON != "" {
				if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
					return fmt.Errorf("parse --options: %w", err)
				}
			}

			info, err := inspectPlugin(cmd.Context(), cliCtx, args[0], options)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&optionsJSON, "options", "", "runtime options passed to the plugin, as a JSON object")

	return cmd
}

func inspectPlugin(ctx context.Context, cliCtx *CLIContext, path string, options map[string]any) (*PluginInfo, error) {
	script, err := compilePlugin(ctx, cliCtx, path)
	if err != nil {
		return nil, err
	}

	name := pluginName(path)
	sctx, err := jsvm.New(cliCtx.SandboxConfig(name), script, options, nil, cliCtx.Logger.With().Str("plugin", name).Logger())
	if err != nil {
		return nil, err
	}
	defer func() { _ = sctx.Dispose() }()

	cat, err := sctx.Catalog()
	if err != nil {
		return nil, err
	}
	info := &PluginInfo{
		Name:    name,
		SDK:     cat.SDK,
		Methods: cat.Methods(),
	}

	has, err := sctx.EvalImmediate(`typeof ` + jsvm.PluginGlobal + `.getConfigurationOptions === "function"`)
	if err != nil {
		return nil, err
	}
	if has != true {
		return info, nil
	}

	expr, err := jsvm.CallExpr("getConfigurationOptions")
	if err != nil {
		return nil, err
	}
	future, err := sctx.EvalDeferred(expr)
	if err != nil {
		return nil, err
	}
	info.Configuration, err = future.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("getConfigurationOptions: %w", err)
	}
	return info, nil
}

func printInfo(w io.Writer, info *PluginInfo) {
	fmt.Fprintf(w, "Plugin: %s\n", info.Name)
	if info.SDK != "" {
		fmt.Fprintf(w, "SDK:    %s\n", info.SDK)
	}
	fmt.Fprintln(w, "Methods:")
	if len(info.Methods) == 0 {
		fmt.Fprintln(w, "  (none declared)")
	}
	for _, m := range info.Methods {
		fmt.Fprintf(w, "  %-28s %s\n", m.Name, m.Kind)
	}
	if info.Configuration != nil {
		data, _ := json.MarshalIndent(info.Configuration, "  ", "  ")
		fmt.Fprintf(w, "Configuration:\n  %s\n", data)
	}
}
