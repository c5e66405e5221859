package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"connkit/internal/jsvm/hostapi"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	SDK       string `json:"sdk_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := BuildInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildTime: BuildTime,
				GoVersion: runtime.Version(),
				SDK:       hostapi.SDKVersion,
				OS:        runtime.GOOS,
				Arch:      runtime.GOARCH,
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Fprintln(out, string(data))
				return
			}
			fmt.Fprintf(out, "connkit %s\n", info.Version)
			fmt.Fprintf(out, "  Git commit:  %s\n", info.GitCommit)
			fmt.Fprintf(out, "  Built:       %s\n", info.BuildTime)
			fmt.Fprintf(out, "  Plugin SDK:  %s\n", info.SDK)
			fmt.Fprintf(out, "  Go version:  %s\n", info.GoVersion)
			fmt.Fprintf(out, "  OS/Arch:     %s/%s\n", info.OS, info.Arch)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
