// agentdeck version: print build information.
package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/f9-o/agentdeck/pkg/pprint"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// VersionInfo is the --json shape of `agentdeck version`.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"os_arch"`
}

// CurrentVersion reports the running binary's build information.
func CurrentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "Print agentdeck version information",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := CurrentVersion()

			jsonFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
			if jsonFlag {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}

			pprint.PrintBanner(Version, BuildDate)

			pprint.KV("Version  ", info.Version)
			pprint.KV("Commit   ", info.Commit)
			pprint.KV("Built    ", info.BuildDate)
			pprint.KV("Go       ", info.GoVersion)
			pprint.KV("Platform ", info.Platform)
			fmt.Println()
			return nil
		},
	}
}
