package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/thrive-mt/imageapi/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := server.VersionInfo{Version: version, BuildTime: buildTime, GoVersion: runtime.Version()}
		if outputFmt == "text" {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "imageapi %s (built %s, %s)\n", info.Version, info.BuildTime, info.GoVersion)
			return err
		}
		return printResult(cmd.OutOrStdout(), outputFmt, info)
	},
}
