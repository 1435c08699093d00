package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/plugin"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print engine and API versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "copywriter-engine %s (api %s)\n", plugin.EngineVersion, plugin.APIVersion)
	},
}
