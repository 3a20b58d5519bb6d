package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gus-bms/db-checker/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "dbchecker "+version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
