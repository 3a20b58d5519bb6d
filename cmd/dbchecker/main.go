// Command dbchecker samples a MySQL server on a fixed interval, caches the
// latest readings and a bounded history in Redis, streams them to WebSocket
// subscribers and raises threshold alerts to Slack.
//
// Run several instances against one Redis: a lease elects the single
// collector while every instance serves reads and live connections.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "dbchecker",
		Short: "dbchecker - MySQL operational metrics pipeline",
		Long: `dbchecker collects MySQL status counters and session lists, keeps the
latest values and a rolling history in Redis, pushes updates to live
WebSocket subscribers and sends threshold alerts to Slack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/db-checker.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
