package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gus-bms/db-checker/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and print the effective configuration",
	Long: `Load the config file, apply defaults and validate it. On success the
effective configuration is printed as YAML with secrets masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return err
		}

		masked := *cfg
		masked.Redis.Password = mask(masked.Redis.Password)
		masked.Lock.Postgres.Password = mask(masked.Lock.Postgres.Password)
		masked.Source.MySQL.Password = mask(masked.Source.MySQL.Password)
		masked.Alerts.Slack.WebhookURL = mask(masked.Alerts.Slack.WebhookURL)

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
