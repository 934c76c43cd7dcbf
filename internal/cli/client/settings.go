package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ConfigCmd shows or updates the per-user client settings.
func ConfigCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save client settings",
		Long:  "Without flags prints the effective server URL. With --api-url or --model saves them to the user config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagURL, _ := cmd.Flags().GetString("api-url")
			out := cmd.OutOrStdout()

			if flagURL == "" && model == "" {
				url, source := ResolveAPIURL("")
				fmt.Fprintf(out, "api_url: %s (%s)\n", url, source)
				if global, err := LoadGlobalConfig(); err == nil && global != nil && global.Model != "" {
					fmt.Fprintf(out, "model: %s\n", global.Model)
				}
				return nil
			}

			global, err := LoadGlobalConfig()
			if err != nil {
				return err
			}
			if global == nil {
				global = &GlobalConfig{}
			}
			if flagURL != "" {
				global.APIURL = flagURL
			}
			if model != "" {
				global.Model = model
			}
			if err := SaveGlobalConfig(global); err != nil {
				return err
			}

			path, _ := GetConfigPath()
			fmt.Fprintf(out, "saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Default answer model")

	return cmd
}
