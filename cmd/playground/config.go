package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after flags, PLAYGROUND_* environment variables,
the config file and the active profile are applied. The API key is masked.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if file := viper.ConfigFileUsed(); file != "" {
			fmt.Fprintf(os.Stderr, "# config file: %s\n", file)
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
