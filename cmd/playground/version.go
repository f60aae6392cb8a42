package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/playground/pkg/db/migrations"
	"github.com/jingkaihe/playground/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of playground in JSON format.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.Get().WithSchema(latestSchemaVersion())
		json, err := info.JSON()
		if err != nil {
			return errors.Wrap(err, "error formatting version info")
		}
		fmt.Fprintln(cmd.OutOrStdout(), json)
		return nil
	},
}

func latestSchemaVersion() int {
	latest := 0
	for _, m := range migrations.All() {
		latest = max(latest, m.Version)
	}
	return latest
}
