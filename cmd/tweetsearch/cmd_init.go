package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/tweetsearch/cmd/tweetsearch/internal"
	"github.com/DreamCats/tweetsearch/internal/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := internal.ConfigPath(cfgFile)
			created, err := config.WriteDefaultTemplate(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", path)
			}
			internal.PrintConfigHint(path)
			return nil
		},
	}
}
