package main

import (
	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the collection from the configured archive",
		Long: `Build the collection from source.path if it is empty.

A collection that already holds entries is reused as is; delete store.path to
rebuild from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), "index")
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.ensureIndex(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}
}
