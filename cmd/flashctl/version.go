package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/flashops/addone/platform"
	"github.com/sshcollectorpro/flashops/api/router"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and registered platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.out, "flashctl %s\nplatforms: %v\n", router.Version, platform.Names())
			return err
		},
	}
}
