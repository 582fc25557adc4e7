package main

import (
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/internal/service"
)

func newScanCommand(a *app) *cobra.Command {
	var (
		flash  string
		search string
		logOn  bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "list a flash file system and search for a file",
		Example: `  flashctl scan --host 10.1.1.1 -u admin -p secret --search c2960-lanbasek9-mz.bin
  flashctl scan --host core-sw --ssh-config ~/.ssh/config --flash bootflash:`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.flags.target()
			if err != nil {
				return err
			}
			res := a.ops.Scan(cmd.Context(), service.ScanRequest{
				Target: t,
				Flash:  flash,
				Search: model.ParseSearchTarget(search),
				Log:    logOn,
			})
			return a.print(res)
		},
	}
	cmd.Flags().StringVar(&flash, "flash", "", "file system to list (default operation.default_file_system)")
	cmd.Flags().StringVar(&search, "search", "no", "file name to search, or no/skip/clean")
	cmd.Flags().BoolVar(&logOn, "log", false, "write a per-operation log file")
	return cmd
}
