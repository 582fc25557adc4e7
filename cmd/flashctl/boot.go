package main

import (
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/internal/service"
)

func newBootCommand(a *app) *cobra.Command {
	var (
		flash     string
		image     string
		bootCmd   string
		chgLoader string
		logOn     bool
	)
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "set or clear the boot system image",
		Example: `  flashctl boot --host 10.1.1.1 --image c2960-lanbasek9-mz.bin
  flashctl boot --host 10.1.1.1 --image clean
  flashctl boot --host 10.1.1.1 --chg-loader '{"boot_image":"ios.bin","boot_system_cmd":"boot system flash:"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.flags.target()
			if err != nil {
				return err
			}
			change, err := model.ResolveBootChange(image, bootCmd, chgLoader)
			if err != nil {
				return err
			}
			return a.print(a.ops.Boot(cmd.Context(), service.BootRequest{
				Target: t,
				Flash:  flash,
				Boot:   change,
				Log:    logOn,
			}))
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flash, "flash", "", "file system holding the image")
	fs.StringVar(&image, "image", "no", "image name, clean to remove boot lines, no for no change")
	fs.StringVar(&bootCmd, "boot-cmd", "", "boot command template, {image} is replaced")
	fs.StringVar(&chgLoader, "chg-loader", "no", "JSON {\"boot_image\",\"boot_system_cmd\"}; overrides --image and --boot-cmd")
	fs.BoolVar(&logOn, "log", false, "write a per-operation log file")
	return cmd
}
