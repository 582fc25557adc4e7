package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/internal/service"
)

func newCopyCommand(a *app) *cobra.Command {
	var (
		direction  string
		localPath  string
		sourceFile string
		devicePath string
		destFile   string
		fileSystem string
		disableMD5 bool
		logOn      bool
	)
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "copy a file to or from the device with space and checksum checks",
		Example: `  flashctl copy --host 10.1.1.1 --direction put --local-path ./images --source-file ios.bin
  flashctl copy --host 10.1.1.1 --direction get --source-file config.text --local-path ./backup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.flags.target()
			if err != nil {
				return err
			}
			spec := model.TransferSpec{
				Direction:             model.Direction(strings.ToLower(strings.TrimSpace(direction))),
				LocalDir:              model.ParseOpt(localPath),
				SourceFile:            strings.TrimSpace(sourceFile),
				DeviceDir:             model.ParseOpt(devicePath),
				DestFile:              model.ParseOpt(destFile),
				FileSystem:            model.ParseOpt(fileSystem),
				DisableIntegrityCheck: disableMD5,
				Log:                   logOn,
			}
			return a.print(a.ops.Copy(cmd.Context(), service.CopyRequest{Target: t, Spec: spec}))
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&direction, "direction", "put", "put (local to device) or get (device to local)")
	fs.StringVar(&localPath, "local-path", "no", "local directory")
	fs.StringVar(&sourceFile, "source-file", "", "file to copy; empty means nothing to transfer")
	fs.StringVar(&devicePath, "device-path", "no", "directory on the device file system")
	fs.StringVar(&destFile, "dest-file", "no", "destination file name (default source file)")
	fs.StringVar(&fileSystem, "file-system", "no", "device file system (default operation.default_file_system)")
	fs.BoolVar(&disableMD5, "disable-md5", false, "skip checksum comparison when the destination exists")
	fs.BoolVar(&logOn, "log", false, "write a per-operation log file")
	return cmd
}
