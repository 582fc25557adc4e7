package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/database"
	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/internal/service"
	"github.com/sshcollectorpro/flashops/pkg/logger"
)

// errOperationFailed 操作返回 success=false，进程以非零退出
var errOperationFailed = errors.New("operation failed")

// targetFlags 所有操作共用的连接参数
type targetFlags struct {
	host           string
	port           int
	username       string
	password       string
	enablePassword string
	platform       string
	sshConfig      string
	pacing         float64
}

func (f *targetFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.host, "host", "", "device address or ssh_config alias")
	fs.IntVar(&f.port, "port", 0, "ssh port (default ssh.port, or the ssh_config value)")
	fs.StringVarP(&f.username, "username", "u", "", "login user")
	fs.StringVarP(&f.password, "password", "p", "", "login password (or FLASHOPS_PASSWORD)")
	fs.StringVar(&f.enablePassword, "enable-password", "", "enable secret (or FLASHOPS_ENABLE_PASSWORD)")
	fs.StringVar(&f.platform, "platform", "cisco_ios", "device platform")
	fs.StringVar(&f.sshConfig, "ssh-config", "no", "ssh_config file, \"no\" to disable")
	fs.Float64Var(&f.pacing, "pacing", 0, "pacing factor (default operation.pacing_factor)")
}

func (f *targetFlags) target() (service.Target, error) {
	if strings.TrimSpace(f.host) == "" {
		return service.Target{}, fmt.Errorf("--host is required")
	}
	t := service.Target{
		Host:           strings.TrimSpace(f.host),
		Port:           f.port,
		Username:       f.username,
		Password:       f.password,
		EnablePassword: f.enablePassword,
		Platform:       strings.TrimSpace(f.platform),
		SSHConfig:      model.ParseOpt(f.sshConfig),
		Pacing:         f.pacing,
	}
	if t.Password == "" {
		t.Password = os.Getenv("FLASHOPS_PASSWORD")
	}
	if t.EnablePassword == "" {
		t.EnablePassword = os.Getenv("FLASHOPS_ENABLE_PASSWORD")
	}
	return t, nil
}

// app 命令共享的运行时状态
type app struct {
	configPath string
	flags      targetFlags
	out        io.Writer

	cfg *config.Config
	ops *service.Operations
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:           "flashctl",
		Short:         "network device flash and boot manager",
		Long:          `flashctl scans device flash, copies files with safety checks and changes the boot loader over SSH.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./configs/config.yaml)")
	a.flags.register(cmd.PersistentFlags())

	cmd.AddCommand(
		newScanCommand(a),
		newCopyCommand(a),
		newBootCommand(a),
		newServeCommand(a),
		newVersionCommand(a),
	)
	return cmd
}

// execute 执行命令并关闭审计库；RunE 返回错误时 cobra 不会执行 PostRun
func execute(ctx context.Context, cmd *cobra.Command) error {
	defer database.Close()
	return cmd.ExecuteContext(ctx)
}

// setup 加载配置并初始化日志、审计库与归档
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logConfig(cfg)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var audit *service.Audit
	if cfg.Database.SQLite.Path != "" {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.Warnf("Audit journal disabled: %v", err)
		} else {
			audit = service.NewAudit(database.GetDB())
		}
	}

	// nil 指针不能直接赋给接口
	var archive service.Archiver
	if ar := service.NewArchiver(cfg.Storage.Minio); ar != nil {
		archive = ar
	}

	a.cfg = cfg
	a.ops = service.NewOperations(cfg, audit, archive)
	return nil
}

func logConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

// print 输出结果 JSON，失败时返回 errOperationFailed
func (a *app) print(res model.Result) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return errOperationFailed
	}
	return nil
}
