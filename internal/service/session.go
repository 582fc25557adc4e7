package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/flashops/addone/platform"
	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/pkg/logger"
	"github.com/sshcollectorpro/flashops/pkg/ssh"
)

// 会话层返回给调用方的消息
const (
	msgConnected       = "Successful connection"
	msgConnectionError = "connection error: "
)

// outputLogLines 调试日志中每条命令输出保留的首尾行数
const outputLogLines = 10

// DeviceSession 单台设备上的一个交互会话
type DeviceSession interface {
	Platform() string
	Address() string
	Dialect() platform.Defaults
	// SendCommand 执行一条命令；设备返回错误提示时返回 *CommandError
	SendCommand(ctx context.Context, command string) (string, error)
	SendConfig(ctx context.Context, lines []string) (bool, string)
	Persist(ctx context.Context) (bool, string)
	Upload(ctx context.Context, localPath, remotePath string) (int64, error)
	Download(ctx context.Context, remotePath, localPath string) (int64, error)
}

// ConnectParams 连接参数
type ConnectParams struct {
	Platform       string
	Address        string
	Port           int
	User           string
	Password       string
	EnablePassword string
	Pacing         float64
	// Profile ssh_config 文件路径
	Profile model.OptString
}

// SessionManager 会话管理器，负责建立、使用和释放设备会话
type SessionManager struct {
	cfg *config.Config
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg *config.Config) *SessionManager {
	return &SessionManager{cfg: cfg}
}

// Session 一个已登录的设备会话：一条 SSH 连接和一个 PTY shell
type Session struct {
	platform   string
	address    string
	user       string
	dialect    platform.Defaults
	client     *ssh.Client
	shell      *ssh.Shell
	privileged bool
	log        *logrus.Entry
	closeOnce  sync.Once
}

func (m *SessionManager) sshConfig(pacing float64) *ssh.Config {
	c := ssh.DefaultConfig()
	if pacing <= 0 && m.cfg != nil {
		pacing = m.cfg.Operation.PacingFactor
	}
	if pacing > 0 {
		c.Pacing = ssh.Pacing(pacing)
	}
	if m.cfg == nil {
		return c
	}
	sc := m.cfg.SSH
	if sc.ConnectTimeout > 0 {
		c.ConnectTimeout = sc.ConnectTimeout
	}
	if sc.ReadTimeout > 0 {
		c.ReadTimeout = sc.ReadTimeout
	}
	if sc.SettleMS > 0 {
		c.Settle = time.Duration(sc.SettleMS) * time.Millisecond
	}
	if sc.KeepAliveInterval > 0 {
		c.KeepAlive = sc.KeepAliveInterval
	}
	if sc.TransferTimeout > 0 {
		c.TransferTimeout = sc.TransferTimeout
	}
	if sc.ChannelRetries > 0 {
		c.ChannelRetries = sc.ChannelRetries
	}
	c.OutputEncoding = sc.OutputEncoding
	return c
}

// Connect 建立会话，所有错误折叠为 (nil, false, "connection error: ...")
func (m *SessionManager) Connect(ctx context.Context, params ConnectParams, log *logrus.Entry) (*Session, bool, string) {
	if log == nil {
		log = logger.Nop().Entry()
	}
	log = log.WithFields(logrus.Fields{"device": params.Address, "platform": params.Platform})

	s, err := m.connect(ctx, params, log)
	if err != nil {
		log.WithError(err).Warn("Device connection failed")
		return nil, false, msgConnectionError + describe(err)
	}
	log.Info("Device connected")
	return s, true, msgConnected
}

func (m *SessionManager) connect(ctx context.Context, params ConnectParams, log *logrus.Entry) (*Session, error) {
	if strings.TrimSpace(params.Address) == "" {
		return nil, &ConnectionError{Err: fmt.Errorf("device address is empty")}
	}
	dialect := Dialect(m.cfg, params.Platform)

	info := &ssh.ConnectionInfo{
		Host:     params.Address,
		Port:     params.Port,
		Username: params.User,
		Password: params.Password,
	}
	if path, ok := params.Profile.Get(); ok {
		info.ProfileFile = path
	} else if info.Port == 0 && m.cfg != nil {
		info.Port = m.cfg.SSH.Port
	}

	client := ssh.NewClient(m.sshConfig(params.Pacing))
	if err := client.Connect(ctx, info); err != nil {
		return nil, &ConnectionError{Err: err}
	}

	autos := make([]ssh.AutoInteraction, 0, len(dialect.AutoInteractions))
	for _, a := range dialect.AutoInteractions {
		autos = append(autos, ssh.AutoInteraction{Expect: a.Expect, Send: a.Send})
	}
	shell, err := client.OpenShell(ctx, ssh.ShellOptions{
		PromptSuffixes:   dialect.PromptSuffixes,
		AutoInteractions: autos,
	})
	if err != nil {
		_ = client.Close()
		return nil, &ConnectionError{Err: err}
	}

	s := &Session{
		platform: params.Platform,
		address:  params.Address,
		user:     params.User,
		dialect:  dialect,
		client:   client,
		shell:    shell,
		log:      log,
	}
	s.privileged = shell.Privileged()

	for _, cmd := range dialect.SessionPrep {
		out, err := s.exec(ctx, cmd)
		if err != nil {
			s.close()
			return nil, &ConnectionError{Err: fmt.Errorf("session prep %q: %w", cmd, err)}
		}
		// 部分设备不支持 terminal width 等命令，忽略即可
		if s.rejected(out) {
			log.WithField("command", cmd).Debug("Session prep command rejected")
		}
	}

	if params.EnablePassword != "" && !s.privileged {
		if err := s.enable(ctx, params.EnablePassword); err != nil {
			s.close()
			return nil, &ConnectionError{Err: err}
		}
	}
	return s, nil
}

// enable 提权，密码提示只应答一次
func (s *Session) enable(ctx context.Context, password string) error {
	cmd := s.dialect.EnableCLI
	if cmd == "" {
		cmd = "enable"
	}
	expect := s.dialect.EnablePrompt
	if expect == "" {
		expect = "password"
	}
	if _, err := s.exec(ctx, cmd, ssh.AutoInteraction{Expect: expect, Send: password, Once: true}); err != nil {
		return fmt.Errorf("enable failed: %w", err)
	}
	if !s.shell.Privileged() {
		return fmt.Errorf("enable failed: privileged prompt not reached (prompt %q)", s.shell.Prompt())
	}
	s.privileged = true
	return nil
}

// Disconnect 释放会话（尽力而为，可重复调用）
func (m *SessionManager) Disconnect(s *Session) {
	if s == nil {
		return
	}
	s.close()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.shell != nil {
			_ = s.shell.Exit(s.dialect.ExitCLI)
		}
		if s.client != nil {
			_ = s.client.Close()
		}
		s.log.Info("Device disconnected")
	})
}

// SendConfig 见 Session.SendConfig
func (m *SessionManager) SendConfig(ctx context.Context, s DeviceSession, lines []string) (bool, string) {
	return s.SendConfig(ctx, lines)
}

// Persist 见 Session.Persist
func (m *SessionManager) Persist(ctx context.Context, s DeviceSession) (bool, string) {
	return s.Persist(ctx)
}

// Act 在会话内执行的操作，返回负载、是否成功与消息
type Act func(ctx context.Context, s DeviceSession) (interface{}, bool, string)

// WithSession 建立会话执行 act，结束后恰好断开一次；第二个返回值表示是否连接成功
func (m *SessionManager) WithSession(ctx context.Context, params ConnectParams, log *logrus.Entry, act Act) (model.Result, bool) {
	s, ok, msg := m.Connect(ctx, params, log)
	if !ok {
		return model.Result{Success: false, Message: msg}, false
	}
	defer m.Disconnect(s)

	payload, success, message := act(ctx, s)
	return model.Result{Success: success, Message: message, Payload: payload}, true
}

func (s *Session) Platform() string           { return s.platform }
func (s *Session) Address() string            { return s.address }
func (s *Session) Dialect() platform.Defaults { return s.dialect }

// Privileged 是否处于特权模式
func (s *Session) Privileged() bool { return s.privileged }

func (s *Session) exec(ctx context.Context, command string, extra ...ssh.AutoInteraction) (string, error) {
	res, err := s.shell.Send(ctx, command, extra...)
	if err != nil {
		s.log.WithError(err).WithField("command", command).Warn("Command failed")
		// 超时后会话状态不可预期，直接关闭传输
		if isTimeout(err) {
			_ = s.client.Close()
		}
		return "", err
	}
	logger.DebugCommandOutput(s.log, command, res.Output, outputLogLines)
	return res.Output, nil
}

// rejected 输出是否包含方言中的错误提示
func (s *Session) rejected(output string) bool {
	lower := strings.ToLower(output)
	for _, hint := range s.dialect.ErrorHints {
		if hint != "" && strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

// SendCommand 执行一条命令
func (s *Session) SendCommand(ctx context.Context, command string) (string, error) {
	out, err := s.exec(ctx, command)
	if err != nil {
		return "", &ConnectionError{Err: err}
	}
	if s.rejected(out) {
		return out, &CommandError{Command: command, Output: out}
	}
	return out, nil
}

// SendConfig 进入配置模式逐行下发，任一行被拒绝即停止；总会退出配置模式
func (s *Session) SendConfig(ctx context.Context, lines []string) (bool, string) {
	if _, err := s.SendCommand(ctx, s.dialect.ConfigModeCLI); err != nil {
		return false, failureDetail(err)
	}

	ok, msg := true, "configuration applied"
	for _, line := range lines {
		if _, err := s.SendCommand(ctx, line); err != nil {
			ok, msg = false, failureDetail(err)
			break
		}
	}

	if _, err := s.exec(ctx, s.dialect.ConfigExitCLI); err != nil && ok {
		return false, describe(err)
	}
	return ok, msg
}

// Persist 保存运行配置
func (s *Session) Persist(ctx context.Context) (bool, string) {
	out, err := s.SendCommand(ctx, s.dialect.SaveCLI)
	if err != nil {
		return false, failureDetail(err)
	}
	if strings.Contains(strings.ToUpper(out), "[OK]") {
		return true, "configuration saved"
	}
	return true, "configuration saved (no confirmation from device)"
}

// Upload 通过 SFTP 上传
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	s.log.WithFields(logrus.Fields{"local": localPath, "remote": remotePath}).Info("Uploading file")
	return s.client.Upload(ctx, localPath, remotePath)
}

// Download 通过 SFTP 下载
func (s *Session) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	s.log.WithFields(logrus.Fields{"local": localPath, "remote": remotePath}).Info("Downloading file")
	return s.client.Download(ctx, remotePath, localPath)
}
