package simulate

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/flashops/pkg/logger"
)

// DeviceConfig 模拟设备配置
type DeviceConfig struct {
	Hostname     string   `mapstructure:"hostname"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	EnableSecret string   `mapstructure:"enable_secret"`
	FlashDir     string   `mapstructure:"flash_dir"`
	FileSystem   string   `mapstructure:"file_system"`
	Capacity     int64    `mapstructure:"capacity"`
	BootLines    []string `mapstructure:"boot_lines"`
	// RejectBoot 为 true 时 boot system 命令返回 Invalid input，用于验证失败分支
	RejectBoot bool `mapstructure:"reject_boot"`
}

// LoadConfig 读取模拟设备 YAML 配置
func LoadConfig(path string) (*DeviceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("hostname", "Router")
	v.SetDefault("password", "nova")
	v.SetDefault("file_system", "flash:")
	v.SetDefault("capacity", 255744000)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg DeviceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Device 单台模拟设备：SSH CLI + SFTP 子系统，flash 由本地目录承载
type Device struct {
	cfg      DeviceConfig
	hostKey  ssh.Signer
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	running  []string
	startup  []string
	commands []string
	sessions int
}

// NewDevice 创建模拟设备（尚未监听）
func NewDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "Router"
	}
	if cfg.FileSystem == "" {
		cfg.FileSystem = "flash:"
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 255744000
	}
	if cfg.FlashDir == "" {
		return nil, fmt.Errorf("flash_dir is required")
	}
	if err := os.MkdirAll(cfg.FlashDir, 0755); err != nil {
		return nil, err
	}

	// 测试场景每次启动生成内存 host key
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	return &Device{
		cfg:     cfg,
		hostKey: signer,
		conns:   make(map[net.Conn]struct{}),
		running: append([]string(nil), cfg.BootLines...),
		startup: append([]string(nil), cfg.BootLines...),
	}, nil
}

// Start 开始监听，addr 形如 127.0.0.1:0
func (d *Device) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	d.listener = ln
	logger.WithField("addr", ln.Addr().String()).Debug("Simulate: device listening")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			d.mu.Lock()
			d.conns[conn] = struct{}{}
			d.mu.Unlock()
			d.wg.Add(1)
			go func(c net.Conn) {
				defer d.wg.Done()
				d.handleConn(c)
				d.mu.Lock()
				delete(d.conns, c)
				d.mu.Unlock()
			}(conn)
		}
	}()
	return nil
}

// Stop 停止监听，断开残留连接并等待结束
func (d *Device) Stop() {
	if d.listener != nil {
		_ = d.listener.Close()
	}
	d.mu.Lock()
	for c := range d.conns {
		_ = c.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Addr 返回监听地址
func (d *Device) Addr() string {
	return d.listener.Addr().String()
}

// Port 返回监听端口
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// FlashDir 返回承载 flash 的本地目录
func (d *Device) FlashDir() string {
	return d.cfg.FlashDir
}

// RunningBoot 当前 running-config 中的 boot system 行
func (d *Device) RunningBoot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.running...)
}

// StartupBoot 已保存到 startup-config 的 boot system 行
func (d *Device) StartupBoot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.startup...)
}

// Commands 返回收到的全部 CLI 命令（不含密码）
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Sessions 返回已结束的 shell 会话数
func (d *Device) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

func (d *Device) record(cmd string) {
	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	d.mu.Unlock()
}

func (d *Device) checkCredentials(user, pass string) bool {
	if d.cfg.Username != "" && user != d.cfg.Username {
		return false
	}
	return pass == d.cfg.Password
}

func (d *Device) handleConn(nc net.Conn) {
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if d.checkCredentials(meta.User(), string(password)) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && d.checkCredentials(meta.User(), answers[0]) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	srvCfg.AddHostKey(d.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.WithField("error", err).Debug("Simulate: handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleSession(channel, requests)
		}()
	}
}

func (d *Device) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			d.runShell(channel)
			d.mu.Lock()
			d.sessions++
			d.mu.Unlock()
			return
		case "subsystem":
			if subsystemName(req.Payload) != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			d.serveSFTP(channel)
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func subsystemName(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload[:4])
	if int(n) > len(payload)-4 {
		return ""
	}
	return string(payload[4 : 4+n])
}

func (d *Device) serveSFTP(channel ssh.Channel) {
	fs := &flashFS{root: d.cfg.FlashDir}
	server := sftp.NewRequestServer(channel, sftp.Handlers{
		FileGet:  fs,
		FilePut:  fs,
		FileCmd:  fs,
		FileList: fs,
	})
	if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
		logger.WithField("error", err).Debug("Simulate: sftp server ended")
	}
	_ = server.Close()
}
