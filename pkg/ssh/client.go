package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config SSH配置
type Config struct {
	ConnectTimeout time.Duration
	// ReadTimeout 单条命令等待提示符的基础时长（按 Pacing 放大）
	ReadTimeout time.Duration
	// Settle 输出静默多久视为设备已停止输出（按 Pacing 放大）
	Settle          time.Duration
	KeepAlive       time.Duration
	TransferTimeout time.Duration
	ChannelRetries  int
	OutputEncoding  string
	Pacing          Pacing
}

// DefaultConfig 返回可直接使用的默认配置
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:  15 * time.Second,
		ReadTimeout:     20 * time.Second,
		Settle:          150 * time.Millisecond,
		KeepAlive:       30 * time.Second,
		TransferTimeout: 10 * time.Minute,
		ChannelRetries:  4,
		Pacing:          DefaultPacing,
	}
}

// Client SSH客户端，持有唯一一条底层连接
type Client struct {
	config     *Config
	connection *ssh.Client
	jump       *ssh.Client
	mutex      sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	KeyFile  string `json:"key_file,omitempty"`
	// ProfileFile ssh_config 文件路径，为空表示不使用
	ProfileFile string `json:"profile_file,omitempty"`
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{config: config, done: make(chan struct{})}
}

// Config 返回客户端配置
func (c *Client) Config() *Config {
	return c.config
}

// Connect 连接设备；设置了 ProfileFile 时先按 ssh_config 解析目标
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.connection != nil {
		return fmt.Errorf("SSH connection already established")
	}

	target, err := resolveTarget(info)
	if err != nil {
		return err
	}

	timeout := c.config.ConnectTimeout
	if target.connectTimeout > 0 {
		timeout = target.connectTimeout
	}

	hostKeyCallback, err := target.hostKeyCallback()
	if err != nil {
		return err
	}
	sshConfig := legacyClientConfig(target.user, target.authMethods(info.Password), hostKeyCallback, timeout)
	address := net.JoinHostPort(target.host, strconv.Itoa(target.port))

	var conn net.Conn
	if target.jump != nil {
		jumpAddr := net.JoinHostPort(target.jump.host, strconv.Itoa(target.jump.port))
		jumpCfg := legacyClientConfig(target.jump.user, target.jump.authMethods(info.Password), hostKeyCallback, timeout)
		jc, err := dialSSH(ctx, jumpAddr, jumpCfg, timeout)
		if err != nil {
			return fmt.Errorf("failed to connect jump host %s: %w", jumpAddr, err)
		}
		conn, err = jc.Dial("tcp", address)
		if err != nil {
			jc.Close()
			return fmt.Errorf("failed to dial %s via jump host: %w", address, err)
		}
		c.jump = jc
	} else {
		dialer := &net.Dialer{Timeout: timeout}
		conn, err = dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("failed to dial: %w", err)
		}
	}

	// 握手阶段同样受超时约束
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		c.closeJump()
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)

	if c.config.KeepAlive > 0 {
		go c.keepAlive(c.config.KeepAlive)
	}
	return nil
}

func dialSSH(ctx context.Context, address string, cfg *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// legacyClientConfig 构建兼容老旧网络设备的客户端配置
func legacyClientConfig(user string, auth []ssh.AuthMethod, hostKey ssh.HostKeyCallback, timeout time.Duration) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
				"diffie-hellman-group1-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"ssh-rsa",
		},
	}
}

// passwordAuth 同时提供 password 与 keyboard-interactive，兼容 Cisco 等设备
func passwordAuth(password string) []ssh.AuthMethod {
	if password == "" {
		return nil
	}
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

// keyAuth 读取私钥文件；带口令或无法解析的私钥被忽略
func keyAuth(files []string) []ssh.AuthMethod {
	var signers []ssh.Signer
	for _, f := range files {
		if f == "" {
			continue
		}
		pem, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		return nil
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signers...)}
}

func (t *target) authMethods(password string) []ssh.AuthMethod {
	methods := keyAuth(t.identityFiles)
	return append(methods, passwordAuth(password)...)
}

func (t *target) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if !t.strictHostKey || t.knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(t.knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", t.knownHostsFile, err)
	}
	return cb, nil
}

// newSessionWithRetry 打开会话通道（带退避重试）
// 部分设备在登录后立即打开通道会返回 "administratively prohibited" 或 EOF
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	retries := c.config.ChannelRetries
	if retries < 0 {
		retries = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var sess *ssh.Session
	err := backoff.Retry(func() error {
		s, err := conn.NewSession()
		if err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "prohibited") || strings.Contains(msg, "open failed") || strings.Contains(msg, "eof") {
				return err
			}
			return backoff.Permanent(err)
		}
		sess = s
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to open session channel: %w", err)
	}
	return sess, nil
}

// ErrNotConnected 连接尚未建立或已关闭
var ErrNotConnected = errors.New("SSH connection not established")

// Close 关闭连接（可重复调用）
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var err error
	if c.connection != nil {
		err = c.connection.Close()
		c.connection = nil
	}
	c.closeJump()
	return err
}

func (c *Client) closeJump() {
	if c.jump != nil {
		_ = c.jump.Close()
		c.jump = nil
	}
}

// IsConnected 检查连接是否可用
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()
	if conn == nil {
		return false
	}
	_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// keepAlive 周期发送保活请求，直到 Close
func (c *Client) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mutex.Lock()
			conn := c.connection
			c.mutex.Unlock()
			if conn == nil {
				return
			}
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				return
			}
		}
	}
}
