package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/flashops/internal/util"
)

// ErrPromptTimeout 在节奏放大后的超时内未等到设备提示符
var ErrPromptTimeout = errors.New("timed out waiting for device prompt")

// CommandResult 命令执行结果
type CommandResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	Prompt   string        `json:"prompt"`
	Duration time.Duration `json:"duration"`
}

// AutoInteraction 自动交互对
// 当输出包含 Expect（大小写不敏感）时自动发送 Send；Send 为单个空格时不追加换行（分页）
type AutoInteraction struct {
	Expect string
	Send   string
	// Once 仅在单条命令内响应一次（如 enable 密码）
	Once bool
}

// ShellOptions 交互式 shell 选项
type ShellOptions struct {
	PromptSuffixes   []string
	AutoInteractions []AutoInteraction
}

// Shell 单个 PTY 交互会话；特权模式与配置模式状态在同一个 shell 内保持
type Shell struct {
	config   *Config
	session  *ssh.Session
	stdin    io.WriteCloser
	suffixes []string
	autos    []AutoInteraction

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	notify  chan struct{}

	base       string
	promptRe   *regexp.Regexp
	lastPrompt string
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[()][A-Za-z0-9]|\x1b[=>]`)

// OpenShell 打开 PTY shell 并识别设备提示符
func (c *Client) OpenShell(ctx context.Context, opts ShellOptions) (*Shell, error) {
	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// 兼容部分设备对终端类型的限制，依次尝试
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 200, 511, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	suffixes := opts.PromptSuffixes
	if len(suffixes) == 0 {
		suffixes = []string{">", "#"}
	}
	s := &Shell{
		config:   c.config,
		session:  session,
		stdin:    stdin,
		suffixes: suffixes,
		autos:    opts.AutoInteractions,
		notify:   make(chan struct{}, 1),
	}
	go s.readLoop(stdout)

	if err := s.detectPrompt(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Shell) readLoop(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
			s.signal()
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			s.signal()
			return
		}
	}
}

func (s *Shell) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Shell) snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...), s.readErr
}

func (s *Shell) reset() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}

// waitQuiet 等待输出静默 settle 时长，最长 limit
func (s *Shell) waitQuiet(ctx context.Context, settle, limit time.Duration) error {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	quiet := time.NewTimer(settle)
	defer quiet.Stop()
	for {
		select {
		case <-s.notify:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(settle)
		case <-quiet.C:
			return nil
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// detectPrompt 等待首个提示符；设备未主动输出时发送回车诱导
func (s *Shell) detectPrompt(ctx context.Context) error {
	p := s.config.Pacing
	settle := p.Scale(s.config.Settle)
	deadline := time.Now().Add(p.Scale(s.config.ReadTimeout))
	induceEvery := p.Scale(time.Second)
	lastInduce := time.Now()

	for time.Now().Before(deadline) {
		if err := s.waitQuiet(ctx, settle, induceEvery); err != nil {
			return err
		}
		raw, rerr := s.snapshot()
		line := lastLine(sanitize(string(raw)))
		if base, ok := s.splitPrompt(line); ok {
			s.base = base
			s.promptRe = buildPromptRe(base, s.suffixes)
			s.lastPrompt = line
			s.reset()
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("shell closed before prompt: %w", rerr)
		}
		if time.Since(lastInduce) >= induceEvery {
			if _, err := io.WriteString(s.stdin, "\n"); err != nil {
				return fmt.Errorf("failed to write prompt inducer: %w", err)
			}
			lastInduce = time.Now()
		}
	}
	return ErrPromptTimeout
}

// splitPrompt 判断是否为提示符行并返回主机名部分
func (s *Shell) splitPrompt(line string) (string, bool) {
	if line == "" || strings.ContainsAny(line, " \t") {
		return "", false
	}
	for _, suf := range s.suffixes {
		if strings.HasSuffix(line, suf) && len(line) > len(suf) {
			base := strings.TrimSuffix(line, suf)
			// 配置模式提示符 Router(config)#
			if i := strings.Index(base, "("); i > 0 {
				base = base[:i]
			}
			return base, true
		}
	}
	return "", false
}

func buildPromptRe(base string, suffixes []string) *regexp.Regexp {
	alts := make([]string, 0, len(suffixes))
	for _, suf := range suffixes {
		alts = append(alts, regexp.QuoteMeta(suf))
	}
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(\([^)]*\))?(` + strings.Join(alts, "|") + `)$`)
}

// Base 返回设备主机名（提示符去掉模式与后缀）
func (s *Shell) Base() string {
	return s.base
}

// Prompt 返回最近一次看到的完整提示符
func (s *Shell) Prompt() string {
	return s.lastPrompt
}

// Privileged 当前是否处于特权模式
func (s *Shell) Privileged() bool {
	return strings.HasSuffix(s.lastPrompt, "#")
}

// Send 发送一条命令并阻塞到提示符返回或超时
func (s *Shell) Send(ctx context.Context, command string, extra ...AutoInteraction) (*CommandResult, error) {
	start := time.Now()
	result := &CommandResult{Command: command}
	p := s.config.Pacing
	timeout := p.Scale(s.config.ReadTimeout)

	// 丢弃上一条命令之后的残留输出
	if err := s.waitQuiet(ctx, p.Scale(s.config.Settle), timeout); err != nil {
		return result, err
	}
	s.reset()

	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return result, fmt.Errorf("failed to send command: %w", err)
	}

	autos := append(append([]AutoInteraction(nil), extra...), s.autos...)
	used := make([]bool, len(autos))
	scanned := 0

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		raw, rerr := s.snapshot()
		text := string(raw)

		if line := lastLine(sanitize(text)); s.promptRe.MatchString(line) {
			s.lastPrompt = line
			result.Prompt = line
			result.Output = s.cleanOutput(raw, command)
			result.Duration = time.Since(start)
			return result, nil
		}

		if scanned < len(text) {
			if replied, err := s.autoRespond(text[scanned:], autos, used); err != nil {
				return result, err
			} else if replied {
				scanned = len(text)
			}
		}

		if rerr != nil {
			result.Output = s.cleanOutput(raw, command)
			result.Duration = time.Since(start)
			return result, fmt.Errorf("shell closed: %w", rerr)
		}

		select {
		case <-s.notify:
		case <-timer.C:
			result.Output = s.cleanOutput(raw, command)
			result.Duration = time.Since(start)
			return result, fmt.Errorf("%w after %s (command %q)", ErrPromptTimeout, timeout, command)
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		}
	}
}

func (s *Shell) autoRespond(fresh string, autos []AutoInteraction, used []bool) (bool, error) {
	lower := strings.ToLower(fresh)
	for i, a := range autos {
		if a.Expect == "" || (a.Once && used[i]) {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(a.Expect)) {
			continue
		}
		reply := a.Send
		if reply != " " {
			reply += "\n"
		}
		if _, err := io.WriteString(s.stdin, reply); err != nil {
			return false, fmt.Errorf("failed to send auto interaction: %w", err)
		}
		used[i] = true
		return true, nil
	}
	return false, nil
}

// cleanOutput 去除回显行与末尾提示符
func (s *Shell) cleanOutput(raw []byte, command string) string {
	text := sanitize(util.DecodeDeviceOutput(raw, s.config.OutputEncoding))
	lines := strings.Split(text, "\n")

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && command != "" && strings.HasSuffix(strings.TrimSpace(lines[0]), strings.TrimSpace(command)) {
		lines = lines[1:]
	}
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || (s.promptRe != nil && s.promptRe.MatchString(last)) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.Join(lines, "\n")
}

// Exit 发送退出命令后直接关闭，不等待提示符
func (s *Shell) Exit(command string) error {
	if command != "" {
		_, _ = io.WriteString(s.stdin, command+"\n")
	}
	return s.Close()
}

// Close 关闭 shell 通道
func (s *Shell) Close() error {
	_ = s.stdin.Close()
	err := s.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// sanitize 去除 ANSI 控制序列并统一换行
func sanitize(s string) string {
	s = ansiRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
