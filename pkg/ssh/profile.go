package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
)

// target 解析后的连接目标
type target struct {
	host           string
	port           int
	user           string
	identityFiles  []string
	connectTimeout time.Duration
	strictHostKey  bool
	knownHostsFile string
	jump           *target
}

// Profile ssh_config 中某个 Host 块解析出的连接参数
type Profile struct {
	HostName              string
	Port                  int
	User                  string
	IdentityFile          string
	ConnectTimeout        time.Duration
	ProxyJump             string
	ProxyCommand          string
	StrictHostKeyChecking bool
	UserKnownHostsFile    string
}

// LoadProfile 读取 ssh_config 文件并解析 alias 对应的配置
func LoadProfile(path, alias string) (*Profile, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return profileFor(cfg, alias)
}

func decodeFile(path string) (*ssh_config.Config, error) {
	f, err := os.Open(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh config %s: %w", path, err)
	}
	return cfg, nil
}

func profileFor(cfg *ssh_config.Config, alias string) (*Profile, error) {
	get := func(key string) string {
		v, err := cfg.Get(alias, key)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}

	p := &Profile{
		HostName:           get("HostName"),
		User:               get("User"),
		IdentityFile:       expandHome(get("IdentityFile")),
		ProxyJump:          get("ProxyJump"),
		ProxyCommand:       get("ProxyCommand"),
		UserKnownHostsFile: expandHome(get("UserKnownHostsFile")),
	}
	p.StrictHostKeyChecking = strings.EqualFold(get("StrictHostKeyChecking"), "yes")

	if v := get("Port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid Port %q for host %s", v, alias)
		}
		p.Port = port
	}
	if v := get("ConnectTimeout"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ConnectTimeout %q for host %s", v, alias)
		}
		p.ConnectTimeout = time.Duration(sec) * time.Second
	}
	return p, nil
}

// resolveTarget 合并连接参数与 ssh_config；显式给出的端口与用户名优先
func resolveTarget(info *ConnectionInfo) (*target, error) {
	t := &target{
		host: info.Host,
		port: info.Port,
		user: info.Username,
	}
	if info.KeyFile != "" {
		t.identityFiles = append(t.identityFiles, expandHome(info.KeyFile))
	}
	if info.ProfileFile == "" {
		if t.port == 0 {
			t.port = 22
		}
		return t, nil
	}

	cfg, err := decodeFile(info.ProfileFile)
	if err != nil {
		return nil, err
	}

	p, err := profileFor(cfg, info.Host)
	if err != nil {
		return nil, err
	}
	if p.ProxyCommand != "" && p.ProxyJump == "" {
		return nil, fmt.Errorf("ProxyCommand is not supported for host %s, use ProxyJump", info.Host)
	}
	applyProfile(t, p)

	if p.ProxyJump != "" {
		// 仅支持单跳
		hop := strings.Split(p.ProxyJump, ",")[0]
		jt, err := parseJump(hop)
		if err != nil {
			return nil, err
		}
		jp, err := profileFor(cfg, jt.host)
		if err != nil {
			return nil, err
		}
		applyProfile(jt, jp)
		if jt.user == "" {
			jt.user = t.user
		}
		t.jump = jt
	}
	return t, nil
}

func applyProfile(t *target, p *Profile) {
	if p.HostName != "" {
		t.host = p.HostName
	}
	if t.port == 0 {
		t.port = p.Port
	}
	if t.port == 0 {
		t.port = 22
	}
	if t.user == "" {
		t.user = p.User
	}
	if p.IdentityFile != "" {
		t.identityFiles = append(t.identityFiles, p.IdentityFile)
	}
	t.connectTimeout = p.ConnectTimeout
	t.strictHostKey = p.StrictHostKeyChecking
	t.knownHostsFile = p.UserKnownHostsFile
}

// parseJump 解析 [user@]host[:port]
func parseJump(spec string) (*target, error) {
	spec = strings.TrimSpace(spec)
	t := &target{}
	if at := strings.LastIndex(spec, "@"); at >= 0 {
		t.user = spec[:at]
		spec = spec[at+1:]
	}
	if host, port, ok := strings.Cut(spec, ":"); ok {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid ProxyJump port %q", port)
		}
		t.port = n
		spec = host
	}
	if spec == "" {
		return nil, fmt.Errorf("empty ProxyJump host")
	}
	t.host = spec
	return t, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
