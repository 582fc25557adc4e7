package simulate

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
)

const invalidInput = "% Invalid input detected at '^' marker.\r\n"

type cliMode int

const (
	modeUser cliMode = iota
	modeEnable
	modeConfig
)

// runShell IOS 风格交互：回显输入、提示符不带换行
func (d *Device) runShell(channel ssh.Channel) {
	mode := modeUser
	prompt := func() string {
		switch mode {
		case modeEnable:
			return d.cfg.Hostname + "#"
		case modeConfig:
			return d.cfg.Hostname + "(config)#"
		}
		return d.cfg.Hostname + ">"
	}
	write := func(s string) { _, _ = io.WriteString(channel, s) }

	write("\r\n" + prompt())
	reader := bufio.NewReader(channel)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		cmd := strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
		// 终端回显
		write(cmd + "\r\n")
		if cmd == "" {
			write(prompt())
			continue
		}
		d.record(cmd)

		if mode == modeConfig {
			if equalAny(cmd, "end", "exit") {
				mode = modeEnable
			} else {
				write(d.configCommand(cmd))
			}
			write(prompt())
			continue
		}

		switch {
		case equalAny(cmd, "exit", "quit", "logout"):
			return
		case strings.EqualFold(cmd, "enable"):
			if mode == modeUser {
				if d.cfg.EnableSecret != "" {
					write("Password: ")
					pwd, _ := reader.ReadString('\n')
					if strings.TrimSpace(pwd) != d.cfg.EnableSecret {
						write("\r\n% Access denied\r\n\r\n")
						write(prompt())
						continue
					}
					write("\r\n")
				}
				mode = modeEnable
			}
		case strings.HasPrefix(cmd, "terminal "):
		case mode == modeUser:
			// 非特权模式仅支持 dir
			if strings.HasPrefix(cmd, "dir") {
				write(d.dirCommand(strings.TrimSpace(strings.TrimPrefix(cmd, "dir"))))
			} else {
				write(invalidInput)
			}
		case strings.HasPrefix(cmd, "dir"):
			write(d.dirCommand(strings.TrimSpace(strings.TrimPrefix(cmd, "dir"))))
		case strings.HasPrefix(cmd, "verify /md5 "):
			write(d.verifyCommand(strings.TrimSpace(strings.TrimPrefix(cmd, "verify /md5 "))))
		case equalAny(cmd, "configure terminal", "conf t"):
			write("Enter configuration commands, one per line.  End with CNTL/Z.\r\n")
			mode = modeConfig
		case equalAny(cmd, "write memory", "write", "copy running-config startup-config"):
			d.mu.Lock()
			d.startup = append([]string(nil), d.running...)
			d.mu.Unlock()
			write("Building configuration...\r\n[OK]\r\n")
		case strings.HasPrefix(cmd, "show running-config"):
			for _, l := range d.RunningBoot() {
				write(l + "\r\n")
			}
		default:
			write(invalidInput)
		}
		write(prompt())
	}
}

func (d *Device) configCommand(cmd string) string {
	switch {
	case strings.EqualFold(cmd, "no boot system"):
		d.mu.Lock()
		d.running = nil
		d.mu.Unlock()
		return ""
	case strings.HasPrefix(cmd, "boot system "):
		if d.cfg.RejectBoot {
			return invalidInput
		}
		d.mu.Lock()
		d.running = append(d.running, cmd)
		d.mu.Unlock()
		return ""
	}
	return invalidInput
}

// splitPath 将 flash:/dir/file 拆为文件系统与相对路径
func (d *Device) splitPath(arg string) (string, string, bool) {
	if arg == "" {
		return d.cfg.FileSystem, "", true
	}
	fs, rel, ok := strings.Cut(arg, ":")
	if !ok {
		return d.cfg.FileSystem, strings.Trim(arg, "/"), true
	}
	if fs+":" != d.cfg.FileSystem {
		return fs + ":", "", false
	}
	return d.cfg.FileSystem, strings.Trim(rel, "/"), true
}

func (d *Device) dirCommand(arg string) string {
	fs, rel, ok := d.splitPath(arg)
	if !ok {
		return fmt.Sprintf("%%Error opening %s/ (No such device)\r\n", fs)
	}
	full := filepath.Join(d.cfg.FlashDir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Sprintf("%%Error opening %s/%s (No such file or directory)\r\n", fs, rel)
	}

	var entries []os.FileInfo
	if info.IsDir() {
		des, err := os.ReadDir(full)
		if err != nil {
			return fmt.Sprintf("%%Error opening %s/%s (Permission denied)\r\n", fs, rel)
		}
		for _, de := range des {
			if fi, err := de.Info(); err == nil {
				entries = append(entries, fi)
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	} else {
		entries = []os.FileInfo{info}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Directory of %s/%s\r\n\r\n", fs, rel)
	for i, fi := range entries {
		perm := "-rw-"
		if fi.IsDir() {
			perm = "drw-"
		}
		fmt.Fprintf(&b, "%5d  %s %12d  %s  %s\r\n", i+1, perm, fi.Size(),
			fi.ModTime().UTC().Format("Jan 02 2006 15:04:05 -07:00"), fi.Name())
	}
	used := d.usedBytes()
	fmt.Fprintf(&b, "\r\n%d bytes total (%d bytes free)\r\n", d.cfg.Capacity, max(d.cfg.Capacity-used, 0))
	return b.String()
}

func (d *Device) usedBytes() int64 {
	var used int64
	_ = filepath.Walk(d.cfg.FlashDir, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			used += fi.Size()
		}
		return nil
	})
	return used
}

func (d *Device) verifyCommand(arg string) string {
	fs, rel, ok := d.splitPath(arg)
	if !ok || rel == "" {
		return fmt.Sprintf("%%Error opening %s (No such file or directory)\r\n", arg)
	}
	f, err := os.Open(filepath.Join(d.cfg.FlashDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Sprintf("%%Error opening %s/%s (No such file or directory)\r\n", fs, rel)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Sprintf("%%Error reading %s/%s (I/O error)\r\n", fs, rel)
	}
	return fmt.Sprintf("..........Done!\r\nverify /md5 (%s%s) = %s\r\n", fs, rel, hex.EncodeToString(h.Sum(nil)))
}

func equalAny(s string, opts ...string) bool {
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(s), o) {
			return true
		}
	}
	return false
}
