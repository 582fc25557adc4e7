package service

import (
	"context"
	"strings"

	"github.com/sshcollectorpro/flashops/addone/platform"
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_ios"
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_iosxe"
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_nxos"
)

// fakeSession 记录下发的命令，按前缀返回预设输出
type fakeSession struct {
	platform string
	dialect  platform.Defaults
	outputs  map[string]string
	rejects  map[string]bool

	commands   []string
	configSets [][]string
	persists   int
	configOK   bool
	configMsg  string
	persistOK  bool
}

func newFakeSession(platformName string) *fakeSession {
	return &fakeSession{
		platform:  platformName,
		dialect:   platform.Get(platformName).Defaults(),
		outputs:   map[string]string{},
		rejects:   map[string]bool{},
		configOK:  true,
		persistOK: true,
	}
}

func (f *fakeSession) Platform() string           { return f.platform }
func (f *fakeSession) Address() string            { return "10.0.0.1" }
func (f *fakeSession) Dialect() platform.Defaults { return f.dialect }

func (f *fakeSession) SendCommand(_ context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	out := f.outputs[command]
	if f.rejects[command] {
		return out, &CommandError{Command: command, Output: out}
	}
	return out, nil
}

func (f *fakeSession) SendConfig(_ context.Context, lines []string) (bool, string) {
	f.configSets = append(f.configSets, append([]string(nil), lines...))
	if !f.configOK {
		return false, f.configMsg
	}
	return true, "configuration applied"
}

func (f *fakeSession) Persist(context.Context) (bool, string) {
	f.persists++
	if !f.persistOK {
		return false, "write failed"
	}
	return true, "configuration saved"
}

func (f *fakeSession) Upload(context.Context, string, string) (int64, error) {
	f.commands = append(f.commands, "sftp put")
	return 0, nil
}

func (f *fakeSession) Download(context.Context, string, string) (int64, error) {
	f.commands = append(f.commands, "sftp get")
	return 0, nil
}

func (f *fakeSession) sent(prefix string) int {
	n := 0
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeTransfer 可控的安全检查结果，记录复制调用
type fakeTransfer struct {
	space, exists, match bool
	err                  error
	puts, gets, hashes   int
}

func (f *fakeTransfer) VerifySpaceAvailable(context.Context) (bool, error) { return f.space, f.err }
func (f *fakeTransfer) CheckFileExists(context.Context) (bool, error)      { return f.exists, nil }
func (f *fakeTransfer) CompareChecksum(context.Context) (bool, error) {
	f.hashes++
	return f.match, nil
}
func (f *fakeTransfer) Put(context.Context) error { f.puts++; return nil }
func (f *fakeTransfer) Get(context.Context) error { f.gets++; return nil }
