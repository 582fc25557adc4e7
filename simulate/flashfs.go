package simulate

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
)

// flashFS 将 SFTP 请求路径（flash:/x、/flash:x）映射到 flash 目录
type flashFS struct {
	root string
}

func (f *flashFS) resolve(p string) string {
	p = strings.TrimPrefix(p, "/")
	if _, rest, ok := strings.Cut(p, ":"); ok {
		p = rest
	}
	// Clean 于根之下，防止 .. 越界
	clean := filepath.Clean("/" + strings.TrimPrefix(p, "/"))
	return filepath.Join(f.root, filepath.FromSlash(clean))
}

func (f *flashFS) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	return os.Open(f.resolve(r.Filepath))
}

func (f *flashFS) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	path := f.resolve(r.Filepath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

func (f *flashFS) Filecmd(r *sftp.Request) error {
	switch r.Method {
	case "Setstat":
		return nil
	case "Remove":
		return os.Remove(f.resolve(r.Filepath))
	case "Rename":
		return os.Rename(f.resolve(r.Filepath), f.resolve(r.Target))
	case "Mkdir":
		return os.MkdirAll(f.resolve(r.Filepath), 0755)
	case "Rmdir":
		return os.Remove(f.resolve(r.Filepath))
	}
	return sftp.ErrSSHFxOpUnsupported
}

func (f *flashFS) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	path := f.resolve(r.Filepath)
	switch r.Method {
	case "List":
		des, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		infos := make([]os.FileInfo, 0, len(des))
		for _, de := range des {
			if fi, err := de.Info(); err == nil {
				infos = append(infos, fi)
			}
		}
		return listerAt(infos), nil
	case "Stat", "Lstat":
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		return listerAt{fi}, nil
	}
	return nil, sftp.ErrSSHFxOpUnsupported
}

type listerAt []os.FileInfo

func (l listerAt) ListAt(out []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(out, l[offset:])
	if n < len(out) {
		return n, io.EOF
	}
	return n, nil
}
