package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
)

// Upload 通过 SFTP 子系统把本地文件写到设备路径（复用同一条 SSH 连接）
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	return c.withSFTP(ctx, func(client *sftp.Client) (int64, error) {
		dst, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return 0, fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
		}
		n, err := dst.ReadFrom(src)
		if cerr := dst.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			return n, fmt.Errorf("failed to upload %s: %w", remotePath, err)
		}
		return n, nil
	})
}

// Download 通过 SFTP 读取设备文件；先写临时文件，完成后再改名，避免留下半个文件
func (c *Client) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create local dir: %w", err)
	}
	part := localPath + ".part"

	n, err := c.withSFTP(ctx, func(client *sftp.Client) (int64, error) {
		src, err := client.Open(remotePath)
		if err != nil {
			return 0, fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
		}
		defer src.Close()

		dst, err := os.Create(part)
		if err != nil {
			return 0, fmt.Errorf("failed to create local file: %w", err)
		}
		n, err := io.Copy(dst, src)
		if cerr := dst.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			return n, fmt.Errorf("failed to download %s: %w", remotePath, err)
		}
		return n, nil
	})
	if err != nil {
		_ = os.Remove(part)
		return n, err
	}
	if err := os.Rename(part, localPath); err != nil {
		return n, fmt.Errorf("failed to finalize local file: %w", err)
	}
	return n, nil
}

// withSFTP 打开 SFTP 客户端执行 fn；超时（按 Pacing 放大）或取消时关闭客户端以中断传输
func (c *Client) withSFTP(ctx context.Context, fn func(*sftp.Client) (int64, error)) (int64, error) {
	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	if c.config.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Pacing.Scale(c.config.TransferTimeout))
		defer cancel()
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		return 0, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}
	defer client.Close()

	type outcome struct {
		n   int64
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		n, err := fn(client)
		ch <- outcome{n, err}
	}()

	select {
	case o := <-ch:
		return o.n, o.err
	case <-ctx.Done():
		_ = client.Close()
		<-ch
		return 0, fmt.Errorf("transfer aborted: %w", ctx.Err())
	}
}
