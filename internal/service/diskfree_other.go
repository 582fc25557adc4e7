//go:build !linux && !darwin && !freebsd

package service

import "errors"

func diskFree(string) (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
