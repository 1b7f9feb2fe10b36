//go:build windows

package config

import (
	"fmt"
	"os"
)

// openConfigFile opens the config file. Windows has no O_NOFOLLOW.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return f, nil
}

// checkFileOwnership is a no-op; Windows ownership is ACL based.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}

// checkPermissions is a no-op; mode bits do not reflect Windows ACLs.
func checkPermissions(_ os.FileInfo) error {
	return nil
}
