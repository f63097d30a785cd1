// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

var (
	ErrEmptyExecPath = errors.New("exec path is empty")
	ErrNotExists     = errors.New("exec does not exist")
)

func CheckExecPath(exec string) error {
	if exec == "" {
		return ErrEmptyExecPath
	}
	_, err := os.Stat(exec)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExists
		}
		return fmt.Errorf("failed to stat exec %q (%w)", exec, err)
	}
	return nil
}

// NodeDataDir is where the files of node [nodeID] of network [networkID]
// live under [baseDir].
func NodeDataDir(baseDir string, networkID uint64, nodeID string) string {
	return filepath.Join(baseDir, "networks", strconv.FormatUint(networkID, 10), nodeID)
}

// Platform is "mac", "windows", "linux" or "unknown".
func Platform() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac"
	case "windows":
		return "windows"
	case "linux":
		return "linux"
	}
	return "unknown"
}
