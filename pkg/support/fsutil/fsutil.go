// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
//
// Functions take an afero.Fs, so they work the same on the OS file system (afero.NewOsFs) and on
// in-memory file systems used in tests (afero.NewMemMapFs).
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/user"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// MustFileExists returns whether the file or directory exists.
// It panics on file system errors.
func MustFileExists(fs afero.Fs, path string) bool {
	exists, err := FileExists(fs, path)
	if err != nil {
		panic(err)
	}
	return exists
}

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// MustReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It may panic with an error if `dir` has an unknown user (e.g: `~unknown/...`)
func MustReplaceTildeInDir(dir string) string {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		panic(err)
	}
	return dir
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user or some other filesystem error (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 {
		return dir, nil
	}
	if dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	homeDir := usr.HomeDir
	return path.Join(homeDir, dir[1+len(userName):]), nil
}

// ValidateChecksum verifies that the sha256 checksum of the file in the given path matches checkHash.
// If it fails, it will remove the file (!) and return an error.
func ValidateChecksum(fs afero.Fs, path, checkHash string) error {
	hasher := sha256.New()
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q for checksum", path)
	}
	defer func() { _ = f.Close() }()

	if _, err = io.Copy(hasher, f); err != nil {
		return errors.Wrapf(err, "failed to read %q for checksum", path)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash != strings.ToLower(checkHash) {
		err = errors.Errorf("file %q sha256 hash is %q, but expected %q, deleting file.",
			path, fileHash, checkHash)
		if e2 := fs.Remove(path); e2 != nil {
			klog.Warningf("Failed to remove %q, which failed checksum test. Please remove it. %+v", path, e2)
		}
		return err
	}
	return nil
}
