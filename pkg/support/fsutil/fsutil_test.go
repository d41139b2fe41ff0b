// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	must.M(afero.WriteFile(fs, "/data/a.txt", []byte("a"), 0644))
	assert.True(t, MustFileExists(fs, "/data/a.txt"))
	assert.True(t, MustFileExists(fs, "/data"))
	assert.False(t, MustFileExists(fs, "/data/b.txt"))
}

func TestReplaceTildeInDir(t *testing.T) {
	usr := must.M1(user.Current())
	assert.Equal(t, path.Join(usr.HomeDir, "faces"), MustReplaceTildeInDir("~/faces"))
	assert.Equal(t, "/tmp/faces", MustReplaceTildeInDir("/tmp/faces"))
	assert.Equal(t, "", MustReplaceTildeInDir(""))
}

func TestValidateChecksum(t *testing.T) {
	fs := afero.NewMemMapFs()
	must.M(afero.WriteFile(fs, "/f", []byte("abc"), 0644))
	// sha256("abc")
	const abcHash = "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"
	require.NoError(t, ValidateChecksum(fs, "/f", abcHash))
	require.Error(t, ValidateChecksum(fs, "/f", "0000"))
	assert.False(t, MustFileExists(fs, "/f"), "file failing checksum should have been removed")
}
