// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tarGz builds a gzipped tar archive with the given files (name -> contents). Names ending in "/" are
// directories.
func tarGz(t *testing.T, files map[string]string, order []string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range order {
		contents := files[name]
		if name[len(name)-1] == '/' {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0755}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(contents))}))
		_ = must.M1(tw.Write([]byte(contents)))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// serve returns a test server serving data, and a counter of requests.
func serve(t *testing.T, data []byte) (*httptest.Server, *atomic.Int32) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/faces.tar.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestDownloadAndUntarIfMissing(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"faces/":            "",
		"faces/face/a.png":  "face-a",
		"faces/bg/b.png":    "bg-b",
		"faces/README.text": "readme",
	}, []string{"faces/", "faces/face/a.png", "faces/bg/b.png", "faces/README.text"})
	server, requests := serve(t, archive)
	fs := afero.NewMemMapFs()
	url := server.URL + "/faces.tar.gz"

	require.NoError(t, DownloadAndUntarIfMissing(fs, url, "/data", "faces.tar.gz", "faces", sha256Hex(archive)))
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, "face-a", string(must.M1(afero.ReadFile(fs, "/data/faces/face/a.png"))))
	assert.Equal(t, "bg-b", string(must.M1(afero.ReadFile(fs, "/data/faces/bg/b.png"))))
	assert.Equal(t, archive, must.M1(afero.ReadFile(fs, "/data/faces.tar.gz")))

	// Second call is a no-op.
	require.NoError(t, DownloadAndUntarIfMissing(fs, url, "/data", "faces.tar.gz", "faces", sha256Hex(archive)))
	assert.Equal(t, int32(1), requests.Load())

	// Archive doesn't contain the expected directory.
	err := DownloadAndUntarIfMissing(fs, url, "/data", "faces.tar.gz", "patches", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, samples.ErrAcquisition))
}

func TestDownloadErrors(t *testing.T) {
	archive := tarGz(t, map[string]string{"faces/x": "x"}, []string{"faces/x"})
	server, _ := serve(t, archive)
	fs := afero.NewMemMapFs()

	_, err := Download(fs, server.URL+"/missing.tar.gz", "/data/missing.tar.gz", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, samples.ErrAcquisition))

	// Wrong checksum removes the downloaded file.
	err = DownloadIfMissing(fs, server.URL+"/faces.tar.gz", "/data/faces.tar.gz", sha256Hex([]byte("something else")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, samples.ErrAcquisition))
	exists := must.M1(afero.Exists(fs, "/data/faces.tar.gz"))
	assert.False(t, exists)

	size := must.M1(Download(fs, server.URL+"/faces.tar.gz", "/data/faces.tar.gz", true))
	assert.Equal(t, int64(len(archive)), size)
}

func TestUntarRejectsEscapes(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := tarGz(t, map[string]string{"../evil": "x"}, []string{"../evil"})
	require.NoError(t, afero.WriteFile(fs, "/data/evil.tgz", archive, 0644))
	err := Untar(fs, "/data", "/data/evil.tgz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, samples.ErrAcquisition))
	exists := must.M1(afero.Exists(fs, "/evil"))
	assert.False(t, exists)
}

func TestCopyWithProgressBar(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 300_000)
	var out bytes.Buffer
	n := must.M1(CopyWithProgressBar(&out, bytes.NewReader(data), int64(len(data))))
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
}
