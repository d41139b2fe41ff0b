// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader acquires the raw face dataset: it downloads the archive, validates its checksum and
// extracts it into per-class sample directories.
//
// It is an external collaborator of the dataset pipeline: all its failures are reported as
// samples.ErrAcquisition errors, before any of the pipeline stages start.
package downloader

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/gomlx/facepatches/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// copyBytesBar copies bytes from an io.Reader to an io.Writer while displaying a progressbar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

// newCopyBytesBar creates a new copyBytesBar. It requires knowing the contentLength.
func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w}
	bar.barUnit = 1
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Write, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is similar to io.Copy, but updates the progress bar with the amount
// of data copied.
//
// It requires knowing the amount of data to copy up-front.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Download file from url and save it at the given path.
// It attempts to create the directory if it doesn't yet exist.
//
// Optionally, use showProgressBar. It is ignored if the server doesn't report the content length.
func Download(fs afero.Fs, url, filePath string, showProgressBar bool) (size int64, err error) {
	if err = fs.MkdirAll(path.Dir(filePath), 0777); err != nil {
		err = samples.NewAcquisitionError(url, errors.Wrapf(err, "failed to create the directory for the path %q", path.Dir(filePath)))
		return
	}
	resp, err := http.Get(url)
	if err != nil {
		return 0, samples.NewAcquisitionError(url, errors.Wrap(err, "failed downloading"))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, samples.NewAcquisitionError(url, errors.Errorf("server returned status %q", resp.Status))
	}

	file, err := fs.Create(filePath)
	if err != nil {
		return 0, samples.NewAcquisitionError(url, errors.Wrapf(err, "failed creating file %q", filePath))
	}
	if showProgressBar && resp.ContentLength > 0 {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		_ = file.Close()
		return 0, samples.NewAcquisitionError(url, errors.Wrapf(err, "downloading to %q", filePath))
	}
	if err = file.Close(); err != nil {
		return 0, samples.NewAcquisitionError(url, errors.Wrapf(err, "failed closing %q", filePath))
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.IBytes(uint64(size)), url, filePath)
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will download the file
// from the given URL.
//
// If checkHash is provided, it checks that the file has the hash or fail.
func DownloadIfMissing(fs afero.Fs, url, filePath, checkHash string) error {
	exists, err := fsutil.FileExists(fs, filePath)
	if err != nil {
		return samples.NewAcquisitionError(url, err)
	}
	if !exists {
		klog.Infof("Downloading %s ...", url)
		if _, err = Download(fs, url, filePath, true); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	if err = fsutil.ValidateChecksum(fs, filePath, checkHash); err != nil {
		return samples.NewAcquisitionError(url, err)
	}
	return nil
}

// Untar extracts tarFile into baseDir, decompressing it with gzip if it ends with ".gz" or ".tgz".
//
// Entries that would be extracted outside baseDir are rejected.
func Untar(fs afero.Fs, baseDir, tarFile string) error {
	f, err := fs.Open(tarFile)
	if err != nil {
		return samples.NewAcquisitionError(tarFile, errors.Wrap(err, "failed to open archive"))
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(tarFile, ".gz") || strings.HasSuffix(tarFile, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return samples.NewAcquisitionError(tarFile, errors.Wrap(err, "failed to un-gzip archive"))
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	tr := tar.NewReader(r)
	baseDir = path.Clean(baseDir)
	numFiles := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return samples.NewAcquisitionError(tarFile, errors.Wrap(err, "failed reading archive"))
		}
		target := path.Join(baseDir, header.Name)
		if target != baseDir && !strings.HasPrefix(target, baseDir+"/") {
			return samples.NewAcquisitionError(tarFile, errors.Errorf("archive entry %q escapes %q", header.Name, baseDir))
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err = fs.MkdirAll(target, 0755); err != nil {
				return samples.NewAcquisitionError(tarFile, errors.Wrapf(err, "failed to create %q", target))
			}
		case tar.TypeReg:
			if err = writeEntry(fs, target, tr); err != nil {
				return samples.NewAcquisitionError(tarFile, err)
			}
			numFiles++
		default:
			klog.V(2).Infof("Untar(%q): skipping entry %q of type %c", tarFile, header.Name, header.Typeflag)
		}
	}
	klog.V(1).Infof("extracted %d files from %q into %q", numFiles, tarFile, baseDir)
	return nil
}

func writeEntry(fs afero.Fs, target string, r io.Reader) error {
	if err := fs.MkdirAll(path.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %q", path.Dir(target))
	}
	out, err := fs.Create(target)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", target)
	}
	if _, err = io.Copy(out, r); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to extract %q", target)
	}
	return errors.Wrapf(out.Close(), "failed closing %q", target)
}

// DownloadAndUntarIfMissing downloads tarFile from given url, if file not there yet, and then untar it
// if the target directory is missing.
//
// If checkHash is provided, it checks that the file has the hash or fail.
func DownloadAndUntarIfMissing(fs afero.Fs, url, baseDir, tarFile, targetUntarDir, checkHash string) error {
	if !path.IsAbs(tarFile) {
		tarFile = path.Join(baseDir, tarFile)
	}
	if !path.IsAbs(targetUntarDir) {
		targetUntarDir = path.Join(baseDir, targetUntarDir)
	}
	exists, err := fsutil.FileExists(fs, targetUntarDir)
	if err != nil {
		return samples.NewAcquisitionError(url, err)
	}
	if exists {
		return nil
	}
	if err = DownloadIfMissing(fs, url, tarFile, checkHash); err != nil {
		return err
	}
	if err = Untar(fs, baseDir, tarFile); err != nil {
		return err
	}
	exists, err = fsutil.FileExists(fs, targetUntarDir)
	if err != nil {
		return samples.NewAcquisitionError(url, err)
	}
	if !exists {
		return samples.NewAcquisitionError(url,
			errors.Errorf("untar'ed %q, but didn't get directory %q", tarFile, targetUntarDir))
	}
	return nil
}
