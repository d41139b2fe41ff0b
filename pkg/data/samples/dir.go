// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package samples

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// ImageExtensions lists the file extensions read by DirSource.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// DirSource is a Source reading image files from one directory: one file per sample.
//
// Files are read in lexical order of their names, so the same directory always yields the same samples
// in the same order. Images not of the configured size are resized (without keeping the aspect ratio,
// patches are expected to be already cut at the right size).
type DirSource struct {
	fs            afero.Fs
	dir           string
	model         ColorModel
	width, height int
}

var _ Source = (*DirSource)(nil)

// NewDirSource creates a Source reading the images in dir, converted with the color model and
// sized width x height.
func NewDirSource(fs afero.Fs, dir string, model ColorModel, width, height int) *DirSource {
	return &DirSource{fs: fs, dir: dir, model: model, width: width, height: height}
}

// Name implements Source. It is the directory path.
func (d *DirSource) Name() string { return d.dir }

// files returns the image files in the directory, sorted by name.
func (d *DirSource) files() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.dir)
	if err != nil {
		return nil, NewAcquisitionError(d.dir, errors.Wrap(err, "failed to list sample directory"))
	}
	// afero.ReadDir returns entries sorted by name.
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !hasImageExtension(entry.Name()) {
			continue
		}
		files = append(files, path.Join(d.dir, entry.Name()))
	}
	return files, nil
}

func hasImageExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, imgExt := range ImageExtensions {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// Count implements Source.
func (d *DirSource) Count() (int, error) {
	files, err := d.files()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Samples implements Source.
func (d *DirSource) Samples(limit int) ([]*RawSample, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}
	files = files[:clampLimit(limit, len(files))]
	results := make([]*RawSample, 0, len(files))
	for _, filePath := range files {
		img, err := d.readImage(filePath)
		if err != nil {
			return nil, NewAcquisitionError(filePath, err)
		}
		results = append(results, FromImage(img, d.model))
	}
	klog.V(2).Infof("read %d samples from %q", len(results), d.dir)
	return results, nil
}

func (d *DirSource) readImage(filePath string) (image.Image, error) {
	f, err := d.fs.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	if size := img.Bounds().Size(); size.X != d.width || size.Y != d.height {
		img = imaging.Resize(img, d.width, d.height, imaging.Lanczos)
	}
	return img, nil
}
