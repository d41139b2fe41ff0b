// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package samples

import (
	"encoding/gob"
	"fmt"
	"net/url"
	"path"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/support/fsutil"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// CachedSource wraps a Source and saves the samples it returns to a gob file in a cache directory,
// so later runs load the file instead of decoding every image again.
//
// The cache file depends on the wrapped source name and on the requested limit. It never changes the
// samples returned: a corrupted cache file is logged, discarded and regenerated.
type CachedSource struct {
	source   Source
	fs       afero.Fs
	cacheDir string
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource returns a CachedSource saving the samples of source under cacheDir.
func NewCachedSource(fs afero.Fs, cacheDir string, source Source) *CachedSource {
	return &CachedSource{source: source, fs: fs, cacheDir: cacheDir}
}

// Name implements Source. It is the name of the wrapped source.
func (c *CachedSource) Name() string { return c.source.Name() }

// Count implements Source, using the wrapped source.
func (c *CachedSource) Count() (int, error) { return c.source.Count() }

// CachePath returns the file used to cache the samples for the given limit. The file name is the escaped
// source name, so different sources never share a file.
func (c *CachedSource) CachePath(limit int) string {
	name := url.PathEscape(c.source.Name())
	limitStr := "all"
	if limit != All {
		limitStr = fmt.Sprintf("%d", limit)
	}
	return path.Join(c.cacheDir, fmt.Sprintf("%s-%s.gob", name, limitStr))
}

// cachedSample is the serialized form of a RawSample.
type cachedSample struct {
	Dimensions []int
	Pix        []float32
}

// Samples implements Source.
func (c *CachedSource) Samples(limit int) ([]*RawSample, error) {
	cachePath := c.CachePath(limit)
	exists, err := fsutil.FileExists(c.fs, cachePath)
	if err != nil {
		return nil, NewAcquisitionError(cachePath, err)
	}
	if exists {
		results, err := c.load(cachePath)
		if err == nil {
			klog.V(1).Infof("loaded %d samples of %q from cache %q", len(results), c.Name(), cachePath)
			return results, nil
		}
		klog.Warningf("Discarding invalid cache file %q: %v", cachePath, err)
	}

	results, err := c.source.Samples(limit)
	if err != nil {
		return nil, err
	}
	if err = c.save(cachePath, results); err != nil {
		return nil, NewAcquisitionError(cachePath, err)
	}
	return results, nil
}

func (c *CachedSource) load(cachePath string) (results []*RawSample, err error) {
	f, err := c.fs.Open(cachePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache")
	}
	defer func() { _ = f.Close() }()
	var cached []cachedSample
	if err = gob.NewDecoder(f).Decode(&cached); err != nil {
		return nil, errors.Wrap(err, "failed to decode cache")
	}
	err = exceptions.TryCatch[error](func() {
		results = make([]*RawSample, len(cached))
		for ii, cs := range cached {
			results[ii] = NewRawSample(shapes.Make(dtypes.Float32, cs.Dimensions...), cs.Pix)
		}
	})
	return
}

func (c *CachedSource) save(cachePath string, results []*RawSample) error {
	if err := c.fs.MkdirAll(c.cacheDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %q", c.cacheDir)
	}
	cached := make([]cachedSample, len(results))
	for ii, s := range results {
		cached[ii] = cachedSample{Dimensions: s.Shape.Dimensions, Pix: s.Pix}
	}
	f, err := c.fs.Create(cachePath)
	if err != nil {
		return errors.Wrap(err, "failed to create cache")
	}
	if err = gob.NewEncoder(f).Encode(cached); err != nil {
		_ = f.Close()
		_ = c.fs.Remove(cachePath)
		return errors.Wrap(err, "failed to encode cache")
	}
	return errors.Wrap(f.Close(), "failed to close cache")
}
