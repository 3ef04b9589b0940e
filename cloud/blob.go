/*
Copyright © 2026 the Binning authors.
This file is part of Binning.

Binning is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Binning is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Binning.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// MaxRetries is the number of times a failed transfer is retried.
var MaxRetries uint64 = 5

// Fetch makes the file at path available locally. Local paths are
// returned unchanged. Blob and http(s) URLs are downloaded into dir and the
// path of the downloaded file is returned. For shapefiles, the associated
// files are downloaded as well.
func Fetch(ctx context.Context, path, dir string, log logrus.FieldLogger) (string, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	var get func(ctx context.Context, src string, w io.Writer) error
	switch {
	case IsHTTP(path):
		get = downloadHTTP
	case IsBlob(path):
		get = downloadBlob
	default:
		return path, nil
	}
	fnames := expandShp(path)
	for _, fname := range fnames {
		dst := filepath.Join(dir, filepath.Base(fname))
		err := retry(ctx, log, fname, func() error {
			w, err := os.Create(dst)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("cloud: creating file for download: %w", err))
			}
			if err := get(ctx, fname, w); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		})
		if err != nil {
			return path, err
		}
	}
	log.WithFields(logrus.Fields{
		"source": path,
		"files":  len(fnames),
	}).Info("binning downloaded input")
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// downloadHTTP downloads a file from the specified URL.
func downloadHTTP(ctx context.Context, src string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("cloud: downloading %s: %s", src, resp.Status)
		if resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// downloadBlob downloads the specified file from blob storage.
func downloadBlob(ctx context.Context, src string, w io.Writer) error {
	bucketName, key, err := SplitURL(src)
	if err != nil {
		return backoff.Permanent(err)
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer bucket.Close()
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %w", key, err)
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %w", key, err)
	}
	return nil
}

// Upload copies the local file src to the blob URL dst.
func Upload(ctx context.Context, src, dst string, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	bucketName, key, err := SplitURL(dst)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	err = retry(ctx, log, dst, func() error {
		r, err := os.Open(src)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("cloud: opening file '%s' for upload: %w", src, err))
		}
		defer r.Close()
		return writeBlob(ctx, bucket, key, r)
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":        src,
		"destination": dst,
	}).Info("binning uploaded output")
	return nil
}

// writeBlob writes the given data to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) error {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %w", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %w", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %w", key, err)
	}
	return nil
}

// retry runs op with exponential backoff until it succeeds, fails
// permanently, or MaxRetries is exceeded.
func retry(ctx context.Context, log logrus.FieldLogger, name string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		log.WithFields(logrus.Fields{
			"file":  name,
			"delay": d,
		}).WithError(err).Warn("binning retrying transfer")
	})
}

// expandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func expandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
