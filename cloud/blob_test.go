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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitURL(t *testing.T) {
	for _, test := range []struct {
		url, bucket, key string
		err              bool
	}{
		{url: "gs://bucket/dir/out.nc", bucket: "gs://bucket", key: "dir/out.nc"},
		{url: "s3://bucket/out.nc", bucket: "s3://bucket", key: "out.nc"},
		{url: "file:///tmp/out.nc", bucket: "file://", key: "tmp/out.nc"},
		{url: "gs://bucket", err: true},
	} {
		t.Run(test.url, func(t *testing.T) {
			bucket, key, err := SplitURL(test.url)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if bucket != test.bucket || key != test.key {
				t.Errorf("have %q %q, want %q %q", bucket, key, test.bucket, test.key)
			}
		})
	}
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://b/x":     true,
		"s3://b/x":     true,
		"file:///x":    true,
		"/tmp/x":       false,
		"http://x.org": false,
	} {
		if IsBlob(path) != want {
			t.Errorf("IsBlob(%q) != %v", path, want)
		}
	}
}

func TestFetch_local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.nc")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	have, err := Fetch(context.Background(), path, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if have != path {
		t.Errorf("have %s, want %s", have, path)
	}
}

func TestFetch_http(t *testing.T) {
	src := t.TempDir()
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		if err := os.WriteFile(filepath.Join(src, "region"+ext), []byte(ext), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	srv := httptest.NewServer(http.FileServer(http.Dir(src)))
	defer srv.Close()

	dir := t.TempDir()
	have, err := Fetch(context.Background(), srv.URL+"/region.shp", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "region.shp"); have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		b, err := os.ReadFile(filepath.Join(dir, "region"+ext))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != ext {
			t.Errorf("%s: have %q", ext, b)
		}
	}

	if _, err := Fetch(context.Background(), srv.URL+"/missing.nc", dir, nil); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestUploadFetch_blob(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "l3.nc")
	if err := os.WriteFile(src, []byte("bins"), 0o644); err != nil {
		t.Fatal(err)
	}
	bucketDir := t.TempDir()
	dst := "file://" + filepath.ToSlash(bucketDir) + "/out/l3.nc"
	if err := Upload(ctx, src, dst, nil); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(bucketDir, "out", "l3.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "bins" {
		t.Errorf("uploaded %q", b)
	}

	local, err := Fetch(ctx, dst, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if b, err := os.ReadFile(local); err != nil || string(b) != "bins" {
		t.Errorf("downloaded %q, %v", b, err)
	}
}
