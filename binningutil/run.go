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

package binningutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/binning"
	"github.com/spatialmodel/binning/binfile"
	"github.com/spatialmodel/binning/binstore"
	"github.com/spatialmodel/binning/cloud"
	"github.com/spatialmodel/binning/internal/hash"
	"github.com/spatialmodel/binning/product"
	"golang.org/x/sync/errgroup"
)

// Run opens the configured store and runs the stages of mode.
func Run(ctx context.Context, c *Config, mode Mode, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	store, err := binstore.Open(c.Store.Driver, c.Store.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if mode.spatial() {
		if err := SpatialBinning(ctx, c, store, log); err != nil {
			return err
		}
	}
	if mode.temporal() {
		if err := TemporalBinning(ctx, c, store, log); err != nil {
			return err
		}
	}
	return nil
}

// SpatialBinning bins every input product into store, running up to
// c.Workers products at once. Errors reading a product abort the run.
// Errors reported by the spatial binner are logged as warnings and do not
// stop processing.
func SpatialBinning(ctx context.Context, c *Config, store binstore.Store, log logrus.FieldLogger) error {
	dir, err := os.MkdirTemp("", "binning")
	if err != nil {
		return fmt.Errorf("binning: creating download directory: %w", err)
	}
	defer os.RemoveAll(dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)
	for i, input := range c.Inputs {
		i, input := i, input
		g.Go(func() error {
			return binProduct(gctx, c, input, filepath.Join(dir, strconv.Itoa(i)), store, log)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"products": len(c.Inputs),
		"bins":     n,
	}).Info("binning finished spatial binning")
	return nil
}

func binProduct(ctx context.Context, c *Config, input, dir string, store binstore.Store, log logrus.FieldLogger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	plog := log.WithField("product", input)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("binning: creating download directory: %w", err)
	}
	local, err := cloud.Fetch(ctx, input, dir, plog)
	if err != nil {
		return err
	}
	s, err := product.Open(local, product.Options{
		SliceHeight:     c.SliceHeight,
		SuperSampling:   c.ctx.SuperSampling,
		VariableContext: c.ctx.VariableContext,
		Region:          c.region,
		LatName:         c.LatName,
		LonName:         c.LonName,
		Log:             plog,
	})
	if err != nil {
		return fmt.Errorf("binning: opening product %s: %w", input, err)
	}
	defer s.Close()

	binner := binning.NewSpatialBinner(c.ctx, store.ForProduct(input))
	binner.Log = plog
	n, err := product.ProcessProduct(s, binner)
	if err != nil {
		return fmt.Errorf("binning: reading product %s: %w", input, err)
	}
	for _, err := range binner.Errors() {
		plog.WithError(err).Warn("binning fault")
	}
	plog.WithFields(logrus.Fields{
		"observations": n,
		"bins":         binner.NumEmitted(),
	}).Info("binning processed product")
	return nil
}

// TemporalBinning reduces the spatial bins in store and writes the
// temporal bins to the output file, along with the effective
// configuration in a file with the additional extension .toml.
func TemporalBinning(ctx context.Context, c *Config, store binstore.Store, log logrus.FieldLogger) error {
	binner := binning.TemporalBinner{BinManager: c.ctx.BinManager}
	partitioner := binning.RowPartitioner{Grid: c.ctx.Grid, NumPartitions: c.Partitions}
	bins, err := binning.ReduceParallel(ctx, binner, store, partitioner, log)
	if err != nil {
		return err
	}
	products, err := store.Products(ctx)
	if err != nil {
		return err
	}
	meta := binfile.Metadata{
		StartTime:    c.start,
		StopTime:     c.stop,
		Region:       c.region,
		ProductCount: len(products),
		ConfigHash:   hash.Hash(c),
	}

	outputFile := c.OutputFile
	if cloud.IsBlob(c.OutputFile) {
		dir, err := os.MkdirTemp("", "binning")
		if err != nil {
			return fmt.Errorf("binning: creating output directory: %w", err)
		}
		defer os.RemoveAll(dir)
		outputFile = filepath.Join(dir, path.Base(c.OutputFile))
	}

	w := binfile.NewWriter(log)
	if err := w.Write(outputFile, c.ctx, bins, meta); err != nil {
		return err
	}
	if err := writeConfig(outputFile+".toml", c); err != nil {
		return err
	}
	if outputFile != c.OutputFile {
		if err := cloud.Upload(ctx, outputFile, c.OutputFile, log); err != nil {
			return err
		}
		if err := cloud.Upload(ctx, outputFile+".toml", c.OutputFile+".toml", log); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"products": len(products),
		"bins":     len(bins),
		"file":     c.OutputFile,
	}).Info("binning finished temporal binning")
	return nil
}

// writeConfig saves the effective configuration as TOML.
func writeConfig(filename string, c *Config) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("binning: creating configuration file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("binning: writing configuration file: %w", err)
	}
	return f.Close()
}

// Info prints a summary of the bin file at filename, which may be a URL,
// followed by its first n bin records.
func Info(ctx context.Context, w io.Writer, filename string, n int) error {
	dir, err := os.MkdirTemp("", "binning")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	local, err := cloud.Fetch(ctx, filename, dir, logrus.StandardLogger())
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("binning: opening bin file: %w", err)
	}
	defer f.Close()
	r, err := binfile.Open(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "file:           %s\n", filename)
	fmt.Fprintf(w, "rows:           %d\n", r.NumRows())
	fmt.Fprintf(w, "grid bins:      %d\n", r.Grid().NumBins())
	fmt.Fprintf(w, "bins:           %d\n", r.NumBins())
	fmt.Fprintf(w, "features:       %v\n", r.FeatureNames())
	for _, a := range []string{"start_time", "stop_time", "super_sampling", "product_count", "region", "config_hash"} {
		if v := r.Attribute(a); v != nil {
			fmt.Fprintf(w, "%-16s%v\n", a+":", v)
		}
	}
	if n <= 0 || r.NumBins() == 0 {
		return nil
	}
	bins, err := r.Bins()
	if err != nil {
		return err
	}
	if n > len(bins) {
		n = len(bins)
	}
	for _, b := range bins[:n] {
		lat, lon := r.Grid().CenterLatLon(b.Index)
		fmt.Fprintf(w, "bin %d (%.3f, %.3f): obs=%d passes=%d %v\n", b.Index, lat, lon, b.NumObs, b.NumPasses, b.Properties)
	}
	return nil
}
