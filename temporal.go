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

package binning

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TemporalBinner merges the spatial bins of all source images that share
// a bin index into one temporal bin.
type TemporalBinner struct {
	BinManager *BinManager
}

// ReduceBins folds spatialBins, which must all have the given index, into
// a completed temporal bin.
func (t TemporalBinner) ReduceBins(index uint64, spatialBins []*SpatialBin) *TemporalBin {
	bin := t.BinManager.CreateTemporalBin(index)
	for _, sb := range spatialBins {
		t.BinManager.AggregateTemporalBin(sb, bin)
	}
	t.BinManager.CompleteTemporalBin(bin)
	return bin
}

// IndexRange is the half-open range of bin indices [Start, End).
type IndexRange struct {
	Start, End uint64
}

// Contains reports whether index is within the range.
func (r IndexRange) Contains(index uint64) bool { return index >= r.Start && index < r.End }

func (r IndexRange) String() string { return fmt.Sprintf("[%d, %d)", r.Start, r.End) }

// SpatialBinSource provides spatial bins grouped by index, as produced by
// sorting all emitted spatial bins by index.
type SpatialBinSource interface {
	// Groups calls fn once for every index in r that has at least one
	// spatial bin, in ascending index order.
	Groups(ctx context.Context, r IndexRange, fn func(index uint64, bins []*SpatialBin) error) error
}

// RowPartitioner divides the bins of a grid into partitions of whole,
// consecutive grid rows, so that every partition is a contiguous range of
// bin indices.
type RowPartitioner struct {
	Grid          PlanetaryGrid
	NumPartitions int
}

func (p RowPartitioner) numPartitions() int {
	n := p.NumPartitions
	if n < 1 {
		n = 1
	}
	if rows := p.Grid.NumRows(); n > rows {
		n = rows
	}
	return n
}

// Partition returns the partition containing the given bin.
func (p RowPartitioner) Partition(index uint64) int {
	row := p.Grid.RowIndex(index)
	return row * p.numPartitions() / p.Grid.NumRows()
}

// Ranges returns the index range of every partition in ascending order.
func (p RowPartitioner) Ranges() []IndexRange {
	n := p.numPartitions()
	rows := p.Grid.NumRows()
	ranges := make([]IndexRange, 0, n)
	row := 0
	for part := 0; part < n; part++ {
		start := row
		for row < rows && row*n/rows == part {
			row++
		}
		r := IndexRange{Start: p.Grid.FirstBinIndex(start)}
		if row < rows {
			r.End = p.Grid.FirstBinIndex(row)
		} else {
			r.End = p.Grid.NumBins()
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// ReduceParallel reduces the spatial bins of source to temporal bins,
// processing each partition in its own goroutine. The result is sorted by
// bin index. If ctx is cancelled, partitions in progress are abandoned.
func ReduceParallel(ctx context.Context, binner TemporalBinner, source SpatialBinSource, p RowPartitioner, log logrus.FieldLogger) ([]*TemporalBin, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ranges := p.Ranges()
	results := make([][]*TemporalBin, len(ranges))
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			var bins []*TemporalBin
			err := source.Groups(ctx, r, func(index uint64, group []*SpatialBin) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				bins = append(bins, binner.ReduceBins(index, group))
				return nil
			})
			if err != nil {
				return fmt.Errorf("binning: reducing partition %d %v: %w", i, r, err)
			}
			log.WithFields(logrus.Fields{
				"partition": i,
				"range":     r.String(),
				"bins":      len(bins),
			}).Debug("binning reduced partition")
			results[i] = bins
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var n int
	for _, r := range results {
		n += len(r)
	}
	out := make([]*TemporalBin, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
