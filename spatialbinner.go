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
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ErrNonContiguousSlice is recorded when an observation falls into a grid
// row whose bins the SpatialBinner has already emitted, meaning the
// observation slices were not delivered in spatially contiguous order.
var ErrNonContiguousSlice = errors.New("binning: observation slices are not spatially contiguous")

// ErrInvalidLocation is recorded for observations without a finite
// latitude and longitude. Such observations are skipped.
var ErrInvalidLocation = errors.New("binning: observation location is not finite")

// SpatialBinConsumer receives completed spatial bins.
type SpatialBinConsumer interface {
	ConsumeSpatialBins(ctx *BinningContext, bins []*SpatialBin) error
}

// SpatialBinConsumerFunc adapts a function to a SpatialBinConsumer.
type SpatialBinConsumerFunc func(ctx *BinningContext, bins []*SpatialBin) error

// ConsumeSpatialBins implements SpatialBinConsumer.
func (f SpatialBinConsumerFunc) ConsumeSpatialBins(ctx *BinningContext, bins []*SpatialBin) error {
	return f(ctx, bins)
}

// SpatialBinner aggregates the observations of a single source image into
// spatial bins. Observations arrive in slices, e.g. bands of image rows,
// which must be delivered in scan order. A bin that is not hit by a slice
// and whose grid row lies outside the rows hit by that slice cannot
// receive further observations, so it is completed and passed to the
// consumer. This bounds memory to the bins of the slices in flight plus
// one flag per grid row.
//
// A SpatialBinner must not be used by more than one goroutine.
type SpatialBinner struct {
	ctx      *BinningContext
	consumer SpatialBinConsumer

	Log logrus.FieldLogger

	active     map[uint64]*SpatialBin
	candidates map[uint64]struct{}
	// finalized[row] is set once bins of row have been emitted, and
	// cleared when a later slice reaches the row again.
	finalized []bool
	errs      []error

	numSlices  int
	numObs     int64
	numEmitted int64
}

// NewSpatialBinner returns a SpatialBinner that hands completed bins to consumer.
func NewSpatialBinner(ctx *BinningContext, consumer SpatialBinConsumer) *SpatialBinner {
	return &SpatialBinner{
		ctx:        ctx,
		consumer:   consumer,
		Log:        logrus.StandardLogger(),
		active:     make(map[uint64]*SpatialBin),
		candidates: make(map[uint64]struct{}),
		finalized:  make([]bool, ctx.Grid.NumRows()),
	}
}

// BinningContext returns the context passed to the consumer.
func (b *SpatialBinner) BinningContext() *BinningContext { return b.ctx }

// ProcessObservationSlice aggregates a slice of observations and emits
// the bins the slice has completed.
func (b *SpatialBinner) ProcessObservationSlice(observations ...Observation) {
	slice := b.numSlices
	b.numSlices++
	if len(observations) == 0 {
		return
	}
	grid, mgr := b.ctx.Grid, b.ctx.BinManager

	for idx := range b.active {
		b.candidates[idx] = struct{}{}
	}
	minRow, maxRow := grid.NumRows(), -1
	var invalid int
	for _, obs := range observations {
		if !finite(obs.Lat) || !finite(obs.Lon) {
			invalid++
			continue
		}
		idx := grid.BinIndex(obs.Lat, obs.Lon)
		row := grid.RowIndex(idx)
		bin, ok := b.active[idx]
		if !ok {
			if b.finalized[row] {
				// Report each row once.
				b.finalized[row] = false
				b.fault(fmt.Errorf("%w: row %d hit again in slice %d", ErrNonContiguousSlice, row, slice))
			}
			bin = mgr.CreateSpatialBin(idx)
			b.active[idx] = bin
		}
		mgr.AggregateSpatialBin(obs, bin)
		delete(b.candidates, idx)
		if row < minRow {
			minRow = row
		}
		if row > maxRow {
			maxRow = row
		}
	}
	b.numObs += int64(len(observations) - invalid)
	if invalid > 0 {
		b.fault(fmt.Errorf("%w: %d observations skipped in slice %d", ErrInvalidLocation, invalid, slice))
	}

	var done []*SpatialBin
	for idx := range b.candidates {
		// A slice without valid observations finalizes nothing.
		if row := grid.RowIndex(idx); maxRow >= 0 && (row < minRow || row > maxRow) {
			done = append(done, b.active[idx])
			delete(b.active, idx)
			b.finalized[row] = true
		}
		delete(b.candidates, idx)
	}
	if len(done) > 0 {
		b.emit(done)
	}
}

// Complete emits all remaining bins. It must be called after the last
// slice has been processed. Further calls have no effect.
func (b *SpatialBinner) Complete() {
	if len(b.active) > 0 {
		bins := make([]*SpatialBin, 0, len(b.active))
		for _, bin := range b.active {
			bins = append(bins, bin)
		}
		b.active = make(map[uint64]*SpatialBin)
		b.emit(bins)
	}
	for idx := range b.candidates {
		delete(b.candidates, idx)
	}
	for row := range b.finalized {
		b.finalized[row] = false
	}
}

func (b *SpatialBinner) emit(bins []*SpatialBin) {
	sort.Slice(bins, func(i, j int) bool { return bins[i].Index < bins[j].Index })
	for _, bin := range bins {
		b.ctx.BinManager.CompleteSpatialBin(bin)
	}
	b.numEmitted += int64(len(bins))
	if err := b.consumer.ConsumeSpatialBins(b.ctx, bins); err != nil {
		b.fault(fmt.Errorf("binning: consuming %d spatial bins: %w", len(bins), err))
	}
}

func (b *SpatialBinner) fault(err error) {
	b.Log.WithFields(logrus.Fields{
		"slice": b.numSlices - 1,
	}).WithError(err).Warn("binning spatial binner fault")
	b.errs = append(b.errs, err)
}

// Errors returns the faults collected so far: consumer errors, skipped
// observations and non-contiguous slices. Processing continues after a
// fault.
func (b *SpatialBinner) Errors() []error {
	out := make([]error, len(b.errs))
	copy(out, b.errs)
	return out
}

// Err returns all collected faults combined into one error, or nil.
func (b *SpatialBinner) Err() error { return multierr.Combine(b.errs...) }

// NumObservations returns the number of observations processed.
func (b *SpatialBinner) NumObservations() int64 { return b.numObs }

// NumEmitted returns the number of spatial bins passed to the consumer.
func (b *SpatialBinner) NumEmitted() int64 { return b.numEmitted }

// NumActive returns the number of bins still awaiting completion.
func (b *SpatialBinner) NumActive() int { return len(b.active) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
