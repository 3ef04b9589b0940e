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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Context holds state an aggregator keeps for a single bin between its
// own lifecycle calls that is not part of the bin's feature vector.
// A Context is never serialized.
type Context struct {
	// Values is a growable list of contributions.
	Values []float32
}

// SpatialBin holds the accumulated features of all observations from one
// source image that fell into the same grid cell.
type SpatialBin struct {
	Index      uint64
	NumObs     int
	Properties []float32

	contexts []Context
}

// TemporalBin holds the accumulated features of all spatial bins with the
// same index, possibly from many source images.
type TemporalBin struct {
	Index      uint64
	NumObs     int
	NumPasses  int
	Properties []float32

	contexts []Context
}

// NewSpatialBin returns a spatial bin with numFeatures zeroed properties.
// It panics if numFeatures is negative.
func NewSpatialBin(index uint64, numFeatures int) *SpatialBin {
	checkFeatureCount(numFeatures)
	return &SpatialBin{Index: index, Properties: make([]float32, numFeatures)}
}

// NewTemporalBin returns a temporal bin with numFeatures zeroed properties.
// It panics if numFeatures is negative.
func NewTemporalBin(index uint64, numFeatures int) *TemporalBin {
	checkFeatureCount(numFeatures)
	return &TemporalBin{Index: index, Properties: make([]float32, numFeatures)}
}

func checkFeatureCount(n int) {
	if n < 0 {
		panic(fmt.Errorf("binning: negative number of features: %d", n))
	}
}

func contextAt(contexts *[]Context, n, i int) *Context {
	if *contexts == nil {
		*contexts = make([]Context, n)
	}
	return &(*contexts)[i]
}

// Vector returns all properties of the bin as a vector.
func (b *SpatialBin) Vector() *VectorImpl { return NewVector(b.Properties) }

// Vector returns all properties of the bin as a vector.
func (b *TemporalBin) Vector() *VectorImpl { return NewVector(b.Properties) }

func (b *SpatialBin) String() string {
	return fmt.Sprintf("SpatialBin{index=%d, numObs=%d, properties=%s}",
		b.Index, b.NumObs, formatFloats(b.Properties))
}

func (b *TemporalBin) String() string {
	return fmt.Sprintf("TemporalBin{index=%d, numObs=%d, numPasses=%d, properties=%s}",
		b.Index, b.NumObs, b.NumPasses, formatFloats(b.Properties))
}

// The binary encodings below are big-endian and do not include the bin
// index: the index is the key under which the encoded bin is stored, and
// readers take it from there.

// WriteTo writes the binary encoding of the bin to w.
func (b *SpatialBin) WriteTo(w io.Writer) (int64, error) {
	return writeBin(w, []int32{int32(b.NumObs)}, b.Properties)
}

// WriteTo writes the binary encoding of the bin to w.
func (b *TemporalBin) WriteTo(w io.Writer) (int64, error) {
	return writeBin(w, []int32{int32(b.NumObs), int32(b.NumPasses)}, b.Properties)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *SpatialBin) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	return buf.Bytes(), err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *TemporalBin) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	return buf.Bytes(), err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// The index of the receiver is left unchanged.
func (b *SpatialBin) UnmarshalBinary(data []byte) error {
	counts, props, err := readBin(bytes.NewReader(data), 1)
	if err != nil {
		return err
	}
	b.NumObs, b.Properties = int(counts[0]), props
	return nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// The index of the receiver is left unchanged.
func (b *TemporalBin) UnmarshalBinary(data []byte) error {
	counts, props, err := readBin(bytes.NewReader(data), 2)
	if err != nil {
		return err
	}
	b.NumObs, b.NumPasses, b.Properties = int(counts[0]), int(counts[1]), props
	return nil
}

// ReadSpatialBin reads a spatial bin written by WriteTo and assigns it
// the given index.
func ReadSpatialBin(r io.Reader, index uint64) (*SpatialBin, error) {
	counts, props, err := readBin(r, 1)
	if err != nil {
		return nil, err
	}
	return &SpatialBin{Index: index, NumObs: int(counts[0]), Properties: props}, nil
}

// ReadTemporalBin reads a temporal bin written by WriteTo and assigns it
// the given index.
func ReadTemporalBin(r io.Reader, index uint64) (*TemporalBin, error) {
	counts, props, err := readBin(r, 2)
	if err != nil {
		return nil, err
	}
	return &TemporalBin{Index: index, NumObs: int(counts[0]), NumPasses: int(counts[1]), Properties: props}, nil
}

func writeBin(w io.Writer, counts []int32, props []float32) (int64, error) {
	buf := make([]byte, 4*(len(counts)+1+len(props)))
	o := 0
	for _, c := range counts {
		binary.BigEndian.PutUint32(buf[o:], uint32(c))
		o += 4
	}
	binary.BigEndian.PutUint32(buf[o:], uint32(len(props)))
	o += 4
	for _, p := range props {
		binary.BigEndian.PutUint32(buf[o:], math.Float32bits(p))
		o += 4
	}
	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("binning: writing bin: %w", err)
	}
	return int64(n), nil
}

// MaxFeatures is the largest number of properties accepted when reading
// an encoded bin.
const MaxFeatures = 1 << 16

func readBin(r io.Reader, numCounts int) ([]int32, []float32, error) {
	head := make([]byte, 4*(numCounts+1))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, nil, fmt.Errorf("binning: reading bin header: %w", err)
	}
	counts := make([]int32, numCounts)
	for i := range counts {
		counts[i] = int32(binary.BigEndian.Uint32(head[4*i:]))
	}
	n := int32(binary.BigEndian.Uint32(head[4*numCounts:]))
	if n < 0 || n > MaxFeatures {
		return nil, nil, fmt.Errorf("binning: invalid number of bin properties: %d", n)
	}
	body := make([]byte, 4*int(n))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("binning: reading bin properties: %w", err)
	}
	props := make([]float32, n)
	for i := range props {
		props[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return counts, props, nil
}
