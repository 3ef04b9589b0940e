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

package binstore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/spatialmodel/binning"
)

// MemoryStore keeps encoded spatial bins in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	bins     map[uint64][][]byte
	products map[string]struct{}
	count    int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bins:     make(map[uint64][][]byte),
		products: make(map[string]struct{}),
	}
}

// ConsumeSpatialBins stores bins without a product name.
func (m *MemoryStore) ConsumeSpatialBins(_ *binning.BinningContext, bins []*binning.SpatialBin) error {
	return m.add("", bins)
}

// ForProduct implements Store.
func (m *MemoryStore) ForProduct(name string) binning.SpatialBinConsumer {
	return productConsumer{name: name, consume: m.add}
}

func (m *MemoryStore) add(product string, bins []*binning.SpatialBin) error {
	encoded := make([][]byte, len(bins))
	for i, b := range bins {
		data, err := b.MarshalBinary()
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range bins {
		m.bins[b.Index] = append(m.bins[b.Index], encoded[i])
	}
	m.products[product] = struct{}{}
	m.count += len(bins)
	return nil
}

// Groups implements binning.SpatialBinSource.
func (m *MemoryStore) Groups(ctx context.Context, r binning.IndexRange, fn func(uint64, []*binning.SpatialBin) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var indices []uint64
	for idx := range m.bins {
		if r.Contains(idx) {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}
		group := make([]*binning.SpatialBin, len(m.bins[idx]))
		for i, data := range m.bins[idx] {
			b, err := binning.ReadSpatialBin(bytes.NewReader(data), idx)
			if err != nil {
				return err
			}
			group[i] = b
		}
		if err := fn(idx, group); err != nil {
			return err
		}
	}
	return nil
}

// Products implements Store.
func (m *MemoryStore) Products(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.products {
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count, nil
}

// Close releases the stored bins.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bins = make(map[uint64][][]byte)
	m.products = make(map[string]struct{})
	m.count = 0
	return nil
}
