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
	"strconv"
	"strings"
)

// Vector is a read-only sequence of feature values.
type Vector interface {
	Size() int
	Get(i int) float32
}

// WritableVector is a Vector whose elements can be set.
type WritableVector interface {
	Vector
	Set(i int, v float32)
}

// VectorImpl is a window into a backing array of feature values.
// Creating a window does not copy the values.
type VectorImpl struct {
	elements []float32
	offset   int
	size     int
}

// NewVector returns a vector spanning all of the given elements.
func NewVector(elements []float32) *VectorImpl {
	return &VectorImpl{elements: elements, size: len(elements)}
}

// Size implements Vector.
func (v *VectorImpl) Size() int { return v.size }

// Get implements Vector.
func (v *VectorImpl) Get(i int) float32 { return v.elements[v.offset+i] }

// Set implements WritableVector.
func (v *VectorImpl) Set(i int, x float32) { v.elements[v.offset+i] = x }

// window returns a view of n elements starting at offset,
// relative to the start of the backing array.
func (v *VectorImpl) window(offset, n int) *VectorImpl {
	return &VectorImpl{elements: v.elements, offset: offset, size: n}
}

// Floats returns a copy of the values in the vector.
func (v *VectorImpl) Floats() []float32 {
	out := make([]float32, v.size)
	copy(out, v.elements[v.offset:v.offset+v.size])
	return out
}

func (v *VectorImpl) String() string { return formatFloats(v.elements[v.offset : v.offset+v.size]) }

// formatFloats renders values as "[1.2, 0.0, 2.4]".
func formatFloats(values []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		s := strconv.FormatFloat(float64(x), 'g', -1, 32)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		b.WriteString(s)
	}
	b.WriteByte(']')
	return b.String()
}
