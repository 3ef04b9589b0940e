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

import "fmt"

// Observation is a single geolocated measurement: one value per
// variable of the VariableContext.
type Observation struct {
	Lat, Lon float64
	Samples  []float32
}

// Vector returns the samples of the observation as a Vector.
func (o Observation) Vector() Vector { return NewVector(o.Samples) }

// Variable is a named input quantity. If Expr is empty, the value is read
// directly from the band of the same name.
type Variable struct {
	Name string
	Expr string
}

// VariableContext is the ordered set of variables whose values make up
// an Observation, plus an optional expression selecting valid pixels.
type VariableContext struct {
	MaskExpr  string
	variables []Variable
	index     map[string]int
}

// NewVariableContext returns an empty variable context.
func NewVariableContext(maskExpr string) *VariableContext {
	return &VariableContext{MaskExpr: maskExpr, index: make(map[string]int)}
}

// DefineVariable adds a variable computed from expr, or replaces the
// expression of an existing variable if expr is not empty.
// It returns the index of the variable.
func (vc *VariableContext) DefineVariable(name, expr string) int {
	if i, ok := vc.index[name]; ok {
		if expr != "" {
			vc.variables[i].Expr = expr
		}
		return i
	}
	vc.index[name] = len(vc.variables)
	vc.variables = append(vc.variables, Variable{Name: name, Expr: expr})
	return len(vc.variables) - 1
}

// VariableCount returns the number of variables.
func (vc *VariableContext) VariableCount() int { return len(vc.variables) }

// Variable returns the i-th variable.
func (vc *VariableContext) Variable(i int) Variable { return vc.variables[i] }

// Variables returns all variables in declaration order.
func (vc *VariableContext) Variables() []Variable {
	out := make([]Variable, len(vc.variables))
	copy(out, vc.variables)
	return out
}

// VariableIndex returns the index of the named variable, or -1.
func (vc *VariableContext) VariableIndex(name string) int {
	if i, ok := vc.index[name]; ok {
		return i
	}
	return -1
}

func (vc *VariableContext) mustIndex(name string) (int, error) {
	i := vc.VariableIndex(name)
	if i < 0 {
		return -1, fmt.Errorf("binning: undefined variable %q", name)
	}
	return i, nil
}
