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

// BinningContext holds everything that is fixed for the duration of a
// binning run: the grid, the input variables and the bin layout.
type BinningContext struct {
	Grid            PlanetaryGrid
	VariableContext *VariableContext
	BinManager      *BinManager

	// SuperSampling is the number of sub-pixel samples per pixel edge.
	SuperSampling int
}

// NewBinningContext creates the grid and the aggregators of a binning run.
// The variables read by the aggregators are defined in addition to the
// given variables, which may carry expressions. Any error here is a
// configuration error and must abort the run.
func NewBinningContext(numRows, superSampling int, maskExpr string, variables []Variable, aggregators []AggregatorConfig) (*BinningContext, error) {
	if numRows == 0 {
		numRows = DefaultNumRows
	}
	grid, err := NewSEAGrid(numRows)
	if err != nil {
		return nil, err
	}
	if len(aggregators) == 0 {
		return nil, fmt.Errorf("binning: no aggregators configured")
	}
	varCtx := NewVariableContext(maskExpr)
	for _, v := range variables {
		if v.Name == "" {
			return nil, fmt.Errorf("binning: variable with expression %q has no name", v.Expr)
		}
		varCtx.DefineVariable(v.Name, v.Expr)
	}
	for _, c := range aggregators {
		for _, name := range c.VariableNames() {
			varCtx.DefineVariable(name, "")
		}
	}
	aggs := make([]Aggregator, len(aggregators))
	for i, c := range aggregators {
		if aggs[i], err = NewAggregator(varCtx, c); err != nil {
			return nil, err
		}
	}
	if superSampling < 1 {
		superSampling = 1
	}
	return &BinningContext{
		Grid:            grid,
		VariableContext: varCtx,
		BinManager:      NewBinManager(aggs...),
		SuperSampling:   superSampling,
	}, nil
}
