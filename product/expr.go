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

package product

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/spatialmodel/binning"
)

// functions are available in variable and mask expressions.
var functions = map[string]govaluate.ExpressionFunction{
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"exp":   unary(math.Exp),
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"isnan": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("isnan: want 1 argument, have %d", len(args))
		}
		x, ok := args[0].(float64)
		return ok && math.IsNaN(x), nil
	},
}

func unary(f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("want 1 argument, have %d", len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("argument %v is not a number", args[0])
		}
		return f(x), nil
	}
}

// expression computes a value from the raw bands of a pixel.
type expression struct {
	src   string
	expr  *govaluate.EvaluableExpression
	bands []string

	// band is set when the expression is a plain band reference.
	band string
}

func compile(src string) (*expression, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(src, functions)
	if err != nil {
		return nil, fmt.Errorf("product: invalid expression %q: %w", src, err)
	}
	return &expression{src: src, expr: e, bands: e.Vars()}, nil
}

// CheckExpressions compiles the mask and variable expressions of vc and
// returns the first error.
func CheckExpressions(vc *binning.VariableContext) error {
	if vc.MaskExpr != "" {
		if _, err := compile(vc.MaskExpr); err != nil {
			return err
		}
	}
	for _, v := range vc.Variables() {
		if v.Expr == "" {
			continue
		}
		if _, err := compile(v.Expr); err != nil {
			return err
		}
	}
	return nil
}

// bandExpression reads a band unchanged.
func bandExpression(name string) *expression {
	return &expression{src: name, bands: []string{name}, band: name}
}

func (e *expression) eval(params govaluate.MapParameters) (float64, error) {
	if e.band != "" {
		return params[e.band].(float64), nil
	}
	v, err := e.expr.Eval(params)
	if err != nil {
		return math.NaN(), fmt.Errorf("product: evaluating %q: %w", e.src, err)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return math.NaN(), fmt.Errorf("product: expression %q returned %T", e.src, v)
	}
}

// valid reports whether a mask expression selects a pixel.
func (e *expression) valid(params govaluate.MapParameters) (bool, error) {
	v, err := e.eval(params)
	if err != nil {
		return false, err
	}
	return v != 0 && !math.IsNaN(v), nil
}
