// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package grid

import (
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/panoproj/internal/errs"
)

// Direction of a projection run
type Direction string

const (
	Forward  Direction = "forward"  // equirectangular to projected, samples the projection plane
	Backward Direction = "backward" // projected to equirectangular, samples the sphere
)

// Parses a direction name, case insensitive
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Forward:
		return Forward, nil
	case Backward:
		return Backward, nil
	}
	return "", errs.New(errs.GridGeneration, "invalid direction '%s', expecting forward or backward", s)
}

// Generates the sampling lattices. Holds no state besides its parameters,
// so repeated calls return identical lattices
type Generator struct {
	XPoints   int      // samples across the projection plane
	YPoints   int      // samples down the projection plane
	LonPoints int      // samples along longitude
	LatPoints int      // samples along latitude
	Planar    r2.Rect  // extent of the projection plane
	Spherical r2.Rect  // longitude (X) and latitude (Y) bounds in degrees
}

// Generates the lattice for the given direction.
// Forward returns planar x and y, with rows running from the top of the plane (maximum y) downwards.
// Backward returns longitude and latitude in degrees, with rows running from minimum latitude upwards
func (g *Generator) Generate(dir Direction) (a, b *Field, err error) {
	switch dir {
	case Forward:
		xs, err:=linspace(g.Planar.X.Lo, g.Planar.X.Hi, g.XPoints, "x")
		if err!=nil { return nil, nil, err }
		ys, err:=linspace(g.Planar.Y.Hi, g.Planar.Y.Lo, g.YPoints, "y")
		if err!=nil { return nil, nil, err }
		a, b=meshgrid(xs, ys)
		return a, b, nil
	case Backward:
		lons, err:=linspace(g.Spherical.X.Lo, g.Spherical.X.Hi, g.LonPoints, "longitude")
		if err!=nil { return nil, nil, err }
		lats, err:=linspace(g.Spherical.Y.Lo, g.Spherical.Y.Hi, g.LatPoints, "latitude")
		if err!=nil { return nil, nil, err }
		a, b=meshgrid(lons, lats)
		return a, b, nil
	}
	return nil, nil, errs.New(errs.GridGeneration, "invalid direction '%s', expecting forward or backward", dir)
}

// Generates the lattice for the named direction
func (g *Generator) GenerateString(dir string) (a, b *Field, err error) {
	d, err:=ParseDirection(dir)
	if err!=nil { return nil, nil, err }
	return g.Generate(d)
}

// Returns n linearly spaced values from lo to hi inclusive. A single point is placed at lo
func linspace(lo, hi float64, n int, name string) ([]float64, error) {
	if n<1 {
		return nil, errs.New(errs.GridGeneration, "%s resolution %d must be positive", name, n)
	}
	if math.IsNaN(lo) || math.IsInf(lo, 0) || math.IsNaN(hi) || math.IsInf(hi, 0) {
		return nil, errs.New(errs.GridGeneration, "non-finite %s bounds [%g, %g]", name, lo, hi)
	}
	vals:=make([]float64, n)
	if n==1 {
		vals[0]=lo
		return vals, nil
	}
	return floats.Span(vals, lo, hi), nil
}

// Expands axis values into row-major fields, the x values varying along rows
func meshgrid(xs, ys []float64) (*Field, *Field) {
	w, h:=len(xs), len(ys)
	a, b:=NewField(w, h), NewField(w, h)
	for y:=0; y<h; y++ {
		copy(a.Data[y*w:(y+1)*w], xs)
		row:=b.Data[y*w:(y+1)*w]
		for x:=range row {
			row[x]=ys[y]
		}
	}
	return a, b
}
