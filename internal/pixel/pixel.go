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


// Package pixel converts spherical or planar coordinate lattices into fractional pixel coordinates.
package pixel

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
)

// Policy for folding latitudes and longitudes outside the nominal domain back into range
type FoldPolicy string

const (
	FoldReflect FoldPolicy = "reflect" // mirror at the bound: v' = bound - (v - bound)
	FoldWrap    FoldPolicy = "wrap"    // periodic longitude; crossing a pole reflects latitude and turns longitude by 180°
)

// Converts coordinate lattices into coordinate maps addressing a source image
type Transformer struct {
	Fold FoldPolicy
}

// Maps a spherical lattice in degrees onto pixel coordinates of an equirectangular image of given size,
// covering the given bounds (longitudes on X, latitudes on Y). Latitude increases upwards.
// Coordinates outside [-90,90] and [-180,180] are folded once before rescaling
func (t Transformer) SphericalToImage(lat, lon *grid.Field, bounds r2.Rect, width, height int) (*grid.CoordinateMap, error) {
	if err:=checkInputs(lat, lon, width, height); err!=nil { return nil, err }
	if err:=checkBounds(bounds, "spherical"); err!=nil { return nil, err }
	if t.Fold!=FoldReflect && t.Fold!=FoldWrap && t.Fold!="" {
		return nil, errs.New(errs.Configuration, "unknown fold policy '%s'", t.Fold)
	}

	m:=grid.NewCoordinateMap(lat.Width, lat.Height)
	lonScale:=float64(width-1)/(bounds.X.Hi-bounds.X.Lo)
	latScale:=float64(height-1)/(bounds.Y.Hi-bounds.Y.Lo)
	for i:=range lat.Data {
		la, lo:=t.fold(lat.Data[i], lon.Data[i])
		m.X[i]=float32((lo-bounds.X.Lo)*lonScale)
		m.Y[i]=float32((bounds.Y.Hi-la)*latScale)
	}
	return m, nil
}

// Maps a planar lattice onto pixel coordinates of a projected image of given size, covering the given planar extent.
// Y increases upwards, so the top row of the image corresponds to the maximum of the extent
func (t Transformer) ProjectionToImage(x, y *grid.Field, extent r2.Rect, width, height int) (*grid.CoordinateMap, error) {
	if err:=checkInputs(x, y, width, height); err!=nil { return nil, err }
	if err:=checkBounds(extent, "planar"); err!=nil { return nil, err }

	m:=grid.NewCoordinateMap(x.Width, x.Height)
	xScale:=float64(width-1)/(extent.X.Hi-extent.X.Lo)
	yScale:=float64(height-1)/(extent.Y.Hi-extent.Y.Lo)
	for i:=range x.Data {
		m.X[i]=float32((x.Data[i]-extent.X.Lo)*xScale)
		m.Y[i]=float32((extent.Y.Hi-y.Data[i])*yScale)
	}
	return m, nil
}

// Folds a latitude and longitude once into [-90,90] and [-180,180], per the policy
func (t Transformer) fold(lat, lon float64) (float64, float64) {
	if t.Fold==FoldWrap {
		if lat>90 {
			lat, lon=180-lat, lon+180
		} else if lat< -90 {
			lat, lon=-180-lat, lon+180
		}
		if lon>180 || lon< -180 {
			lon=math.Mod(lon+180, 360)
			if lon<0 { lon+=360 }
			lon-=180
		}
		return lat, lon
	}

	if lat>90 {
		lat=90-(lat-90)
	} else if lat< -90 {
		lat=-90-(lat+90)
	}
	if lon>180 {
		lon=180-(lon-180)
	} else if lon< -180 {
		lon=-180-(lon+180)
	}
	return lat, lon
}

func checkInputs(a, b *grid.Field, width, height int) error {
	if a==nil || b==nil {
		return errs.New(errs.Transformation, "missing coordinate grid")
	}
	if !a.SameShape(b) || len(a.Data)!=a.Width*a.Height || len(b.Data)!=b.Width*b.Height {
		return errs.New(errs.Transformation, "coordinate grids of shape %s and %s are not congruent", a.Shape(), b.Shape())
	}
	if width<1 || height<1 {
		return errs.New(errs.Transformation, "invalid image size %dx%d", width, height)
	}
	return nil
}

func checkBounds(b r2.Rect, name string) error {
	vals:=[]float64{b.X.Lo, b.X.Hi, b.Y.Lo, b.Y.Hi}
	for _,v:=range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.New(errs.Configuration, "non-finite %s bounds %v", name, b)
		}
	}
	if !(b.X.Hi>b.X.Lo) || !(b.Y.Hi>b.Y.Lo) {
		return errs.New(errs.Configuration, "missing or degenerate %s bounds %v", name, b)
	}
	return nil
}
