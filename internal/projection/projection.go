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


// Package projection implements the spherical to planar map projections.
// Angles are degrees in the API and radians internally. Equations follow
// Snyder, Map Projections - A Working Manual, USGS 1987.
package projection

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
)

// A map projection between the sphere and a plane
type Projection interface {
	// Name of the projection family
	Name() string

	// Bounds of the projection plane covered by the projected image
	Extent() (r2.Rect, error)

	// Inverse equations. Maps planar coordinates to latitudes and longitudes in degrees
	ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error)

	// Forward equations. Maps latitudes and longitudes in degrees to planar coordinates,
	// with a mask which is true where the projection is defined
	ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error)
}

// Creates the projection for a validated configuration
func New(cfg config.Config) (Projection, error) {
	switch c:=cfg.(type) {
	case *config.Gnomonic:
		return NewGnomonic(c.R, c.Phi1Deg, c.Lam0Deg, c.FovDeg), nil
	case *config.Stereographic:
		return NewStereographic(c.R, c.Phi0Deg, c.Lam0Deg, c.FovDeg, c.ScalingFactor), nil
	case *config.Mercator:
		return NewMercator(c.R, c.Lam0Deg, c.BBox), nil
	case *config.ObliqueMercator:
		return NewObliqueMercator(c.R, c.K0, c.CenterLat, c.CenterLon, c.AzimuthDeg, c.FovDeg), nil
	case *config.AzimuthalEquidistant:
		return NewAzimuthalEquidistant(c.R, c.Phi1Deg, c.Lam0Deg, c.FovDeg), nil
	case nil:
		return nil, errs.New(errs.Processing, "missing projection configuration")
	}
	return nil, errs.New(errs.Processing, "unsupported projection '%s'", cfg.Family())
}


// latitude band used by the Mercator projections
const mercatorMaxLat=85.0

// guard for denominators close to zero
const eps=1e-12

func rad(deg float64) float64 { return float64(s1.Angle(deg)*s1.Degree) }
func deg(rad float64) float64 { return s1.Angle(rad).Degrees() }

// Normalizes a longitude in degrees into [-180,180]. Values already in range are left untouched
func normLon(lon float64) float64 {
	if lon>=-180 && lon<=180 { return lon }
	lon=math.Mod(lon+180, 360)
	if lon<0 { lon+=360 }
	return lon-180
}

// Clamps v into [-1,1], for asin and acos arguments
func clampUnit(v float64) float64 {
	if v>1 { return 1 }
	if v< -1 { return -1 }
	return v
}

// Replaces values close to zero with a small number of the same sign
func guard(v float64) float64 {
	if v>=0 && v<eps { return eps }
	if v<0 && v> -eps { return -eps }
	return v
}

// Returns a symmetric extent with given half width and half height
func symmetric(halfX, halfY float64) r2.Rect {
	return r2.RectFromCenterSize(r2.Point{X: 0, Y: 0}, r2.Point{X: 2*halfX, Y: 2*halfY})
}

// Checks the extent is finite and non-degenerate
func checkExtent(name string, e r2.Rect) (r2.Rect, error) {
	for _,v:=range []float64{e.X.Lo, e.X.Hi, e.Y.Lo, e.Y.Hi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r2.Rect{}, errs.New(errs.Processing, "%s projection has non-finite extent", name)
		}
	}
	if !(e.X.Hi>e.X.Lo) || !(e.Y.Hi>e.Y.Lo) {
		return r2.Rect{}, errs.New(errs.Processing, "%s projection has empty extent", name)
	}
	return e, nil
}

// Validates two input fields are congruent
func checkFields(name string, a, b *grid.Field) error {
	if a==nil || b==nil {
		return errs.New(errs.Processing, "%s projection: missing coordinate field", name)
	}
	if !a.SameShape(b) || len(a.Data)!=len(b.Data) || len(a.Data)!=a.Width*a.Height {
		return errs.New(errs.Processing, "%s projection: coordinate fields of shape %s and %s are not congruent",
			name, a.Shape(), b.Shape())
	}
	return nil
}

// Applies an inverse point transform element-wise
func toSpherical(name string, x, y *grid.Field, f func(x, y float64) (lat, lon float64)) (lat, lon *grid.Field, err error) {
	if err=checkFields(name, x, y); err!=nil { return nil, nil, err }
	lat, lon=grid.NewField(x.Width, x.Height), grid.NewField(x.Width, x.Height)
	for i:=range x.Data {
		la, lo:=f(x.Data[i], y.Data[i])
		lat.Data[i], lon.Data[i]=la, normLon(lo)
	}
	return lat, lon, nil
}

// Applies a forward point transform element-wise
func toPlanar(name string, lat, lon *grid.Field, f func(lat, lon float64) (x, y float64, ok bool)) (x, y *grid.Field, mask *grid.Mask, err error) {
	if err=checkFields(name, lat, lon); err!=nil { return nil, nil, nil, err }
	x, y=grid.NewField(lat.Width, lat.Height), grid.NewField(lat.Width, lat.Height)
	mask=grid.NewMask(lat.Width, lat.Height)
	for i:=range lat.Data {
		x.Data[i], y.Data[i], mask.Data[i]=f(lat.Data[i], lon.Data[i])
	}
	return x, y, mask, nil
}

// General azimuthal inverse for a point at polar distance rho and angular distance c from the center (phi1, lam0).
// Snyder (20-14) and (20-15)
func azimuthalInverse(x, y, rho, c, sinPhi1, cosPhi1, lam0 float64) (phi, lam float64) {
	sinC, cosC:=math.Sincos(c)
	phi=math.Asin(clampUnit(cosC*sinPhi1 + y*sinC*cosPhi1/rho))
	lam=lam0+math.Atan2(x*sinC, rho*cosPhi1*cosC - y*sinPhi1*sinC)
	return phi, lam
}
