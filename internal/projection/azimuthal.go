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

package projection

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s2"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
)

// Gnomonic projection. Projects great circles to straight lines, covers less than a hemisphere
type Gnomonic struct {
	R       float64
	Phi1Deg float64 // center latitude
	Lam0Deg float64 // center longitude
	FovDeg  float64

	sinPhi1, cosPhi1, lam0 float64
}

func NewGnomonic(r, phi1Deg, lam0Deg, fovDeg float64) *Gnomonic {
	p:=&Gnomonic{R: r, Phi1Deg: phi1Deg, Lam0Deg: lam0Deg, FovDeg: fovDeg}
	p.sinPhi1, p.cosPhi1=math.Sincos(rad(phi1Deg))
	p.lam0=rad(lam0Deg)
	return p
}

func (p *Gnomonic) Name() string { return string(config.FamilyGnomonic) }

func (p *Gnomonic) Extent() (r2.Rect, error) {
	if !(p.FovDeg>0 && p.FovDeg<180) {
		return r2.Rect{}, errs.New(errs.Processing, "gnomonic projection undefined for fov %g°, expecting (0,180)", p.FovDeg)
	}
	half:=p.R*math.Tan(rad(p.FovDeg)/2)
	return checkExtent(p.Name(), symmetric(half, half))
}

func (p *Gnomonic) ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error) {
	return toSpherical(p.Name(), x, y, func(x, y float64) (float64, float64) {
		rho:=math.Hypot(x, y)
		if rho==0 { return p.Phi1Deg, p.Lam0Deg }
		c:=math.Atan2(rho, p.R)
		phi, lam:=azimuthalInverse(x, y, rho, c, p.sinPhi1, p.cosPhi1, p.lam0)
		return deg(phi), deg(lam)
	})
}

func (p *Gnomonic) ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error) {
	return toPlanar(p.Name(), lat, lon, func(lat, lon float64) (float64, float64, bool) {
		sinPhi, cosPhi:=math.Sincos(rad(lat))
		sinDL, cosDL:=math.Sincos(rad(lon)-p.lam0)
		cosC:=p.sinPhi1*sinPhi + p.cosPhi1*cosPhi*cosDL
		k:=p.R/guard(cosC)
		return k*cosPhi*sinDL, k*(p.cosPhi1*sinPhi - p.sinPhi1*cosPhi*cosDL), cosC>0
	})
}


// Stereographic projection. Conformal, covers all of the sphere except the antipode of the center
type Stereographic struct {
	R             float64
	Phi0Deg       float64 // center latitude
	Lam0Deg       float64 // center longitude
	FovDeg        float64
	ScalingFactor float64 // scale factor k0 at the center

	sinPhi0, cosPhi0, lam0 float64
}

func NewStereographic(r, phi0Deg, lam0Deg, fovDeg, scalingFactor float64) *Stereographic {
	p:=&Stereographic{R: r, Phi0Deg: phi0Deg, Lam0Deg: lam0Deg, FovDeg: fovDeg, ScalingFactor: scalingFactor}
	p.sinPhi0, p.cosPhi0=math.Sincos(rad(phi0Deg))
	p.lam0=rad(lam0Deg)
	return p
}

func (p *Stereographic) Name() string { return string(config.FamilyStereographic) }

func (p *Stereographic) Extent() (r2.Rect, error) {
	if !(p.FovDeg>0 && p.FovDeg<=180) || !(p.ScalingFactor>0) {
		return r2.Rect{}, errs.New(errs.Processing, "stereographic projection undefined for fov %g° and scaling %g", p.FovDeg, p.ScalingFactor)
	}
	half:=2*p.R*p.ScalingFactor*math.Tan(rad(p.FovDeg)/4)
	return checkExtent(p.Name(), symmetric(half, half))
}

func (p *Stereographic) ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error) {
	return toSpherical(p.Name(), x, y, func(x, y float64) (float64, float64) {
		x, y=x/p.ScalingFactor, y/p.ScalingFactor
		rho:=math.Hypot(x, y)
		if rho==0 { return p.Phi0Deg, p.Lam0Deg }
		c:=2*math.Atan(rho/(2*p.R))
		phi, lam:=azimuthalInverse(x, y, rho, c, p.sinPhi0, p.cosPhi0, p.lam0)
		return deg(phi), deg(lam)
	})
}

func (p *Stereographic) ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error) {
	return toPlanar(p.Name(), lat, lon, func(lat, lon float64) (float64, float64, bool) {
		sinPhi, cosPhi:=math.Sincos(rad(lat))
		sinDL, cosDL:=math.Sincos(rad(lon)-p.lam0)
		denom:=1 + p.sinPhi0*sinPhi + p.cosPhi0*cosPhi*cosDL
		k:=2*p.R*p.ScalingFactor/guard(denom)
		return k*cosPhi*sinDL, k*(p.cosPhi0*sinPhi - p.sinPhi0*cosPhi*cosDL), denom>eps
	})
}


// Azimuthal equidistant projection. Distances and directions from the center are true
type AzimuthalEquidistant struct {
	R       float64
	Phi1Deg float64 // center latitude
	Lam0Deg float64 // center longitude
	FovDeg  float64

	center                 s2.LatLng
	sinPhi1, cosPhi1, lam0 float64
}

func NewAzimuthalEquidistant(r, phi1Deg, lam0Deg, fovDeg float64) *AzimuthalEquidistant {
	p:=&AzimuthalEquidistant{R: r, Phi1Deg: phi1Deg, Lam0Deg: lam0Deg, FovDeg: fovDeg}
	p.center=s2.LatLngFromDegrees(phi1Deg, lam0Deg)
	p.sinPhi1, p.cosPhi1=math.Sincos(rad(phi1Deg))
	p.lam0=rad(lam0Deg)
	return p
}

func (p *AzimuthalEquidistant) Name() string { return string(config.FamilyAzimuthalEquidistant) }

func (p *AzimuthalEquidistant) Extent() (r2.Rect, error) {
	if !(p.FovDeg>0 && p.FovDeg<=360) {
		return r2.Rect{}, errs.New(errs.Processing, "azimuthal equidistant projection undefined for fov %g°", p.FovDeg)
	}
	half:=p.R*rad(p.FovDeg)/2
	return checkExtent(p.Name(), symmetric(half, half))
}

func (p *AzimuthalEquidistant) ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error) {
	return toSpherical(p.Name(), x, y, func(x, y float64) (float64, float64) {
		rho:=math.Hypot(x, y)
		if rho==0 { return p.Phi1Deg, p.Lam0Deg }
		phi, lam:=azimuthalInverse(x, y, rho, rho/p.R, p.sinPhi1, p.cosPhi1, p.lam0)
		return deg(phi), deg(lam)
	})
}

func (p *AzimuthalEquidistant) ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error) {
	return toPlanar(p.Name(), lat, lon, func(lat, lon float64) (float64, float64, bool) {
		// Angular distance via haversine, stable near the center and the antipode
		c:=float64(s2.LatLngFromDegrees(lat, lon).Distance(p.center))
		sinPhi, cosPhi:=math.Sincos(rad(lat))
		sinDL, cosDL:=math.Sincos(rad(lon)-p.lam0)
		k:=1.0
		if sinC:=math.Sin(c); c>1e-8 {
			if sinC<eps {
				// antipode: every direction is equally valid, so the position is undefined
				return 0, -p.R*c, false
			}
			k=c/sinC
		}
		return p.R*k*cosPhi*sinDL, p.R*k*(p.cosPhi1*sinPhi - p.sinPhi1*cosPhi*cosDL), true
	})
}
