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

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
)

// Normal Mercator projection on the sphere. Latitudes are clamped to ±85°,
// longitudes are measured from the central meridian starting at the western bound
type Mercator struct {
	R       float64
	Lam0Deg float64
	BBox    config.BBox
}

func NewMercator(r, lam0Deg float64, bbox config.BBox) *Mercator {
	return &Mercator{R: r, Lam0Deg: lam0Deg, BBox: bbox}
}

func (p *Mercator) Name() string { return string(config.FamilyMercator) }

// Mercator ordinate for a latitude in degrees, clamped to the safe band
func mercatorY(latDeg float64) float64 {
	latDeg=math.Max(-mercatorMaxLat, math.Min(mercatorMaxLat, latDeg))
	return math.Log(math.Tan(math.Pi/4 + rad(latDeg)/2))
}

// Longitude offset from the central meridian, wrapped into the 360° window starting at the western bound
func (p *Mercator) deltaLon(lon float64) float64 {
	lo:=p.BBox.LonMin-p.Lam0Deg
	d:=lon-p.Lam0Deg
	for d<lo-1e-9 { d+=360 }
	for d>lo+360+1e-9 { d-=360 }
	return d
}

func (p *Mercator) Extent() (r2.Rect, error) {
	b:=p.BBox
	e:=r2.Rect{
		X: r1.Interval{Lo: p.R*rad(b.LonMin-p.Lam0Deg), Hi: p.R*rad(b.LonMax-p.Lam0Deg)},
		Y: r1.Interval{Lo: p.R*mercatorY(b.LatMin), Hi: p.R*mercatorY(b.LatMax)},
	}
	return checkExtent(p.Name(), e)
}

func (p *Mercator) ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error) {
	return toSpherical(p.Name(), x, y, func(x, y float64) (float64, float64) {
		phi:=2*math.Atan(math.Exp(y/p.R)) - math.Pi/2
		return deg(phi), p.Lam0Deg+deg(x/p.R)
	})
}

func (p *Mercator) ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error) {
	return toPlanar(p.Name(), lat, lon, func(lat, lon float64) (float64, float64, bool) {
		return p.R*rad(p.deltaLon(lon)), p.R*mercatorY(lat), true
	})
}


// Oblique Mercator projection on the sphere, Snyder (9-1) to (9-8). The central line is the great circle
// through the center point with the given azimuth. The center maps to the origin of the plane
type ObliqueMercator struct {
	R          float64
	K0         float64 // scale factor along the central line
	CenterLat  float64
	CenterLon  float64
	AzimuthDeg float64 // azimuth of the central line at the center, east of north
	FovDeg     float64

	sinPhiP, cosPhiP float64 // latitude of the oblique pole
	lam0             float64 // longitude where the central line crosses the oblique equator ascending
	x0               float64 // abscissa of the center, before offsetting
}

func NewObliqueMercator(r, k0, centerLat, centerLon, azimuthDeg, fovDeg float64) *ObliqueMercator {
	p:=&ObliqueMercator{R: r, K0: k0, CenterLat: centerLat, CenterLon: centerLon, AzimuthDeg: azimuthDeg, FovDeg: fovDeg}
	sinPhiC, cosPhiC:=math.Sincos(rad(centerLat))
	sinAlpha, cosAlpha:=math.Sincos(rad(azimuthDeg))

	phiP:=math.Asin(clampUnit(cosPhiC*sinAlpha))
	lamP:=rad(centerLon)+math.Atan2(-cosAlpha, -sinPhiC*sinAlpha)
	p.sinPhiP, p.cosPhiP=math.Sincos(phiP)
	p.lam0=lamP+math.Pi/2

	p.x0, _, _=p.forward(rad(centerLat), rad(centerLon))
	return p
}

func (p *ObliqueMercator) Name() string { return string(config.FamilyObliqueMercator) }

func (p *ObliqueMercator) Extent() (r2.Rect, error) {
	if !(p.FovDeg>0 && p.FovDeg<=360) || !(p.K0>0) {
		return r2.Rect{}, errs.New(errs.Processing, "oblique mercator projection undefined for fov %g° and k0 %g", p.FovDeg, p.K0)
	}
	scale:=p.R*p.K0
	halfX:=scale*rad(p.FovDeg)/2
	halfY:=scale*mercatorY(p.FovDeg/2)
	return checkExtent(p.Name(), symmetric(halfX, halfY))
}

// Unscaled, unshifted forward equations in radians. Returns false where the point lies on the oblique poles
func (p *ObliqueMercator) forward(phi, lam float64) (x, y float64, ok bool) {
	sinPhi, cosPhi:=math.Sincos(phi)
	sinDL, cosDL:=math.Sincos(lam-p.lam0)
	a:=p.sinPhiP*sinPhi - p.cosPhiP*cosPhi*sinDL
	ok=math.Abs(a)<1-eps
	a=math.Max(-(1-eps), math.Min(1-eps, a))
	// tan(phi) form of (9-1), multiplied through by cos(phi) to stay finite at the poles
	x=math.Atan2(sinPhi*p.cosPhiP + p.sinPhiP*cosPhi*sinDL, cosPhi*cosDL)
	y=math.Atanh(a)
	return x, y, ok
}

func (p *ObliqueMercator) ToSpherical(x, y *grid.Field) (lat, lon *grid.Field, err error) {
	scale:=p.R*p.K0
	return toSpherical(p.Name(), x, y, func(x, y float64) (float64, float64) {
		xs, ys:=x/scale+p.x0, y/scale
		sinX, cosX:=math.Sincos(xs)
		phi:=math.Asin(clampUnit(p.sinPhiP*math.Tanh(ys) + p.cosPhiP*sinX/math.Cosh(ys)))
		lam:=p.lam0+math.Atan2(p.sinPhiP*sinX - p.cosPhiP*math.Sinh(ys), cosX)
		return deg(phi), deg(lam)
	})
}

func (p *ObliqueMercator) ToPlanar(lat, lon *grid.Field) (x, y *grid.Field, mask *grid.Mask, err error) {
	scale:=p.R*p.K0
	return toPlanar(p.Name(), lat, lon, func(lat, lon float64) (float64, float64, bool) {
		xs, ys, ok:=p.forward(rad(lat), rad(lon))
		xs=math.Remainder(xs-p.x0, 2*math.Pi)
		return scale*xs, scale*ys, ok
	})
}
