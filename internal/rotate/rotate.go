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


// Package rotate turns the sphere shown by an equirectangular image.
package rotate

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/pixel"
	"github.com/mlnoga/panoproj/internal/raster"
)

var fullSphere=r2.Rect{X: r1.Interval{Lo: -180, Hi: 180}, Y: r1.Interval{Lo: -90, Hi: 90}}

// Returns the rotation which takes a direction of the output image to the direction sampled
// from the input image: first a pitch by deltaLat about the y axis, then a yaw by deltaLon
// about the polar axis. The image center thus shows the input at (deltaLat, deltaLon)
func Matrix(deltaLatDeg, deltaLonDeg float64) *mat.Dense {
	sinLat, cosLat:=math.Sincos(float64(s1.Angle(deltaLatDeg)*s1.Degree))
	sinLon, cosLon:=math.Sincos(float64(s1.Angle(deltaLonDeg)*s1.Degree))
	yaw:=mat.NewDense(3, 3, []float64{
		cosLon, -sinLon, 0,
		sinLon,  cosLon, 0,
		0,       0,      1,
	})
	pitch:=mat.NewDense(3, 3, []float64{
		cosLat, 0, -sinLat,
		0,      1,  0,
		sinLat, 0,  cosLat,
	})
	var r mat.Dense
	r.Mul(yaw, pitch)
	return &r
}

// Rotates an equirectangular image covering the full sphere by the given latitude and longitude deltas.
// The result has the size of the source and is resampled with the given interpolator
func Equirectangular(src *raster.Image, deltaLatDeg, deltaLonDeg float64, ip *interp.Interpolator) (*raster.Image, error) {
	if src==nil || !src.IsValid() || src.Pixels==0 {
		return nil, errs.New(errs.Interpolation, "empty source image")
	}
	w, h:=src.Width(), src.Height()
	r:=Matrix(deltaLatDeg, deltaLonDeg)

	lat, lon:=grid.NewField(w, h), grid.NewField(w, h)
	v:=mat.NewVecDense(3, nil)
	var s mat.VecDense
	for y:=0; y<h; y++ {
		latDeg:=0.0
		if h>1 { latDeg=90-float64(y)/float64(h-1)*180 }
		for x:=0; x<w; x++ {
			lonDeg:=0.0
			if w>1 { lonDeg=float64(x)/float64(w-1)*360-180 }

			sinPhi, cosPhi:=math.Sincos(float64(s1.Angle(latDeg)*s1.Degree))
			sinLam, cosLam:=math.Sincos(float64(s1.Angle(lonDeg)*s1.Degree))
			v.SetVec(0, cosPhi*cosLam)
			v.SetVec(1, cosPhi*sinLam)
			v.SetVec(2, sinPhi)
			s.MulVec(r, v)

			z:=math.Max(-1, math.Min(1, s.AtVec(2)))
			lat.Set(x, y, s1.Angle(math.Asin(z)).Degrees())
			lon.Set(x, y, s1.Angle(math.Atan2(s.AtVec(1), s.AtVec(0))).Degrees())
		}
	}

	m, err:=pixel.Transformer{Fold: pixel.FoldWrap}.SphericalToImage(lat, lon, fullSphere, w, h)
	if err!=nil { return nil, err }
	if ip==nil { ip=&interp.Interpolator{Kernel: interp.Bilinear, Border: interp.BorderClamp} }
	return ip.Interpolate(src, m, nil)
}
