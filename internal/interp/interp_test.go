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

package interp

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/raster"
)

func randomImage(width, height, channels int) *raster.Image {
	f := raster.NewImage(width, height, channels)
	for i := range f.Data {
		f.Data[i] = float32(fastrand.Uint32n(1000)) / 1000
	}
	return f
}

func TestIdentityMapPreservesImage(t *testing.T) {
	src := randomImage(7, 5, 3)
	m := grid.NewIdentityMap(7, 5)
	for _, k := range Kernels() {
		ip := &Interpolator{Kernel: k, Border: BorderReflect, Threads: 2}
		res, err := ip.Interpolate(src, m, nil)
		if err != nil {
			t.Fatalf("kernel %s: error %s", k, err.Error())
		}
		if res.DimensionsToString() != src.DimensionsToString() {
			t.Fatalf("kernel %s: dims=%s; want %s", k, res.DimensionsToString(), src.DimensionsToString())
		}
		for i := range src.Data {
			if math.Abs(float64(res.Data[i]-src.Data[i])) > 1e-5 {
				t.Errorf("kernel %s: data[%d]=%g; want %g", k, i, res.Data[i], src.Data[i])
			}
		}
	}
}

func TestBilinearMidpoint(t *testing.T) {
	src := raster.NewImage(2, 2, 1)
	copy(src.Data, []float32{0, 1, 2, 3})
	m := grid.NewCoordinateMap(1, 1)
	m.X[0], m.Y[0] = 0.5, 0.5
	res, err := (&Interpolator{Kernel: Bilinear, Border: BorderClamp}).Interpolate(src, m, nil)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if math.Abs(float64(res.Data[0]-1.5)) > 1e-6 {
		t.Errorf("value=%g; want 1.5", res.Data[0])
	}
}

func TestMaskZeroesOutput(t *testing.T) {
	src := raster.NewImage(2, 2, 1)
	copy(src.Data, []float32{1, 2, 3, 4})
	m := grid.NewIdentityMap(2, 2)
	mask := grid.NewMask(2, 2)
	copy(mask.Data, []bool{true, false, false, true})
	res, err := (&Interpolator{Kernel: Nearest}).Interpolate(src, m, mask)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	want := []float32{1, 0, 0, 4}
	for i := range want {
		if res.Data[i] != want[i] {
			t.Errorf("data[%d]=%g; want %g", i, res.Data[i], want[i])
		}
	}
}

func TestBorderModes(t *testing.T) {
	src := raster.NewImage(4, 1, 1)
	copy(src.Data, []float32{10, 20, 30, 40})
	tcs := []struct {
		border BorderMode
		x      float32
		want   float32
	}{
		{BorderConstant, -1, -5},
		{BorderConstant, 4, -5},
		{BorderClamp, -2, 10},
		{BorderClamp, 6, 40},
		{BorderWrap, -1, 40},
		{BorderWrap, 5, 20},
		{BorderReflect, -1, 10},
		{BorderReflect, -2, 20},
		{BorderReflect, 4, 40},
		{BorderReflect, 5, 30},
	}
	for _, tc := range tcs {
		m := grid.NewCoordinateMap(1, 1)
		m.X[0], m.Y[0] = tc.x, 0
		ip := &Interpolator{Kernel: Nearest, Border: tc.border, BorderValue: -5}
		res, err := ip.Interpolate(src, m, nil)
		if err != nil {
			t.Fatalf("border %s: error %s", tc.border, err.Error())
		}
		if res.Data[0] != tc.want {
			t.Errorf("border %s x=%g: value=%g; want %g", tc.border, tc.x, res.Data[0], tc.want)
		}
	}
}

func TestNaNCoordinatesReadBorderValue(t *testing.T) {
	src := randomImage(3, 3, 2)
	m := grid.NewIdentityMap(3, 3)
	m.X[4] = float32(math.NaN())
	res, err := (&Interpolator{Kernel: Bicubic, Border: BorderWrap, BorderValue: 7}).Interpolate(src, m, nil)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	for c := 0; c < 2; c++ {
		if v := res.Channel(c)[4]; v != 7 {
			t.Errorf("channel %d value=%g; want 7", c, v)
		}
	}
}

func TestConstantImageStaysConstant(t *testing.T) {
	src := raster.NewImage(9, 9, 1)
	for i := range src.Data {
		src.Data[i] = 0.25
	}
	m := grid.NewCoordinateMap(50, 1)
	for i := range m.X {
		m.X[i], m.Y[i] = float32(fastrand.Uint32n(8000))/1000, float32(fastrand.Uint32n(8000))/1000
	}
	for _, k := range Kernels() {
		res, err := (&Interpolator{Kernel: k, Border: BorderReflect}).Interpolate(src, m, nil)
		if err != nil {
			t.Fatalf("kernel %s: error %s", k, err.Error())
		}
		for i, v := range res.Data {
			if math.Abs(float64(v-0.25)) > 1e-5 {
				t.Errorf("kernel %s: data[%d]=%g; want 0.25", k, i, v)
			}
		}
	}
}

func TestInterpolateErrors(t *testing.T) {
	src := randomImage(2, 2, 1)
	m := grid.NewIdentityMap(2, 2)
	tcs := []struct {
		name string
		ip   *Interpolator
		src  *raster.Image
		m    *grid.CoordinateMap
		mask *grid.Mask
	}{
		{"unknown kernel", &Interpolator{Kernel: "sinc"}, src, m, nil},
		{"unknown border", &Interpolator{Border: "mirror"}, src, m, nil},
		{"empty source", &Interpolator{}, nil, m, nil},
		{"missing map", &Interpolator{}, src, nil, nil},
		{"mask shape", &Interpolator{}, src, m, grid.NewMask(3, 2)},
	}
	for _, tc := range tcs {
		_, err := tc.ip.Interpolate(tc.src, tc.m, tc.mask)
		if !errs.Is(err, errs.Interpolation) {
			t.Errorf("%s: err=%v; want interpolation error", tc.name, err)
		}
	}
}

func TestApplyMask(t *testing.T) {
	img := raster.NewImage(2, 1, 3)
	for i := range img.Data {
		img.Data[i] = 1
	}
	mask := grid.NewMask(2, 1)
	mask.Data[1] = true
	if err := ApplyMask(img, mask); err != nil {
		t.Fatalf("error %s", err.Error())
	}
	want := []float32{0, 1, 0, 1, 0, 1}
	for i := range want {
		if img.Data[i] != want[i] {
			t.Errorf("data[%d]=%g; want %g", i, img.Data[i], want[i])
		}
	}
	if err := ApplyMask(img, grid.NewMask(1, 2)); !errs.Is(err, errs.Interpolation) {
		t.Errorf("err=%v; want interpolation error", err)
	}
}

func TestParse(t *testing.T) {
	if k, err := ParseKernel(" Lanczos4 "); err != nil || k != Lanczos4 {
		t.Errorf("ParseKernel=%v,%v; want lanczos4", k, err)
	}
	if b, err := ParseBorderMode("replicate"); err != nil || b != BorderClamp {
		t.Errorf("ParseBorderMode=%v,%v; want clamp", b, err)
	}
	if _, err := ParseKernel("area"); err == nil {
		t.Errorf("ParseKernel(area) succeeded; want error")
	}
}

func TestMaskPerChannel(t *testing.T) {
	src := raster.NewImage(2, 2, 3)
	for i := range src.Data {
		src.Data[i] = 255
	}
	mask := grid.NewMask(2, 2)
	copy(mask.Data, []bool{true, false, true, false})
	for _, k := range Kernels() {
		res, err := (&Interpolator{Kernel: k, Border: BorderClamp}).Interpolate(src, grid.NewIdentityMap(2, 2), mask)
		if err != nil {
			t.Fatalf("kernel %s: error %s", k, err.Error())
		}
		for c := 0; c < 3; c++ {
			got := res.Channel(c)
			for i, want := range []float32{255, 0, 255, 0} {
				if math.Abs(float64(got[i]-want)) > 1e-3 {
					t.Errorf("kernel %s channel %d: data[%d]=%g; want %g", k, c, i, got[i], want)
				}
			}
		}
	}
}
