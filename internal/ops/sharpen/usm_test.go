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

package sharpen

import (
	"bytes"
	"math"
	"testing"

	"github.com/mlnoga/panoproj/internal/ops"
	"github.com/mlnoga/panoproj/internal/raster"
	"github.com/mlnoga/panoproj/internal/stats"
)

type gaussianKernelTestCase struct {
	Sigma  float32
	Kernel []float32
}

func TestNewGaussianKernel(t *testing.T) {
	epsilon := 1e-5
	tcs := []gaussianKernelTestCase{
		{1.0, []float32{0.27901, 0.44198, 0.27901}},
		{2.0, []float32{0.028532, 0.067234, 0.124009, 0.179044, 0.20236, 0.179044, 0.124009, 0.067234, 0.028532}},
		{3.0, []float32{0.018816, 0.034474, 0.056577, 0.083173, 0.109523, 0.129188, 0.136498, 0.129188, 0.109523,
			0.083173, 0.056577, 0.034474, 0.018816}},
	}

	for _, tc := range tcs {
		kernel := NewGaussianKernel(tc.Sigma)
		if len(kernel) != len(tc.Kernel) {
			t.Fatalf("sigma=%f len=%d; want %d", tc.Sigma, len(kernel), len(tc.Kernel))
		}
		sum := float32(0)
		for i, k := range kernel {
			if math.Abs(float64(k-tc.Kernel[i])) > epsilon {
				t.Errorf("sigma=%f k[%d]=%f; want %f", tc.Sigma, i, k, tc.Kernel[i])
			}
			sum += k
		}
		if math.Abs(float64(sum-1)) > epsilon {
			t.Errorf("sigma=%f sum=%f; want 1", tc.Sigma, sum)
		}
	}
}

func TestTinySigmaKernel(t *testing.T) {
	k := NewGaussianKernel(0.05)
	if len(k) != 1 || math.Abs(float64(k[0]-1)) > 1e-6 {
		t.Errorf("kernel=%v; want [1]", k)
	}
}

func TestReflect(t *testing.T) {
	tcs := []struct {
		size, x, want int
	}{
		{5, 3, 3},
		{5, -1, 0},
		{5, -2, 1},
		{5, 5, 4},
		{5, 6, 3},
		{2, -1, 0},
		{2, 2, 1},
		{2, 5, 1},
		{2, -6, 1},
		{1, -6, 0},
		{1, 6, 0},
	}
	for _, tc := range tcs {
		if got := reflect(tc.size, tc.x); got != tc.want {
			t.Errorf("reflect(%d,%d)=%d; want %d", tc.size, tc.x, got, tc.want)
		}
	}
}

func TestBlurImageSmallerThanKernel(t *testing.T) {
	tcs := []struct {
		data     []float32
		width    int
		constant bool
	}{
		{[]float32{0.5}, 1, true},
		{[]float32{0, 1, 1, 0}, 2, false},
		{[]float32{0.25, 0.25}, 1, true},
		{[]float32{0.25, 0.75, 0.5}, 3, false},
	}
	for _, tc := range tcs {
		res := UnsharpMask(tc.data, tc.width, 3, 1, 0, 1, 0)
		if len(res) != len(tc.data) {
			t.Fatalf("%v: len=%d; want %d", tc.data, len(res), len(tc.data))
		}
		for i, v := range res {
			if math.IsNaN(float64(v)) || v < 0 || v > 1 {
				t.Errorf("%v: res[%d]=%f; want within [0,1]", tc.data, i, v)
			}
			if tc.constant && math.Abs(float64(v-tc.data[i])) > 1e-5 {
				t.Errorf("%v: res[%d]=%f; want %f", tc.data, i, v, tc.data[i])
			}
		}
	}

	f := raster.NewImage(2, 2, 3)
	for i := range f.Data {
		f.Data[i] = float32(i%4) / 3
	}
	c := &ops.Context{Log: &bytes.Buffer{}, LSEstimatorMode: stats.LSEMeanStdDev}
	res, err := NewOpUnsharpMask(3, 1, 0).Apply(f, c)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res.DimensionsToString() != "2x2x3" {
		t.Errorf("dims=%s; want 2x2x3", res.DimensionsToString())
	}
}

func TestBlurSpreadsPeak(t *testing.T) {
	for _, dim := range []int{15, 31, 63} {
		for _, sigma := range []float32{1.0, 2.0, 3.0} {
			width, height := dim, dim
			sharp := make([]float32, width*height)
			peak := float32(9.99)
			sharp[width*(height/2)+width/2] = peak

			kernel := NewGaussianKernel(sigma)
			r := len(kernel) / 2
			blur, tmp := make([]float32, width*height), make([]float32, width*height)
			kernel.Blur(blur, tmp, sharp, width)

			sum := float32(0)
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					v := blur[y*width+x]
					sum += v
					inside := abs(x-width/2) <= r && abs(y-height/2) <= r
					if inside && (v <= 0 || v >= peak) {
						t.Errorf("dim=%d sigma=%f b[%d,%d]=%f; want >0 <%f", dim, sigma, x, y, v, peak)
					} else if !inside && v != 0 {
						t.Errorf("dim=%d sigma=%f b[%d,%d]=%f; want 0", dim, sigma, x, y, v)
					}
				}
			}
			if math.Abs(float64(sum-peak)) > 1e-4 {
				t.Errorf("dim=%d sigma=%f sum=%f; want %f", dim, sigma, sum, peak)
			}
		}
	}
}

func TestUnsharpMask(t *testing.T) {
	epsilon := 1e-5
	for _, sigma := range []float32{1.0, 2.0, 3.0} {
		width, height := 15, 15
		back, peak, max := float32(10), float32(15), float32(20)
		sharp := make([]float32, width*height)
		for i := range sharp {
			sharp[i] = back
		}
		sharp[width*(height/2)+width/2] = peak

		res := UnsharpMask(sharp, width, sigma, 1.0, 0, max, 0)
		r := len(NewGaussianKernel(sigma)) / 2

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := res[y*width+x]
				switch {
				case x == width/2 && y == height/2:
					if v <= peak || v > max {
						t.Errorf("sigma=%f center=%f; want >%f <=%f", sigma, v, peak, max)
					}
				case abs(x-width/2) <= r && abs(y-height/2) <= r:
					if v <= 0 || v >= back {
						t.Errorf("sigma=%f b[%d,%d]=%f; want >0 <%f", sigma, x, y, v, back)
					}
				default:
					if math.Abs(float64(v-back)) > epsilon {
						t.Errorf("sigma=%f b[%d,%d]=%f; want %f", sigma, x, y, v, back)
					}
				}
			}
		}
	}
}

// Image with a horizontal ramp in each channel and a small bump at the center of channel 0
func rampImage(width, height int) *raster.Image {
	f := raster.NewImage(width, height, 2)
	for c := 0; c < 2; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.Set(x, y, c, 0.1+0.8*float32(x)/float32(width-1))
			}
		}
	}
	f.Set(width/2, height/2, 0, f.At(width/2, height/2, 0)+0.05)
	return f
}

func TestOpUnsharpMask(t *testing.T) {
	width, height := 21, 21
	log := &bytes.Buffer{}
	c := &ops.Context{Log: log, LSEstimatorMode: stats.LSEMeanStdDev}

	src := rampImage(width, height)
	res, err := NewOpUnsharpMask(1.0, 1.5, 0).Apply(src, c)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res == src {
		t.Fatalf("result aliases the source image")
	}
	if got, in := res.At(width/2, height/2, 0), src.At(width/2, height/2, 0); got <= in {
		t.Errorf("center=%f; want >%f", got, in)
	}
	// away from the borders and the bump, a linear ramp is unchanged
	for _, p := range [][3]int{{5, 3, 0}, {15, 17, 0}, {10, 10, 1}, {6, 12, 1}} {
		if got, in := res.At(p[0], p[1], p[2]), src.At(p[0], p[1], p[2]); math.Abs(float64(got-in)) > 1e-5 {
			t.Errorf("pixel %v=%f; want %f", p, got, in)
		}
	}

	res, err = NewOpUnsharpMask(1.0, 1.5, 1.0).Apply(src, c)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if got, in := res.At(width/2, height/2, 0), src.At(width/2, height/2, 0); got != in {
		t.Errorf("center below threshold=%f; want %f", got, in)
	}
	if log.Len() == 0 {
		t.Errorf("no log output")
	}
}

func TestOpUnsharpMaskJSON(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"unsharpMask","gain":1.5}`))
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	usm, ok := op.(*OpUnsharpMask)
	if !ok {
		t.Fatalf("type=%T; want *OpUnsharpMask", op)
	}
	if !usm.Active || usm.Sigma != 1.0 || usm.Gain != 1.5 || usm.OpUnaryBase.Apply == nil {
		t.Errorf("decoded %+v; want active, sigma 1, gain 1.5 and bound Apply", usm)
	}

	if _, err := NewOpUnsharpMask(0, 1, 0).Apply(rampImage(4, 4), &ops.Context{}); err == nil {
		t.Errorf("zero sigma succeeded; want error")
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
