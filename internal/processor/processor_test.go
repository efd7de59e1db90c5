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

package processor

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/raster"
)

func newProcessor(t *testing.T, f config.Family, overrides config.Overrides, log *bytes.Buffer) *Processor {
	cfg, err := config.New(f, overrides)
	if err != nil {
		t.Fatalf("config error %s", err.Error())
	}
	var p *Processor
	if log != nil {
		p, err = New(cfg, log)
	} else {
		p, err = New(cfg, nil)
	}
	if err != nil {
		t.Fatalf("processor error %s", err.Error())
	}
	return p
}

func constantImage(width, height, channels int, v float32) *raster.Image {
	f := raster.NewImage(width, height, channels)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// Image with the top half of the rows set to one and the bottom half to zero
func topHalfImage(width, height int) *raster.Image {
	f := raster.NewImage(width, height, 1)
	for y := 0; y < height/2; y++ {
		for x := 0; x < width; x++ {
			f.Set(x, y, 0, 1)
		}
	}
	return f
}

func TestForwardShapeAndValues(t *testing.T) {
	log := &bytes.Buffer{}
	p := newProcessor(t, config.FamilyGnomonic, config.Overrides{"x_points": 16, "y_points": 8}, log)
	src := constantImage(64, 32, 3, 0.5)
	src.ID = 3
	res, err := p.Forward(src, nil)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res.DimensionsToString() != "16x8x3" {
		t.Fatalf("dims=%s; want 16x8x3", res.DimensionsToString())
	}
	for i, v := range res.Data {
		if math.Abs(float64(v-0.5)) > 1e-5 {
			t.Fatalf("data[%d]=%g; want 0.5", i, v)
		}
	}
	if !strings.Contains(log.String(), "3: Forward gnomonic projection") {
		t.Errorf("log=%q; want forward line with image ID", log.String())
	}
}

func TestBackwardShapeAndMask(t *testing.T) {
	p := newProcessor(t, config.FamilyGnomonic, config.Overrides{"x_points": 16, "y_points": 8, "lon_points": 21, "lat_points": 11}, nil)
	res, err := p.Backward(constantImage(16, 8, 1, 0.5), nil)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res.DimensionsToString() != "21x11" {
		t.Fatalf("dims=%s; want 21x11", res.DimensionsToString())
	}
	if v := res.At(10, 5, 0); math.Abs(float64(v-0.5)) > 1e-5 {
		t.Errorf("center=%g; want 0.5", v)
	}
	// the meridian opposite the center lies on the far hemisphere
	for y := 0; y < 11; y++ {
		if res.At(0, y, 0) != 0 || res.At(20, y, 0) != 0 {
			t.Errorf("row %d: edges %g,%g; want 0", y, res.At(0, y, 0), res.At(20, y, 0))
		}
	}
}

func TestOrientation(t *testing.T) {
	p := newProcessor(t, config.FamilyMercator, config.Overrides{"x_points": 32, "y_points": 16, "lon_points": 36, "lat_points": 18}, nil)

	fwd, err := p.Forward(topHalfImage(36, 18), nil)
	if err != nil {
		t.Fatalf("forward error %s", err.Error())
	}
	bwd, err := p.Backward(topHalfImage(32, 16), nil)
	if err != nil {
		t.Fatalf("backward error %s", err.Error())
	}
	for _, res := range []*raster.Image{fwd, bwd} {
		w, h := res.Width(), res.Height()
		for x := 1; x < w-1; x++ {
			if math.Abs(float64(res.At(x, 0, 0)-1)) > 1e-4 || math.Abs(float64(res.At(x, h-1, 0))) > 1e-4 {
				t.Errorf("%dx%d column %d: top=%g bottom=%g; want 1 and 0", w, h, x, res.At(x, 0, 0), res.At(x, h-1, 0))
			}
		}
	}
}

func TestOverridesApplyPerCall(t *testing.T) {
	p := newProcessor(t, config.FamilyStereographic, config.Overrides{"x_points": 8, "y_points": 8}, nil)
	src := constantImage(32, 16, 1, 1)

	res, err := p.Forward(src, config.Overrides{"x_points": 4, "fov_deg": 60})
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res.Width() != 4 {
		t.Errorf("width with override=%d; want 4", res.Width())
	}
	res, err = p.Forward(src, nil)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if res.Width() != 8 || p.Config().Base().XPoints != 8 {
		t.Errorf("width after override=%d; want 8", res.Width())
	}

	q, err := p.WithOverrides(config.Overrides{"y_points": 2})
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	for i := 0; i < 2; i++ {
		res, err = q.Forward(src, nil)
		if err != nil {
			t.Fatalf("error %s", err.Error())
		}
		if res.Height() != 2 {
			t.Errorf("persistent override call %d: height=%d; want 2", i, res.Height())
		}
	}
	if p.Config().Base().YPoints != 8 {
		t.Errorf("original y_points=%d; want 8", p.Config().Base().YPoints)
	}
}

func TestStageErrors(t *testing.T) {
	p := newProcessor(t, config.FamilyGnomonic, config.Overrides{"x_points": 4, "y_points": 4}, nil)
	src := constantImage(8, 4, 1, 1)

	tcs := []struct {
		name string
		run  func() error
		kind errs.Kind
	}{
		{"invalid override", func() error { _, err := p.Forward(src, config.Overrides{"R": -1}); return err }, errs.Configuration},
		{"unknown override", func() error { _, err := p.Backward(src, config.Overrides{"radius": 2}); return err }, errs.Configuration},
		{"undefined extent", func() error { _, err := p.Forward(src, config.Overrides{"fov_deg": 180}); return err }, errs.Processing},
		{"empty source", func() error { _, err := p.Forward(nil, nil); return err }, errs.Interpolation},
		{"invalid direction", func() error { _, err := p.Run("sideways", src, nil); return err }, errs.GridGeneration},
	}
	for _, tc := range tcs {
		err := tc.run()
		if !errs.Is(err, tc.kind) {
			t.Errorf("%s: err=%v; want %s error", tc.name, err, tc.kind)
		}
	}
}

func TestNewRejectsUndefinedProjection(t *testing.T) {
	cfg, err := config.New(config.FamilyGnomonic, config.Overrides{"fov_deg": 180})
	if err != nil {
		t.Fatalf("config error %s", err.Error())
	}
	if _, err := New(cfg, nil); !errs.Is(err, errs.Processing) {
		t.Errorf("err=%v; want processing error", err)
	}
}

func TestRunDispatches(t *testing.T) {
	p := newProcessor(t, config.FamilyAzimuthalEquidistant, config.Overrides{"x_points": 5, "y_points": 5, "lon_points": 6, "lat_points": 3}, nil)
	src := constantImage(6, 6, 1, 1)
	for _, tc := range []struct {
		dir  grid.Direction
		dims string
	}{{grid.Forward, "5x5"}, {grid.Backward, "6x3"}} {
		res, err := p.WithThreads(2).Run(tc.dir, src, nil)
		if err != nil {
			t.Fatalf("%s: error %s", tc.dir, err.Error())
		}
		if res.DimensionsToString() != tc.dims {
			t.Errorf("%s: dims=%s; want %s", tc.dir, res.DimensionsToString(), tc.dims)
		}
	}
}
