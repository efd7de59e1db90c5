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
	"testing"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/mlnoga/panoproj/internal/errs"
)

func testGenerator() *Generator {
	return &Generator{
		XPoints: 5, YPoints: 3, LonPoints: 7, LatPoints: 4,
		Planar:    r2.Rect{X: r1.Interval{Lo: -2, Hi: 2}, Y: r1.Interval{Lo: -1, Hi: 1}},
		Spherical: r2.Rect{X: r1.Interval{Lo: -180, Hi: 180}, Y: r1.Interval{Lo: -90, Hi: 90}},
	}
}

func TestGenerateShapes(t *testing.T) {
	g := testGenerator()
	tcs := []struct {
		dir           Direction
		width, height int
	}{
		{Forward, 5, 3},
		{Backward, 7, 4},
	}
	for _, tc := range tcs {
		a, b, err := g.Generate(tc.dir)
		if err != nil {
			t.Fatalf("%s: error %s", tc.dir, err.Error())
		}
		if a.Width != tc.width || a.Height != tc.height || !a.SameShape(b) || len(a.Data) != tc.width*tc.height {
			t.Errorf("%s: shapes %s and %s; want %dx%d", tc.dir, a.Shape(), b.Shape(), tc.width, tc.height)
		}
	}
}

func TestGenerateForwardOrientation(t *testing.T) {
	x, y, err := testGenerator().Generate(Forward)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if x.At(0, 0) != -2 || x.At(4, 0) != 2 || x.At(2, 1) != 0 {
		t.Errorf("x row=%v; want -2..2", x.Data[:5])
	}
	// top row holds the maximum y
	if y.At(0, 0) != 1 || y.At(0, 2) != -1 || y.At(3, 1) != 0 {
		t.Errorf("y column=%g,%g,%g; want 1,0,-1", y.At(0, 0), y.At(0, 1), y.At(0, 2))
	}
}

func TestGenerateBackwardOrientation(t *testing.T) {
	lon, lat, err := testGenerator().Generate(Backward)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if lon.At(0, 0) != -180 || lon.At(6, 3) != 180 || lon.At(3, 2) != 0 {
		t.Errorf("lon row=%v; want -180..180", lon.Data[:7])
	}
	if lat.At(0, 0) != -90 || lat.At(5, 3) != 90 {
		t.Errorf("lat column=%g..%g; want -90..90", lat.At(0, 0), lat.At(0, 3))
	}
}

func TestGenerateIdempotent(t *testing.T) {
	g := testGenerator()
	for _, dir := range []Direction{Forward, Backward} {
		a1, b1, _ := g.Generate(dir)
		a2, b2, _ := g.Generate(dir)
		for i := range a1.Data {
			if math.Float64bits(a1.Data[i]) != math.Float64bits(a2.Data[i]) ||
				math.Float64bits(b1.Data[i]) != math.Float64bits(b2.Data[i]) {
				t.Fatalf("%s: element %d differs between calls", dir, i)
			}
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	g := testGenerator()
	before := *g
	if a, b, err := g.GenerateString("sideways"); !errs.Is(err, errs.GridGeneration) || a != nil || b != nil {
		t.Errorf("sideways: %v,%v,%v; want grid generation error", a, b, err)
	}
	if *g != before {
		t.Errorf("generator modified by failing call")
	}

	tcs := []struct {
		name   string
		modify func(g *Generator)
		dir    Direction
	}{
		{"zero points", func(g *Generator) { g.XPoints = 0 }, Forward},
		{"negative points", func(g *Generator) { g.LatPoints = -1 }, Backward},
		{"nan bound", func(g *Generator) { g.Planar.Y.Hi = math.NaN() }, Forward},
		{"inf bound", func(g *Generator) { g.Spherical.X.Lo = math.Inf(-1) }, Backward},
	}
	for _, tc := range tcs {
		g := testGenerator()
		tc.modify(g)
		if _, _, err := g.Generate(tc.dir); !errs.Is(err, errs.GridGeneration) {
			t.Errorf("%s: err=%v; want grid generation error", tc.name, err)
		}
	}
}

func TestSinglePoint(t *testing.T) {
	g := testGenerator()
	g.XPoints, g.YPoints = 1, 1
	x, y, err := g.Generate(Forward)
	if err != nil {
		t.Fatalf("error %s", err.Error())
	}
	if len(x.Data) != 1 || x.Data[0] != -2 || y.Data[0] != 1 {
		t.Errorf("single point=(%v,%v); want (-2,1)", x.Data, y.Data)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" Backward"); err != nil || d != Backward {
		t.Errorf("ParseDirection=%v,%v; want backward", d, err)
	}
}

func TestMaskFlipVertical(t *testing.T) {
	m := NewMask(2, 3)
	copy(m.Data, []bool{true, false, false, false, false, true})
	m.FlipVertical()
	want := []bool{false, true, false, false, true, false}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Errorf("data[%d]=%v; want %v", i, m.Data[i], want[i])
		}
	}
	if m.Count() != 2 {
		t.Errorf("count=%d; want 2", m.Count())
	}
}
