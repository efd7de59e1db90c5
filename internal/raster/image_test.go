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

package raster

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFlipVertical(t *testing.T) {
	f := NewImage(2, 3, 2)
	for i := range f.Data {
		f.Data[i] = float32(i)
	}
	f.FlipVertical()
	// channel 0 rows were [0 1] [2 3] [4 5], channel 1 rows [6 7] [8 9] [10 11]
	want := []float32{4, 5, 2, 3, 0, 1, 10, 11, 8, 9, 6, 7}
	for i := range want {
		if f.Data[i] != want[i] {
			t.Errorf("data[%d]=%g; want %g", i, f.Data[i], want[i])
		}
	}
}

func TestDimensions(t *testing.T) {
	tcs := []struct {
		width, height, channels int
		dims                    string
		pixels                  int32
	}{
		{4, 2, 1, "4x2", 8},
		{4, 2, 3, "4x2x3", 24},
		{1, 1, 4, "1x1x4", 4},
	}
	for _, tc := range tcs {
		f := NewImage(tc.width, tc.height, tc.channels)
		if f.DimensionsToString() != tc.dims || f.Pixels != tc.pixels || !f.IsValid() {
			t.Errorf("NewImage(%d,%d,%d)=%s with %d pixels; want %s with %d", tc.width, tc.height, tc.channels,
				f.DimensionsToString(), f.Pixels, tc.dims, tc.pixels)
		}
		if f.Channels() != tc.channels {
			t.Errorf("channels=%d; want %d", f.Channels(), tc.channels)
		}
	}
}

func TestPNGRoundTrip(t *testing.T) {
	for _, channels := range []int{1, 3} {
		f := NewImage(5, 4, channels)
		for i := range f.Data {
			f.Data[i] = float32(i) / float32(len(f.Data))
		}
		buf := bytes.Buffer{}
		if err := f.Encode(&buf, FormatPNG, false); err != nil {
			t.Fatalf("encode error %s", err.Error())
		}
		g, err := Decode(&buf, false)
		if err != nil {
			t.Fatalf("decode error %s", err.Error())
		}
		if g.DimensionsToString() != f.DimensionsToString() {
			t.Fatalf("dims=%s; want %s", g.DimensionsToString(), f.DimensionsToString())
		}
		for i := range f.Data {
			if math.Abs(float64(g.Data[i]-f.Data[i])) > 1.0/65535 {
				t.Errorf("channels=%d data[%d]=%g; want %g", channels, i, g.Data[i], f.Data[i])
			}
		}
	}
}

func TestWriteFileTIFF(t *testing.T) {
	f := NewImage(3, 2, 3)
	for i := range f.Data {
		f.Data[i] = 0.5
	}
	fileName := filepath.Join(t.TempDir(), "out.tiff")
	if err := f.WriteFile(fileName, false); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	g, err := NewImageFromFile(fileName, 7, false)
	if err != nil {
		t.Fatalf("read error %s", err.Error())
	}
	if g.ID != 7 || g.DimensionsToString() != "3x2x3" {
		t.Errorf("id=%d dims=%s; want 7 and 3x2x3", g.ID, g.DimensionsToString())
	}
	for i := range g.Data {
		if math.Abs(float64(g.Data[i]-0.5)) > 1e-4 {
			t.Errorf("data[%d]=%g; want 0.5", i, g.Data[i])
		}
	}
}

func TestReadDimensions(t *testing.T) {
	dir := t.TempDir()
	for _, channels := range []int{1, 3} {
		fileName := filepath.Join(dir, fmt.Sprintf("dims%d.png", channels))
		if err := NewImage(6, 5, channels).WriteFile(fileName, false); err != nil {
			t.Fatalf("write error %s", err.Error())
		}
		w, h, c, err := ReadDimensions(fileName)
		if err != nil {
			t.Fatalf("error %s", err.Error())
		}
		if w != 6 || h != 5 || c != channels {
			t.Errorf("dims=%dx%dx%d; want 6x5x%d", w, h, c, channels)
		}
	}
	if _, _, _, err := ReadDimensions(filepath.Join(dir, "missing.png")); err == nil {
		t.Errorf("reading missing file succeeded; want error")
	}
}

func TestWriteFileReportsDiskErrors(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	fileName := filepath.Join(t.TempDir(), "full.png")
	if err := os.Symlink("/dev/full", fileName); err != nil {
		t.Skipf("cannot create symlink: %s", err.Error())
	}
	if err := NewImage(64, 64, 3).WriteFile(fileName, false); err == nil {
		t.Errorf("writing to a full device succeeded; want error")
	}
	if err := NewImage(1, 1, 1).WriteFile(filepath.Join(t.TempDir(), "missing", "x.png"), false); err == nil {
		t.Errorf("writing into a missing directory succeeded; want error")
	}
}

func TestUnknownSuffix(t *testing.T) {
	f := NewImage(1, 1, 1)
	if err := f.WriteFile(filepath.Join(t.TempDir(), "out.bmp"), false); err == nil {
		t.Errorf("writing .bmp succeeded; want error")
	}
}

func TestSRGBLinearRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.01, 0.2, 0.5, 0.9, 1} {
		lin := SRGBToLinear(v)
		if lin > v+1e-6 {
			t.Errorf("linear(%g)=%g; want <= input", v, lin)
		}
		back := LinearToSRGB(lin)
		if math.Abs(float64(back-v)) > 1e-3 {
			t.Errorf("srgb(linear(%g))=%g; want %g", v, back, v)
		}
	}
}

func TestWritePreviewJPG(t *testing.T) {
	f := NewImage(64, 32, 3)
	buf := bytes.Buffer{}
	if err := f.WritePreviewJPG(&buf, 16, false); err != nil {
		t.Fatalf("preview error %s", err.Error())
	}
	m, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("decode error %s", err.Error())
	}
	if m.Bounds().Dx() != 16 || m.Bounds().Dy() != 8 {
		t.Errorf("preview bounds=%v; want 16x8", m.Bounds())
	}
}
