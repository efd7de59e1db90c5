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
	"bufio"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Reads an image from the file with the given name. Supports JPEG, PNG, GIF, TIFF and WebP.
// Values are scaled to [0,1]. If linear is set, sRGB values are converted to linear light
func NewImageFromFile(fileName string, id int, linear bool) (f *Image, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err = Decode(bufio.NewReader(file), linear)
	if err != nil {
		return nil, errors.Wrapf(err, "%d: error decoding %s", id, fileName)
	}
	f.ID, f.FileName = id, fileName
	return f, nil
}

// Reads width, height and channel count of an image file from its header, without decoding the pixels
func ReadDimensions(fileName string) (width, height, channels int, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return 0, 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(file))
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "error reading header of %s", fileName)
	}
	channels = 3
	if cfg.ColorModel == color.GrayModel || cfg.ColorModel == color.Gray16Model {
		channels = 1
	}
	return cfg.Width, cfg.Height, channels, nil
}

// Decodes an image in any registered format from the given reader
func Decode(r io.Reader, linear bool) (*Image, error) {
	m, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return NewImageFromGoImage(m, linear), nil
}

// Converts a golang image into a planar float image with values in [0,1].
// Grayscale color models produce one channel, all others three. Alpha is ignored
func NewImageFromGoImage(m image.Image, linear bool) *Image {
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	channels := 3
	if m.ColorModel() == color.GrayModel || m.ColorModel() == color.Gray16Model {
		channels = 1
	}
	f := NewImage(width, height, channels)
	size := width * height

	conv := func(v float32) float32 { return v }
	if linear {
		conv = SRGBToLinear
	}

	switch src := m.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y)
				f.Data[y*width+x] = conv(float32(c.Y) / 255)
			}
		}
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y)
				f.Data[y*width+x] = conv(float32(c.Y) / 65535)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, b, _ := m.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				if channels == 1 {
					f.Data[y*width+x] = conv(float32(r) / 65535)
					continue
				}
				f.Data[y*width+x] = conv(float32(r) / 65535)
				f.Data[y*width+x+size] = conv(float32(g) / 65535)
				f.Data[y*width+x+2*size] = conv(float32(b) / 65535)
			}
		}
	}
	return f
}

// Lookup table from 16-bit sRGB values to linear light, built on first use
var srgbToLinearLUT []float32
var srgbToLinearOnce sync.Once

// Converts a sRGB value in [0,1] to linear light
func SRGBToLinear(v float32) float32 {
	srgbToLinearOnce.Do(func() {
		srgbToLinearLUT = make([]float32, 65536)
		for i := range srgbToLinearLUT {
			c := float64(i) / 65535
			r, _, _ := colorful.Color{R: c, G: c, B: c}.LinearRgb()
			srgbToLinearLUT[i] = float32(r)
		}
	})
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return srgbToLinearLUT[int(v*65535+0.5)]
}

// Converts a linear light value in [0,1] to sRGB
func LinearToSRGB(v float32) float32 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return float32(colorful.LinearRgb(float64(v), float64(v), float64(v)).R)
}
