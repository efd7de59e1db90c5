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
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Output formats, chosen by file name suffix
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// Returns the output format for the given file name, or an error for unknown suffixes
func FormatFromFileName(fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	}
	return "", errors.Errorf("unknown suffix for output file %s", fileName)
}

// Writes the image to the file with the given name, in the format given by the suffix.
// JPEGs have 8 bits per channel, PNGs and TIFFs 16 bits.
// If linear is set, values are converted from linear light to sRGB
func (f *Image) WriteFile(fileName string, linear bool) (err error) {
	format, err := FormatFromFileName(fileName)
	if err != nil {
		return err
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", fileName)
		}
	}()

	writer := bufio.NewWriter(file)
	if err = f.Encode(writer, format, linear); err != nil {
		return errors.Wrapf(err, "encoding %s", fileName)
	}
	if err = writer.Flush(); err != nil {
		return errors.Wrapf(err, "writing %s", fileName)
	}
	return nil
}

// Encodes the image in the given format to the writer
func (f *Image) Encode(writer io.Writer, format string, linear bool) error {
	switch format {
	case FormatJPEG:
		m, err := f.ToGoImage(8, linear)
		if err != nil {
			return err
		}
		return jpeg.Encode(writer, m, &jpeg.Options{Quality: 95})
	case FormatPNG:
		m, err := f.ToGoImage(16, linear)
		if err != nil {
			return err
		}
		return png.Encode(writer, m)
	case FormatTIFF:
		m, err := f.ToGoImage(16, linear)
		if err != nil {
			return err
		}
		return tiff.Encode(writer, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return errors.Errorf("unknown output format %s", format)
}

// Writes a JPEG preview of the image, scaled down to at most maxWidth pixels wide
func (f *Image) WritePreviewJPG(writer io.Writer, maxWidth int, linear bool) error {
	m, err := f.ToGoImage(8, linear)
	if err != nil {
		return err
	}
	width, height := f.Width(), f.Height()
	if maxWidth > 0 && width > maxWidth {
		newHeight := (height*maxWidth + width/2) / width
		if newHeight < 1 {
			newHeight = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), m, m.Bounds(), draw.Src, nil)
		m = dst
	}
	return jpeg.Encode(writer, m, &jpeg.Options{Quality: 90})
}

// Converts the image into a golang image with 8 or 16 bits per channel.
// Values are clipped to [0,1], NaNs are replaced with zero.
// Images with one channel become grayscale, images with three or more channels RGB
func (f *Image) ToGoImage(bits int, linear bool) (image.Image, error) {
	if !f.IsValid() {
		return nil, errors.Errorf("%d: invalid image with dimensions %s", f.ID, f.DimensionsToString())
	}
	if bits != 8 && bits != 16 {
		return nil, errors.Errorf("%d: unsupported bit depth %d", f.ID, bits)
	}
	channels := f.Channels()
	if channels == 2 {
		return nil, errors.Errorf("%d: cannot export image with %d channels", f.ID, channels)
	}

	width, height := f.Width(), f.Height()
	size := width * height
	rect := image.Rect(0, 0, width, height)
	conv := clip01
	if linear {
		conv = LinearToSRGB
	}

	if channels == 1 {
		if bits == 8 {
			m := image.NewGray(rect)
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					m.SetGray(x, y, color.Gray{uint8(conv(f.Data[y*width+x])*255 + 0.5)})
				}
			}
			return m, nil
		}
		m := image.NewGray16(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				m.SetGray16(x, y, color.Gray16{uint16(conv(f.Data[y*width+x])*65535 + 0.5)})
			}
		}
		return m, nil
	}

	if bits == 8 {
		m := image.NewRGBA(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				r, g, b := conv(f.Data[i]), conv(f.Data[i+size]), conv(f.Data[i+2*size])
				m.SetRGBA(x, y, color.RGBA{uint8(r*255 + 0.5), uint8(g*255 + 0.5), uint8(b*255 + 0.5), 255})
			}
		}
		return m, nil
	}
	m := image.NewRGBA64(rect)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			r, g, b := conv(f.Data[i]), conv(f.Data[i+size]), conv(f.Data[i+2*size])
			m.SetRGBA64(x, y, color.RGBA64{uint16(r*65535 + 0.5), uint16(g*65535 + 0.5), uint16(b*65535 + 0.5), 65535})
		}
	}
	return m, nil
}

// Clips a value to [0,1], replacing NaNs with zero
func clip01(v float32) float32 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
