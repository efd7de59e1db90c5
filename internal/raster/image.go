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
	"fmt"
	"strings"

	"github.com/mlnoga/panoproj/internal/stats"
)

// A dense raster image with one or more channels.
// Channels are stored planar, i.e. all pixels of channel 0 first, then channel 1 etc.
// Within a channel, pixels are stored row-major from the top left.
type Image struct {
	ID       int         // Sequential ID number, for log output
	FileName string      // Original file name, if any, for log output

	Naxisn   []int32     // Axis dimensions. Most quickly varying dimension first, i.e. width, height[, channels]
	Pixels   int32       // Number of values in the image. Product of Naxisn[]

	Data     []float32   // The image data

	Stats    *stats.BasicStats  // Basic image statistics, nil until calculated
}

// Creates an image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels:=int32(1)
	for _,naxis:=range(naxisn) {
		numPixels*=naxis
	}
	if data==nil {
		data=make([]float32, numPixels)
	}
	return &Image{
		Naxisn:   append([]int32(nil), naxisn...), // clone slice
		Pixels:   numPixels,
		Data:     data,
	}
}

// Creates an image of given width, height and number of channels. Single-channel images have two axes
func NewImage(width, height, channels int) *Image {
	if channels<=1 {
		return NewImageFromNaxisn([]int32{int32(width), int32(height)}, nil)
	}
	return NewImageFromNaxisn([]int32{int32(width), int32(height), int32(channels)}, nil)
}

// Creates an image with the same shape and metadata as the given one. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	res:=NewImageFromNaxisn(img.Naxisn, nil)
	res.ID, res.FileName=img.ID, img.FileName
	return res
}

// Returns a deep copy of the image
func (f *Image) Clone() *Image {
	res:=NewImageFromImage(f)
	copy(res.Data, f.Data)
	if f.Stats!=nil {
		s:=*f.Stats
		res.Stats=&s
	}
	return res
}

func (f *Image) Width() int  { return int(f.Naxisn[0]) }
func (f *Image) Height() int { return int(f.Naxisn[1]) }

// Returns the number of channels, 1 for two-dimensional images
func (f *Image) Channels() int {
	if len(f.Naxisn)<3 { return 1 }
	return int(f.Naxisn[2])
}

// Returns the number of pixels in a single channel
func (f *Image) ChannelSize() int { return f.Width()*f.Height() }

// Returns the data slice for the given channel
func (f *Image) Channel(c int) []float32 {
	size:=f.ChannelSize()
	return f.Data[c*size:(c+1)*size]
}

// Returns true if the image is well-formed and non-empty
func (f *Image) IsValid() bool {
	if f==nil || len(f.Naxisn)<2 || len(f.Naxisn)>3 { return false }
	for _,n:=range f.Naxisn {
		if n<=0 { return false }
	}
	return int(f.Pixels)==len(f.Data) && len(f.Data)==f.ChannelSize()*f.Channels()
}

func (f *Image) At(x, y, c int) float32 {
	return f.Data[c*f.ChannelSize() + y*f.Width() + x]
}

func (f *Image) Set(x, y, c int, v float32) {
	f.Data[c*f.ChannelSize() + y*f.Width() + x]=v
}

// Flips the image upside down, in place
func (f *Image) FlipVertical() {
	width, height:=f.Width(), f.Height()
	tmp:=make([]float32, width)
	for c:=0; c<f.Channels(); c++ {
		ch:=f.Channel(c)
		for top, bottom:=0, height-1; top<bottom; top, bottom=top+1, bottom-1 {
			rowTop, rowBottom:=ch[top*width:(top+1)*width], ch[bottom*width:(bottom+1)*width]
			copy(tmp, rowTop)
			copy(rowTop, rowBottom)
			copy(rowBottom, tmp)
		}
	}
	f.Stats=nil
}

// Calculates basic statistics and stores them in f.Stats
func (f *Image) UpdateStats() *stats.BasicStats {
	f.Stats=stats.CalcBasicStats(f.Data)
	return f.Stats
}

// Scales all values linearly, so that [min,max] maps onto [0,1]
func (f *Image) Normalize(min, max float32) {
	if max<=min { return }
	scale:=1/(max-min)
	for i,d:=range f.Data {
		f.Data[i]=(d-min)*scale
	}
	f.Stats=nil
}

// Returns the image dimensions as a string, e.g. 1024x512x3
func (f *Image) DimensionsToString() string {
	b:=strings.Builder{}
	for i,naxis:=range(f.Naxisn) {
		if i>0 {
			b.WriteRune('x')
		}
		fmt.Fprintf(&b, "%d", naxis)
	}
	return b.String()
}
