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


// Package interp resamples images along coordinate maps, with selectable kernels and border handling.
package interp

import (
	"math"
	"strings"
	"sync"

	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/raster"
)

// Resampling kernel
type Kernel string

const (
	Nearest  Kernel = "nearest"
	Bilinear Kernel = "bilinear"
	Bicubic  Kernel = "bicubic"  // Keys cubic convolution with a=-0.75
	Lanczos4 Kernel = "lanczos4" // windowed sinc over 8x8 taps
)

// Returns all supported kernels
func Kernels() []Kernel { return []Kernel{Nearest, Bilinear, Bicubic, Lanczos4} }

// Parses a kernel name, case insensitive
func ParseKernel(s string) (Kernel, error) {
	k:=Kernel(strings.ToLower(strings.TrimSpace(s)))
	for _,known:=range Kernels() {
		if k==known { return k, nil }
	}
	return "", errs.New(errs.Interpolation, "unknown interpolation '%s', expecting one of %v", s, Kernels())
}

// Handling of kernel taps falling outside the source image
type BorderMode string

const (
	BorderConstant BorderMode = "constant" // taps outside read the border value
	BorderWrap     BorderMode = "wrap"     // periodic continuation, cdefgh|abcdefgh|abcdef
	BorderClamp    BorderMode = "clamp"    // replicate the edge pixel, aaaaaa|abcdefgh|hhhhhh
	BorderReflect  BorderMode = "reflect"  // mirror including the edge pixel, fedcba|abcdefgh|hgfedc
)

// Returns all supported border modes
func BorderModes() []BorderMode { return []BorderMode{BorderConstant, BorderWrap, BorderClamp, BorderReflect} }

// Parses a border mode name, case insensitive. Accepts replicate as alias for clamp
func ParseBorderMode(s string) (BorderMode, error) {
	b:=BorderMode(strings.ToLower(strings.TrimSpace(s)))
	if b=="replicate" { return BorderClamp, nil }
	for _,known:=range BorderModes() {
		if b==known { return b, nil }
	}
	return "", errs.New(errs.Interpolation, "unknown border mode '%s', expecting one of %v", s, BorderModes())
}

// Resamples images. The zero value uses bilinear interpolation with a constant zero border
type Interpolator struct {
	Kernel      Kernel
	Border      BorderMode
	BorderValue float32
	Threads     int // goroutines resampling disjoint row bands, <=1 runs synchronously
}

// maximum number of taps per axis, for lanczos4
const maxTaps=8

// Resamples the source image along the coordinate map. The result has the shape of the map
// and the channel count of the source. If a mask is given, pixels where it is false are zeroed
func (ip *Interpolator) Interpolate(src *raster.Image, m *grid.CoordinateMap, mask *grid.Mask) (*raster.Image, error) {
	if src==nil || !src.IsValid() || src.Pixels==0 {
		return nil, errs.New(errs.Interpolation, "empty source image")
	}
	if !m.IsValid() {
		return nil, errs.New(errs.Interpolation, "invalid coordinate map")
	}
	if mask!=nil && (mask.Width!=m.Width || mask.Height!=m.Height || len(mask.Data)!=len(m.X)) {
		return nil, errs.New(errs.Interpolation, "mask shape %dx%d does not match coordinate map %dx%d",
			mask.Width, mask.Height, m.Width, m.Height)
	}
	kernel, border:=ip.Kernel, ip.Border
	if kernel=="" { kernel=Bilinear }
	if border=="" { border=BorderConstant }
	if _, err:=ParseKernel(string(kernel)); err!=nil { return nil, err }
	if _, err:=ParseBorderMode(string(border)); err!=nil { return nil, err }

	channels:=src.Channels()
	res:=raster.NewImage(m.Width, m.Height, channels)
	res.ID, res.FileName=src.ID, src.FileName

	s:=sampler{
		kernel:      kernel,
		border:      border,
		borderValue: ip.BorderValue,
		width:       src.Width(),
		height:      src.Height(),
		channels:    channels,
		src:         src.Data,
		dst:         res.Data,
		dstSize:     len(m.X),
	}

	run:=func(from, to int) {
		for i:=from*m.Width; i<to*m.Width; i++ {
			if mask!=nil && !mask.Data[i] { continue } // left zero, same as resampling then masking
			s.sample(i, m.X[i], m.Y[i])
		}
	}
	if ip.Threads<=1 {
		run(0, m.Height)
		return res, nil
	}

	// Shard into bands of output rows. Writes are disjoint, so no locking
	rowsPerThread:=(m.Height+ip.Threads-1)/ip.Threads
	var wg sync.WaitGroup
	for start:=0; start<m.Height; start+=rowsPerThread {
		end:=start+rowsPerThread
		if end>m.Height { end=m.Height }
		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			run(from, to)
		}(start, end)
	}
	wg.Wait()
	return res, nil
}

// Zeroes all pixels of the image where the mask is false, in place
func ApplyMask(img *raster.Image, mask *grid.Mask) error {
	if img==nil || !img.IsValid() {
		return errs.New(errs.Interpolation, "invalid image")
	}
	if mask==nil { return nil }
	if mask.Width!=img.Width() || mask.Height!=img.Height() || len(mask.Data)!=img.ChannelSize() {
		return errs.New(errs.Interpolation, "mask shape %dx%d does not match image %s",
			mask.Width, mask.Height, img.DimensionsToString())
	}
	size:=img.ChannelSize()
	for c:=0; c<img.Channels(); c++ {
		data:=img.Data[c*size:(c+1)*size]
		for i,valid:=range mask.Data {
			if !valid { data[i]=0 }
		}
	}
	return nil
}


// Resampling state shared by all goroutines. Read only except for disjoint writes into dst
type sampler struct {
	kernel        Kernel
	border        BorderMode
	borderValue   float32
	width, height int
	channels      int
	src, dst      []float32
	dstSize       int
}

// Samples all channels at fractional position (x,y) into output pixel i.
// Weights and tap indices are computed once and shared across channels
func (s *sampler) sample(i int, x, y float32) {
	fx, fy:=float64(x), float64(y)
	if !finite(fx) || !finite(fy) || math.Abs(fx)>1<<30 || math.Abs(fy)>1<<30 {
		for c:=0; c<s.channels; c++ { s.dst[c*s.dstSize+i]=s.borderValue }
		return
	}

	var xIdx, yIdx [maxTaps]int
	var xW, yW [maxTaps]float32
	nx:=s.taps(fx, s.width, &xIdx, &xW)
	ny:=s.taps(fy, s.height, &yIdx, &yW)

	srcSize:=s.width*s.height
	for c:=0; c<s.channels; c++ {
		plane:=s.src[c*srcSize:(c+1)*srcSize]
		sum:=float32(0)
		for ty:=0; ty<ny; ty++ {
			row:=float32(0)
			for tx:=0; tx<nx; tx++ {
				var v float32
				if xIdx[tx]<0 || yIdx[ty]<0 {
					v=s.borderValue
				} else {
					v=plane[yIdx[ty]*s.width+xIdx[tx]]
				}
				row+=v*xW[tx]
			}
			sum+=row*yW[ty]
		}
		s.dst[c*s.dstSize+i]=sum
	}
}

// Computes the tap indices and weights along one axis. Returns the number of taps.
// Indices outside the image under the constant border are returned as -1
func (s *sampler) taps(pos float64, size int, idx *[maxTaps]int, w *[maxTaps]float32) int {
	switch s.kernel {
	case Nearest:
		idx[0], w[0]=s.resolve(int(math.Floor(pos+0.5)), size), 1
		return 1

	case Bilinear:
		x0:=math.Floor(pos)
		t:=float32(pos-x0)
		i0:=int(x0)
		idx[0], w[0]=s.resolve(i0, size), 1-t
		idx[1], w[1]=s.resolve(i0+1, size), t
		return 2

	case Bicubic:
		x0:=math.Floor(pos)
		t:=pos-x0
		i0:=int(x0)
		for k:=0; k<4; k++ {
			idx[k]=s.resolve(i0-1+k, size)
			w[k]=float32(cubicWeight(t-float64(k-1)))
		}
		return 4

	case Lanczos4:
		x0:=math.Floor(pos)
		t:=pos-x0
		i0:=int(x0)
		sum:=0.0
		var ws [maxTaps]float64
		for k:=0; k<maxTaps; k++ {
			ws[k]=lanczosWeight(t-float64(k-3), 4)
			sum+=ws[k]
		}
		for k:=0; k<maxTaps; k++ {
			idx[k]=s.resolve(i0-3+k, size)
			w[k]=float32(ws[k]/sum)
		}
		return maxTaps
	}
	return 0
}

// Maps a tap index into the image according to the border mode. Returns -1 for the constant border
func (s *sampler) resolve(i, size int) int {
	if i>=0 && i<size { return i }
	switch s.border {
	case BorderWrap:
		i%=size
		if i<0 { i+=size }
		return i
	case BorderClamp:
		if i<0 { return 0 }
		return size-1
	case BorderReflect:
		if size==1 { return 0 }
		for i<0 || i>=size {
			if i<0 {
				i=-i-1
			} else {
				i=2*size-i-1
			}
		}
		return i
	}
	return -1
}

// Keys cubic convolution weight with a=-0.75
func cubicWeight(d float64) float64 {
	const a=-0.75
	d=math.Abs(d)
	if d<1 {
		return ((a+2)*d-(a+3))*d*d+1
	}
	if d<2 {
		return ((a*d-5*a)*d+8*a)*d-4*a
	}
	return 0
}

// Lanczos weight for distance d and window size a
func lanczosWeight(d float64, a float64) float64 {
	if d==0 { return 1 }
	if math.Abs(d)>=a { return 0 }
	pd:=math.Pi*d
	return a*math.Sin(pd)*math.Sin(pd/a)/(pd*pd)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
