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


// Package sharpen applies unsharp masking to projected images.
package sharpen

import (
	"math"
)

// Area under the gaussian curve which a truncated kernel may leave out on either side
const kernelAcceptOut=0.01

// A normalized, symmetric one-dimensional convolution kernel of odd length
type Kernel []float32

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range.
// Kernels wider than the image reflect repeatedly, with period 2*size
func reflect(size, x int) int {
	if x>=0 && x<size { return x }
	if size<=1 { return 0 }
	x%=2*size
	if x<0     { x+=2*size }
	if x>=size { x=2*size-x-1 }
	return x
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func gaussianCDF(mu, sigma, x float32) float32 {
	return 0.5*(1+float32(math.Erf(float64((x-mu)/(math.Sqrt2*sigma)))))
}

// Generates a 1D gaussian kernel for the given sigma by integrating the gaussian over each tap.
// The kernel is truncated where the remaining tail area drops below kernelAcceptOut, and renormalized
func NewGaussianKernel(sigma float32) Kernel {
	radius:=0
	for gaussianCDF(0, sigma, -0.5-float32(radius))>=kernelAcceptOut { radius++ }
	if radius>0 { radius-- }

	k:=make(Kernel, 2*radius+1)
	sum:=float32(0)
	lower:=gaussianCDF(0, sigma, -0.5-float32(radius))
	for i:=0; i<=radius; i++ {
		upper:=gaussianCDF(0, sigma, -0.5-float32(radius)+float32(i+1))
		k[i]=upper-lower
		sum+=k[i]
		lower=upper
	}
	// mirror the left half, summing only the taps not yet counted
	for i:=1; i<=radius; i++ {
		k[radius+i]=k[radius-i]
		sum+=k[radius+i]
	}

	factor:=1/sum
	for i:=range k { k[i]*=factor }
	return k
}

// Convolves the single-channel image in data of the given width along the x axis, storing the result in res
func (k Kernel) ConvolveX(res, data []float32, width int) {
	height, r:=len(data)/width, len(k)/2
	for y:=0; y<height; y++ {
		row, out:=data[y*width:(y+1)*width], res[y*width:(y+1)*width]
		for x:=range out {
			sum:=float32(0)
			for i:=-r; i<=r; i++ { sum+=row[reflect(width, x+i)]*k[i+r] }
			out[x]=sum
		}
	}
}

// Convolves the single-channel image in data of the given width along the y axis, storing the result in res
func (k Kernel) ConvolveY(res, data []float32, width int) {
	height, r:=len(data)/width, len(k)/2
	for y:=0; y<height; y++ {
		out:=res[y*width:(y+1)*width]
		for x:=range out {
			sum:=float32(0)
			for i:=-r; i<=r; i++ { sum+=data[reflect(height, y+i)*width+x]*k[i+r] }
			out[x]=sum
		}
	}
}

// Gaussian blur of a single-channel image with separable convolutions. Overwrites tmp and returns the result in res
func (k Kernel) Blur(res, tmp, data []float32, width int) {
	k.ConvolveX(tmp, data, width)
	k.ConvolveY(res, tmp, width)
}

// Combines a single channel with its blurred version as d+(d-blurred)*gain, clipping to min..max.
// Values below the threshold are copied unchanged
func Combine(res, data, blurred []float32, gain, min, max, threshold float32) {
	for i, d:=range data {
		if d<threshold {
			res[i]=d
			continue
		}
		r:=d+(d-blurred[i])*gain
		if r<min { r=min }
		if r>max { r=max }
		res[i]=r
	}
}

// Applies an unsharp mask to the single-channel image in data with the given width.
// Returns the result in a newly allocated slice
func UnsharpMask(data []float32, width int, sigma, gain, min, max, threshold float32) []float32 {
	res, blurred:=make([]float32, len(data)), make([]float32, len(data))
	NewGaussianKernel(sigma).Blur(blurred, res, data, width)
	Combine(res, data, blurred, gain, min, max, threshold)
	return res
}
