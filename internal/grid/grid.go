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


// Package grid provides the sampling lattices of the projection pipeline,
// and the congruent coordinate maps and validity masks derived from them.
package grid

import (
	"fmt"
)

// A two-dimensional field of coordinates, stored row-major
type Field struct {
	Width  int
	Height int
	Data   []float64
}

func NewField(width, height int) *Field {
	return &Field{Width: width, Height: height, Data: make([]float64, width*height)}
}

func (f *Field) At(x, y int) float64     { return f.Data[y*f.Width+x] }
func (f *Field) Set(x, y int, v float64) { f.Data[y*f.Width+x]=v }

// Returns the shape as string, e.g. 512x256
func (f *Field) Shape() string {
	if f==nil { return "nil" }
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Returns true if both fields have the same width and height
func (f *Field) SameShape(g *Field) bool {
	return f!=nil && g!=nil && f.Width==g.Width && f.Height==g.Height
}


// A two-dimensional validity mask, stored row-major. True where the projection is defined
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]bool, width*height)}
}

func (m *Mask) At(x, y int) bool { return m.Data[y*m.Width+x] }

// Returns the number of valid entries
func (m *Mask) Count() int {
	n:=0
	for _,v:=range m.Data {
		if v { n++ }
	}
	return n
}

// Flips the mask upside down, in place
func (m *Mask) FlipVertical() {
	w:=m.Width
	for top, bottom:=0, m.Height-1; top<bottom; top, bottom=top+1, bottom-1 {
		for x:=0; x<w; x++ {
			m.Data[top*w+x], m.Data[bottom*w+x]=m.Data[bottom*w+x], m.Data[top*w+x]
		}
	}
}


// Fractional pixel coordinates into a source image, one pair per output pixel
type CoordinateMap struct {
	Width  int
	Height int
	X      []float32
	Y      []float32
}

func NewCoordinateMap(width, height int) *CoordinateMap {
	return &CoordinateMap{Width: width, Height: height, X: make([]float32, width*height), Y: make([]float32, width*height)}
}

// Creates an identity map for an image of given size, i.e. every output pixel samples the same source pixel
func NewIdentityMap(width, height int) *CoordinateMap {
	m:=NewCoordinateMap(width, height)
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			m.X[y*width+x], m.Y[y*width+x]=float32(x), float32(y)
		}
	}
	return m
}

// Returns true if the coordinate arrays match the declared shape
func (m *CoordinateMap) IsValid() bool {
	return m!=nil && m.Width>0 && m.Height>0 && len(m.X)==m.Width*m.Height && len(m.Y)==len(m.X)
}
