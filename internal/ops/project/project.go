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


// Package project wraps the projection processor and sphere rotation as pipeline operators.
package project

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/ops"
	"github.com/mlnoga/panoproj/internal/processor"
	"github.com/mlnoga/panoproj/internal/raster"
	"github.com/mlnoga/panoproj/internal/rotate"
)

// Projects images between the equirectangular representation and the given projection family.
// Params override the family defaults by JSON field name
type OpProject struct {
	ops.OpUnaryBase
	Projection config.Family    `json:"projection"`
	Params     config.Overrides `json:"params,omitempty"`
	direction  grid.Direction
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpForwardDefault() })}  // register the operator for JSON decoding
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBackwardDefault() })} // register the operator for JSON decoding

func NewOpForwardDefault()  *OpProject { return NewOpProject(grid.Forward,  config.FamilyGnomonic, nil) }
func NewOpBackwardDefault() *OpProject { return NewOpProject(grid.Backward, config.FamilyGnomonic, nil) }

func NewOpProject(dir grid.Direction, family config.Family, params config.Overrides) *OpProject {
	op:=OpProject{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: string(dir), Active: true}},
		Projection  : family,
		Params      : params,
		direction   : dir,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries.
// The direction follows the type string
func (op *OpProject) UnmarshalJSON(data []byte) error {
	type defaults OpProject
	def:=defaults( *NewOpForwardDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpProject(def)
	dir, err:=grid.ParseDirection(op.Type)
	if err!=nil { return err }
	op.direction=dir
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

// Returns a processor for the configured family and parameters
func (op *OpProject) Processor(c *ops.Context) (*processor.Processor, error) {
	f, err:=config.ParseFamily(string(op.Projection))
	if err!=nil { return nil, err }
	cfg, err:=config.New(f, op.Params)
	if err!=nil { return nil, err }
	return processor.New(cfg, c.Log)
}

func (op *OpProject) Apply(f *raster.Image, c *ops.Context) (result *raster.Image, err error) {
	if !op.Active { return f, nil }
	p, err:=op.Processor(c)
	if err!=nil { return nil, err }
	return p.Run(op.direction, f, nil)
}


// Rotates the sphere shown by an equirectangular image
type OpRotate struct {
	ops.OpUnaryBase
	DeltaLat      float64           `json:"deltaLat"`
	DeltaLon      float64           `json:"deltaLon"`
	Interpolation interp.Kernel     `json:"interpolation"`
	BorderMode    interp.BorderMode `json:"borderMode"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRotateDefault() })} // register the operator for JSON decoding

func NewOpRotateDefault() *OpRotate { return NewOpRotate(0, 0) }

func NewOpRotate(deltaLat, deltaLon float64) *OpRotate {
	op:=OpRotate{
		OpUnaryBase   : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "rotate", Active: deltaLat!=0 || deltaLon!=0}},
		DeltaLat      : deltaLat,
		DeltaLon      : deltaLon,
		Interpolation : interp.Bilinear,
		BorderMode    : interp.BorderClamp,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRotate) UnmarshalJSON(data []byte) error {
	type defaults OpRotate
	def:=defaults( *NewOpRotateDefault() )
	def.Active=true
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpRotate(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpRotate) Apply(f *raster.Image, c *ops.Context) (result *raster.Image, err error) {
	if !op.Active || (op.DeltaLat==0 && op.DeltaLon==0) { return f, nil }
	kernel, err:=interp.ParseKernel(string(op.Interpolation))
	if err!=nil { return nil, err }
	border, err:=interp.ParseBorderMode(string(op.BorderMode))
	if err!=nil { return nil, err }

	fmt.Fprintf(c.Log, "%d: Rotating %s sphere by %.4g deg latitude and %.4g deg longitude with %s kernel\n",
		        f.ID, f.DimensionsToString(), op.DeltaLat, op.DeltaLon, kernel)
	return rotate.Equirectangular(f, op.DeltaLat, op.DeltaLon, &interp.Interpolator{Kernel: kernel, Border: border})
}
