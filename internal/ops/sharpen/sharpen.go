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


package sharpen

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/mlnoga/panoproj/internal/ops"
	"github.com/mlnoga/panoproj/internal/raster"
	"github.com/mlnoga/panoproj/internal/stats"
)

// Sharpens each channel of an image with an unsharp mask.
// With a positive threshold, only values above location+threshold*scale of the channel are sharpened
type OpUnsharpMask struct {
	ops.OpUnaryBase
	Sigma     float32 `json:"sigma"`
	Gain      float32 `json:"gain"`
	Threshold float32 `json:"threshold"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpUnsharpMaskDefault() })} // register the operator for JSON decoding

func NewOpUnsharpMaskDefault() *OpUnsharpMask { return NewOpUnsharpMask(1.0, 0, 0) }

func NewOpUnsharpMask(sigma, gain, threshold float32) *OpUnsharpMask {
	op:=OpUnsharpMask{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "unsharpMask", Active: gain>0}},
		Sigma       : sigma,
		Gain        : gain,
		Threshold   : threshold,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpUnsharpMask) UnmarshalJSON(data []byte) error {
	type defaults OpUnsharpMask
	def:=defaults( *NewOpUnsharpMaskDefault() )
	def.Active=true
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpUnsharpMask(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpUnsharpMask) Apply(f *raster.Image, c *ops.Context) (result *raster.Image, err error) {
	if !op.Active || op.Gain==0 { return f, nil }
	if op.Sigma<=0 { return nil, errors.Errorf("%d: unsharp mask sigma %g must be positive", f.ID, op.Sigma) }

	kernel:=NewGaussianKernel(op.Sigma)
	fmt.Fprintf(c.Log, "%d: Unsharp masking with sigma %.3g gain %.3g thresh %.3g, kernel size %d\n",
		        f.ID, op.Sigma, op.Gain, op.Threshold, len(kernel))

	width:=f.Width()
	res:=raster.NewImageFromImage(f)
	blurred:=make([]float32, f.ChannelSize())
	for ch:=0; ch<f.Channels(); ch++ {
		data, out:=f.Channel(ch), res.Channel(ch)
		s, err:=stats.CalcExtendedStats(data, c.LSEstimatorMode)
		if err!=nil { return nil, errors.Wrapf(err, "%d: channel %d statistics", f.ID, ch) }

		absThresh:=s.Min
		if op.Threshold>0 {
			absThresh=s.Location+s.Scale*op.Threshold
			fmt.Fprintf(c.Log, "%d: Channel %d absThresh %.3g\n", f.ID, ch, absThresh)
		}
		kernel.Blur(blurred, out, data, width)
		Combine(out, data, blurred, op.Gain, s.Min, s.Max, absThresh)
	}
	return res, nil
}
