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


// Package processor runs the projection pipeline: grid generation, projection,
// conversion to pixel coordinates and resampling.
package processor

import (
	"fmt"
	"io"

	"github.com/golang/geo/r2"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/pixel"
	"github.com/mlnoga/panoproj/internal/projection"
	"github.com/mlnoga/panoproj/internal/raster"
)

// Converts images between the equirectangular representation and one projection.
// A processor is immutable and safe for concurrent use
type Processor struct {
	config  config.Config
	log     io.Writer
	threads int
}

// Creates a processor for the given configuration, which is validated first.
// Stage progress is logged to the writer, if not nil
func New(cfg config.Config, log io.Writer) (*Processor, error) {
	if err:=config.Validate(cfg); err!=nil { return nil, err }
	if log==nil { log=io.Discard }
	p:=&Processor{config: cfg, log: log, threads: 1}
	if _, err:=p.pipeline(cfg); err!=nil { return nil, err }
	return p, nil
}

// Returns the configuration of the processor
func (p *Processor) Config() config.Config { return p.config }

// Returns a new processor with the overrides applied permanently. The receiver is not modified
func (p *Processor) WithOverrides(overrides config.Overrides) (*Processor, error) {
	cfg, err:=config.Derive(p.config, overrides)
	if err!=nil { return nil, err }
	return New(cfg, p.log)
}

// Returns a new processor which resamples with the given number of goroutines
func (p *Processor) WithThreads(threads int) *Processor {
	q:=*p
	q.threads=threads
	return &q
}

// Runs the pipeline in the given direction
func (p *Processor) Run(dir grid.Direction, src *raster.Image, overrides config.Overrides) (*raster.Image, error) {
	switch dir {
	case grid.Forward:  return p.Forward(src, overrides)
	case grid.Backward: return p.Backward(src, overrides)
	}
	return nil, errs.New(errs.GridGeneration, "invalid direction '%s', expecting forward or backward", dir)
}

// Projects an equirectangular source image onto the projection plane.
// The overrides apply to this call only
func (p *Processor) Forward(src *raster.Image, overrides config.Overrides) (*raster.Image, error) {
	if err:=checkSource(src); err!=nil { return nil, err }
	st, err:=p.stages(overrides)
	if err!=nil { return nil, err }
	b:=st.cfg.Base()
	fmt.Fprintf(p.log, "%d: Forward %s projection of %s source to %dx%d\n",
		src.ID, st.proj.Name(), src.DimensionsToString(), b.XPoints, b.YPoints)

	x, y, err:=st.gen.Generate(grid.Forward)
	if err!=nil { return nil, errs.Wrap(errs.GridGeneration, err, "forward grid") }
	fmt.Fprintf(p.log, "%d: Planar grid %s over x %.4g..%.4g y %.4g..%.4g\n",
		src.ID, x.Shape(), st.extent.X.Lo, st.extent.X.Hi, st.extent.Y.Lo, st.extent.Y.Hi)

	lat, lon, err:=st.proj.ToSpherical(x, y)
	if err!=nil { return nil, errs.Wrap(errs.Processing, err, "%s inverse equations", st.proj.Name()) }

	tr:=pixel.Transformer{Fold: b.Fold}
	m, err:=tr.SphericalToImage(lat, lon, b.BBox.Rect(), src.Width(), src.Height())
	if err!=nil { return nil, errs.Wrap(errs.Transformation, err, "spherical to pixel coordinates") }

	res, err:=st.interp.Interpolate(src, m, nil)
	if err!=nil { return nil, errs.Wrap(errs.Interpolation, err, "resampling with %s kernel", st.interp.Kernel) }
	fmt.Fprintf(p.log, "%d: Resampled with %s kernel and %s border to %s\n",
		src.ID, st.interp.Kernel, st.interp.Border, res.DimensionsToString())
	return res, nil
}

// Projects a source image from the projection plane back into the equirectangular representation.
// The overrides apply to this call only
func (p *Processor) Backward(src *raster.Image, overrides config.Overrides) (*raster.Image, error) {
	if err:=checkSource(src); err!=nil { return nil, err }
	st, err:=p.stages(overrides)
	if err!=nil { return nil, err }
	b:=st.cfg.Base()
	fmt.Fprintf(p.log, "%d: Backward %s projection of %s source to %dx%d\n",
		src.ID, st.proj.Name(), src.DimensionsToString(), b.LonPoints, b.LatPoints)

	lon, lat, err:=st.gen.Generate(grid.Backward)
	if err!=nil { return nil, errs.Wrap(errs.GridGeneration, err, "backward grid") }
	fmt.Fprintf(p.log, "%d: Spherical grid %s over lon %g..%g lat %g..%g\n",
		src.ID, lon.Shape(), b.LonMin, b.LonMax, b.LatMin, b.LatMax)

	x, y, mask, err:=st.proj.ToPlanar(lat, lon)
	if err!=nil { return nil, errs.Wrap(errs.Processing, err, "%s forward equations", st.proj.Name()) }
	fmt.Fprintf(p.log, "%d: %d of %d grid points inside the projection\n", src.ID, mask.Count(), len(mask.Data))

	tr:=pixel.Transformer{Fold: b.Fold}
	m, err:=tr.ProjectionToImage(x, y, st.extent, src.Width(), src.Height())
	if err!=nil { return nil, errs.Wrap(errs.Transformation, err, "planar to pixel coordinates") }

	var resampleMask *grid.Mask
	if b.ReturnMask { resampleMask=mask }
	res, err:=st.interp.Interpolate(src, m, resampleMask)
	if err!=nil { return nil, errs.Wrap(errs.Interpolation, err, "resampling with %s kernel", st.interp.Kernel) }

	// The spherical grid ascends in latitude, image rows descend
	res.FlipVertical()
	if b.ReturnMask {
		mask.FlipVertical()
		if err:=interp.ApplyMask(res, mask); err!=nil {
			return nil, errs.Wrap(errs.Interpolation, err, "applying validity mask")
		}
	}
	fmt.Fprintf(p.log, "%d: Resampled with %s kernel and %s border to %s\n",
		src.ID, st.interp.Kernel, st.interp.Border, res.DimensionsToString())
	return res, nil
}


// The collaborators of one pipeline run
type stages struct {
	cfg    config.Config
	proj   projection.Projection
	extent r2.Rect
	gen    *grid.Generator
	interp *interp.Interpolator
}

// Resolves the configuration for one call and builds its stages
func (p *Processor) stages(overrides config.Overrides) (*stages, error) {
	cfg:=p.config
	if len(overrides)>0 {
		var err error
		if cfg, err=config.Derive(cfg, overrides); err!=nil { return nil, err }
	}
	return p.pipeline(cfg)
}

func (p *Processor) pipeline(cfg config.Config) (*stages, error) {
	proj, err:=projection.New(cfg)
	if err!=nil { return nil, errs.Wrap(errs.Processing, err, "creating projection") }
	extent, err:=proj.Extent()
	if err!=nil { return nil, errs.Wrap(errs.Processing, err, "planar extent") }

	b:=cfg.Base()
	gen:=&grid.Generator{
		XPoints:   b.XPoints,
		YPoints:   b.YPoints,
		LonPoints: b.LonPoints,
		LatPoints: b.LatPoints,
		Planar:    extent,
		Spherical: b.BBox.Rect(),
	}
	ip:=b.Interpolator()
	ip.Threads=p.threads
	return &stages{cfg: cfg, proj: proj, extent: extent, gen: gen, interp: ip}, nil
}

func checkSource(src *raster.Image) error {
	if src==nil || !src.IsValid() || src.Pixels==0 {
		return errs.New(errs.Interpolation, "empty source image")
	}
	return nil
}
