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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/logging"
	"github.com/mlnoga/panoproj/internal/ops"
	"github.com/mlnoga/panoproj/internal/ops/project"
	"github.com/mlnoga/panoproj/internal/ops/sharpen"
	"github.com/mlnoga/panoproj/internal/rest"
	"github.com/mlnoga/panoproj/internal/stats"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out  = flag.String("out", "out.jpg", "save output to `file`. Use %d for the input number when converting several files. Suffix selects JPEG, PNG or TIFF")
var log  = flag.String("log", "%auto",   "save log output to `file`. `%auto` replaces suffix of output file with .log")

var proj   = flag.String("proj", "gnomonic", "projection: gnomonic, stereographic, mercator, oblique_mercator or azimuthal_equidistant")
var cfgFile= flag.String("config", "", "read projection parameters from JSON `file`, e.g. {\"projection\":\"gnomonic\",\"fov_deg\":60}")

var lat    = flag.Float64("lat", 0, "latitude of the projection center in degrees")
var lon    = flag.Float64("lon", 0, "longitude of the projection center in degrees")
var fov    = flag.Float64("fov", 90, "field of view in degrees")
var width  = flag.Int("width", 0, "output width in pixels, 0=projection default")
var height = flag.Int("height", 0, "output height in pixels, 0=projection default")

var interpolation= flag.String("interp", "bilinear", "interpolation kernel: nearest, bilinear, bicubic or lanczos4")
var border       = flag.String("border", "constant", "border mode: constant, wrap, clamp or reflect")
var borderValue  = flag.Float64("borderValue", 0, "value of pixels sampled outside the source with constant border mode")
var fold         = flag.String("fold", "reflect", "folding of out of range coordinates: reflect over the poles, or wrap")
var mask         = flag.Bool("mask", true, "backward: zero pixels outside the valid area of the projection")
var linear       = flag.Bool("linear", false, "convert sRGB inputs to linear light for resampling, and back on output")

var usmSigma  = flag.Float64("usmSigma", 1, "unsharp masking sigma, ~1/3 radius")
var usmGain   = flag.Float64("usmGain", 0, "unsharp masking gain, 0=no op")
var usmThresh = flag.Float64("usmThresh", 0, "unsharp masking threshold, in standard deviations above location, 0=sharpen all")
var lsEst     = flag.Int64("lsEst", 0, "location and scale estimators 0=mean/stddev, 1=median/MAD, 2=histogram peak")

var dLat    = flag.Float64("dLat", 0, "rotate: latitude delta in degrees")
var dLon    = flag.Float64("dLon", 0, "rotate: longitude delta in degrees")

var threads = flag.Int("threads", runtime.GOMAXPROCS(0), "number of files to convert in parallel")

var addr    = flag.String("addr", ":8080", "serve: listen on the given `address`")
var chroot  = flag.String("chroot", "", "serve: chroot to the given `directory` before serving")
var setuid  = flag.Int("setuid", -1, "serve: change to the given user id before serving, -1=keep")

func main() {
	logWriter:=logging.Default()
	start:=time.Now()
	flag.Usage=func(){
		fmt.Fprintf(logWriter, `Panoproj Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (forward|backward|rotate|serve|list|legal|version) (img0.jpg ... imgn.jpg)

Commands:
  forward  Project equirectangular images onto the projection plane
  backward Project planar images back into equirectangular images
  rotate   Rotate the sphere shown by equirectangular images by -dLat and -dLon
  serve    Serve the web interface and REST API
  list     List projections with their default parameters
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		*log=""
		if (args[0]=="forward" || args[0]=="backward" || args[0]=="rotate") && *out!="" {
			*log=strings.ReplaceAll(strings.TrimSuffix(*out, filepath.Ext(*out)), "%d", "")+".log"
		}
	}
	if *log!="" {
		if err:=logging.AlsoToFile(*log); err!=nil { logging.Fatalf("Unable to open logfile '%s': %s\n", *log, err.Error()) }
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil { logging.Fatalf("Could not create CPU profile: %s\n", err.Error()) }
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil { logging.Fatalf("Could not start CPU profile: %s\n", err.Error()) }
		defer pprof.StopCPUProfile()
	}

	ctx:=ops.NewContext(logWriter, stats.LSEstimatorMode(*lsEst))
	ctx.MaxThreads, ctx.Linear, ctx.AllowAbsPaths=*threads, *linear, true

	var err error
	switch args[0] {
	case "forward":
		err=cmdProject(grid.Forward, args[1:], ctx)

	case "backward":
		err=cmdProject(grid.Backward, args[1:], ctx)

	case "rotate":
		err=cmdRotate(args[1:], ctx)

	case "serve":
		logBanner(logWriter)
		if err=rest.MakeSandbox(logWriter, *chroot, *setuid); err==nil {
			ctx.AllowAbsPaths=false
			fmt.Fprintf(logWriter, "Serving on %s\n", *addr)
			err=rest.Serve(*addr, ctx)
		}

	case "list":
		err=cmdList(logWriter)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil { logging.Fatalf("Could not create memory profile: %s\n", err.Error()) }
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil { logging.Fatalf("Could not write allocation profile: %s\n", err.Error()) }
	}

	if err!=nil {
		logging.Fatalf("Error: %s\n", err.Error())
	}
	if args[0]=="forward" || args[0]=="backward" || args[0]=="rotate" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}
	logging.Sync()
}

// Writes CPU and memory information
func logBanner(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Running on %s with %d physical cores, %d logical cores and %d MiB of memory. AVX2: %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs, cpuid.CPU.AVX2())
}

// Converts all input files with the projection selected by the flags
func cmdProject(dir grid.Direction, files []string, ctx *ops.Context) error {
	family, params, err:=projectionParams(dir)
	if err!=nil { return err }
	opProject:=project.NewOpProject(dir, family, params)
	if _, err=opProject.Processor(ctx); err!=nil { return err } // fail early on invalid parameters
	return runSequence(files, opProject, ctx)
}

// Rotates all input files by the flagged deltas
func cmdRotate(files []string, ctx *ops.Context) error {
	opRotate:=project.NewOpRotate(*dLat, *dLon)
	kernel, err:=interp.ParseKernel(*interpolation)
	if err!=nil { return err }
	opRotate.Interpolation=kernel
	if isFlagSet("border") {
		if opRotate.BorderMode, err=interp.ParseBorderMode(*border); err!=nil { return err }
	}
	return runSequence(files, opRotate, ctx)
}

// Loads the files, applies the operator and the optional sharpening, and saves the results
func runSequence(files []string, op ops.Operator, ctx *ops.Context) error {
	if len(files)==0 { return fmt.Errorf("no input files given") }
	pattern:=*out
	if len(files)>1 && !strings.Contains(pattern, "%d") {
		ext:=filepath.Ext(pattern)
		pattern=strings.TrimSuffix(pattern, ext)+"_%d"+ext
	}
	seq:=ops.NewOpSequence(
		ops.NewOpLoadMany(files),
		op,
		sharpen.NewOpUnsharpMask(float32(*usmSigma), float32(*usmGain), float32(*usmThresh)),
		ops.NewOpSave(pattern),
	)

	m, err:=json.MarshalIndent(seq, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(ctx.Log, "Processing with these settings:\n%s\n", string(m))

	promises, err:=seq.MakePromises(nil, ctx)
	if err!=nil { return err }
	_, err=ops.MaterializeAll(promises, ctx.MaxThreads, true)
	return err
}

// Returns the projection family and parameter overrides from the configuration file and the flags.
// Flags override values from the file, but only if given explicitly
func projectionParams(dir grid.Direction) (config.Family, config.Overrides, error) {
	params:=config.Overrides{}
	family, err:=config.ParseFamily(*proj)
	if err!=nil { return "", nil, err }

	if *cfgFile!="" {
		f, err:=os.Open(*cfgFile)
		if err!=nil { return "", nil, err }
		defer f.Close()
		cfg, err:=config.Load(f)
		if err!=nil { return "", nil, err }
		b, err:=json.Marshal(cfg)
		if err!=nil { return "", nil, err }
		if err=json.Unmarshal(b, &params); err!=nil { return "", nil, err }
		if isFlagSet("proj") && cfg.Family()!=family {
			return "", nil, fmt.Errorf("projection %s from flag conflicts with %s from %s", family, cfg.Family(), *cfgFile)
		}
		family=cfg.Family()
	}

	latKey, lonKey:=centerKeys(family)
	if isFlagSet("lat") && latKey!="" { params[latKey]=*lat }
	if isFlagSet("lon") && lonKey!="" { params[lonKey]=*lon }
	if isFlagSet("fov") && family!=config.FamilyMercator { params["fov_deg"]=*fov }

	wKey, hKey:="x_points", "y_points"
	if dir==grid.Backward { wKey, hKey="lon_points", "lat_points" }
	if *width>0  { params[wKey]=*width }
	if *height>0 { params[hKey]=*height }

	if isFlagSet("interp")      { params["interpolation"]=*interpolation }
	if isFlagSet("border")      { params["border_mode"]=*border }
	if isFlagSet("borderValue") { params["border_value"]=*borderValue }
	if isFlagSet("fold")        { params["fold"]=*fold }
	if isFlagSet("mask")        { params["return_mask"]=*mask }
	return family, params, nil
}

// Returns the parameter names of the projection center for the given family. Empty if not applicable
func centerKeys(f config.Family) (latKey, lonKey string) {
	switch f {
	case config.FamilyGnomonic, config.FamilyAzimuthalEquidistant: return "phi1_deg", "lam0_deg"
	case config.FamilyStereographic:                               return "phi0_deg", "lam0_deg"
	case config.FamilyMercator:                                    return "", "lam0_deg"
	case config.FamilyObliqueMercator:                             return "center_lat", "center_lon"
	}
	return "", ""
}

// Returns true if the named flag was given on the command line
func isFlagSet(name string) bool {
	set:=false
	flag.Visit(func(f *flag.Flag) { if f.Name==name { set=true } })
	return set
}

// Lists the projections with their default parameters, and the available resampling options
func cmdList(logWriter io.Writer) error {
	for _,f:=range config.Families() {
		cfg, err:=config.Default(f)
		if err!=nil { return err }
		b, err:=config.Marshal(cfg)
		if err!=nil { return err }
		fmt.Fprintf(logWriter, "%s\n%s\n\n", f, string(b))
	}
	fmt.Fprintf(logWriter, "Interpolations: %v\nBorder modes: %v\n", interp.Kernels(), interp.BorderModes())
	return nil
}
