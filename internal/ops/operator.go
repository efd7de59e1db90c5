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


package ops

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pbnjay/memory"
	"github.com/pkg/errors"

	"github.com/mlnoga/panoproj/internal/raster"
	"github.com/mlnoga/panoproj/internal/stats"
)

// An execution context for operators
type Context struct {
	Log              io.Writer
	LSEstimatorMode  stats.LSEstimatorMode
	MemoryMB         int          // physical memory, caps the number of concurrent conversions
	MaxThreads       int          `json:"maxThreads"` // concurrent conversions, each single-threaded
	Linear           bool         `json:"linear"`     // convert sRGB to linear light on load, and back on save
	AllowAbsPaths    bool         `json:"-"`          // permit absolute and parent paths, for the command line only
}

func NewContext(log io.Writer, lsEstimatorMode stats.LSEstimatorMode) *Context {
	return &Context{
		Log             : log,
		LSEstimatorMode : lsEstimatorMode,
		MemoryMB        : int(memory.TotalMemory()/1024/1024),
		MaxThreads      : runtime.GOMAXPROCS(0),
	}
}

// Percentage of physical memory which concurrent conversions may occupy
const conversionMemoryPercent=70

// Estimated peak bytes for converting an image of the given dimensions, assuming an output of similar size:
// source and result planes, lat/lon and x/y grids in float64, the coordinate map, and the mask
func conversionBytes(width, height, channels int) int64 {
	return int64(width)*int64(height)*(2*4*int64(channels) + 4*8 + 2*4 + 1)
}

// Lowers MaxThreads so that concurrent conversions of images with the given dimensions fit into memory.
// Leaves it unchanged if the memory size is unknown. Returns the resulting limit, at least 1
func (c *Context) LimitThreadsByMemory(width, height, channels int) int {
	if c.MaxThreads<1 { c.MaxThreads=1 }
	if c.MemoryMB<=0 || width<=0 || height<=0 || channels<=0 { return c.MaxThreads }
	available:=int64(c.MemoryMB)*1024*1024*conversionMemoryPercent/100
	fits:=available/conversionBytes(width, height, channels)
	if fits<1 { fits=1 }
	if fits<int64(c.MaxThreads) { c.MaxThreads=int(fits) }
	return c.MaxThreads
}

// A promise for an image. Returns a materialized image, or an error
type Promise func() (f *raster.Image, err error)

// Materializes all promises, running at most maxThreads at a time. Each promise runs single-threaded.
// Failures are joined in input order; a panicking promise fails instead of taking down the process
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*raster.Image, err error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<1 { maxThreads=1 }
	results :=make([]*raster.Image, len(ins))
	failures:=make([]error, len(ins))
	limiter :=make(chan struct{}, maxThreads)
	var wg sync.WaitGroup
	for i, in:=range ins {
		limiter<-struct{}{}
		wg.Add(1)
		go func(i int, in Promise) {
			defer func() {
				if r:=recover(); r!=nil { failures[i]=errors.Errorf("conversion %d failed: %v", i, r) }
				<-limiter
				wg.Done()
			}()
			f, err:=in()
			if err!=nil { failures[i]=err; return }
			if !forget { results[i]=f }
		}(i, in)
	}
	wg.Wait()

	for _, e:=range failures {
		if e==nil { continue }
		if err==nil { err=e; continue }
		err=errors.Errorf("%s; %s", err.Error(), e.Error())
	}
	if forget { return nil, err }
	return RemoveNils(results), err
}

// Remove nils from an array of images, editing the underlying array in place
func RemoveNils(fs []*raster.Image) []*raster.Image {
	o:=0
	for i:=0; i<len(fs); i++ {
		if fs[i]!=nil {
			fs[o]=fs[i]
			o++
		}
	}
	for i:=o; i<len(fs); i++ {
		fs[i]=nil
	}
	return fs[:o]
}


// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories=map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Returns the registered operator type strings in sorted order
func OperatorTypes() []string {
	res:=make([]string, 0, len(operatorFactories))
	for t:=range operatorFactories { res=append(res, t) }
	sort.Strings(res)
	return res
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op:=f()
	t:=op.GetType()
	if GetOperatorFactory(t)!=nil { panic(fmt.Sprintf("error: re-registering operator key %s\n", t))}
	operatorFactories[t]=f
}

// Decodes a single polymorphic operator from JSON, dispatching on its type string
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err:=json.Unmarshal(raw, &base); err!=nil { return nil, err }
	factory:=GetOperatorFactory(base.Type)
	if factory==nil {
		return nil, errors.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op:=factory()
	if err:=json.Unmarshal(raw, op); err!=nil { return nil, err }
	return op, nil
}


// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *raster.Image, c *Context) (fOut *raster.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *raster.Image, c *Context) (fOut *raster.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return nil, errors.Errorf("%s operator with %d inputs", op.Type, len(ins)) }
	if op.Apply==nil { return nil, errors.Errorf("%s operator without implementation", op.Type) }
	outs=make([]Promise, len(ins))
	for i,in:=range ins {
		outs[i]=op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *raster.Image, err error) {
		if f, err=in();          err!=nil { return nil, err } // materialize input promise
		if f, err=op.Apply(f,c); err!=nil { return nil, err } // apply unary operator
		return f, nil                                         // wrap output in promise
	}
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID          int     `json:"id"`
	FileName    string  `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault()}) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase   : OpBase{Type: "load", Active: true},
		ID       : id,
		FileName : fileName,
	}
}

// Returns a single promise which loads the file. Takes no inputs
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, errors.Errorf("%s operator with non-zero input", op.Type) }
	if !c.AllowAbsPaths && !isPathAllowed(op.FileName) {
		return nil, errors.Errorf("%d: file name %s outside current directory tree, aborting", op.ID, op.FileName)
	}
	return []Promise{ func() (*raster.Image, error) { return op.Apply(nil, c) } }, nil
}

// Paths from requests must stay inside the working directory: relative, and not escaping upwards once cleaned
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) || filepath.VolumeName(p)!="" { return false }
	clean:=filepath.Clean(p)
	return clean!=".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

func (op *OpLoad) Apply(f *raster.Image, c *Context) (result *raster.Image, err error) {
	f, err=raster.NewImageFromFile(op.FileName, op.ID, c.Linear)
	if err!=nil { return nil, err }

	s:=f.UpdateStats()
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s\n", f.ID, f.DimensionsToString(), s, f.FileName)
	if s.Max-s.Min<1e-8 {
		fmt.Fprintf(c.Log, "%d: Warning: image is flat, the projection will be too\n", f.ID)
	}
	return f, nil
}

// Load many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault()}) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase       : OpBase{Type: "loadMany", Active: true},
		FilePatterns : filePatterns,
	}
}

// Expands the file name patterns into one load promise per file, numbered in order of the matches.
// Caps the context's concurrency by the memory needed to convert the first file
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, errors.Errorf("%s operator with non-zero input", op.Type) }
	fileNames, err:=op.expand()
	if err!=nil { return nil, err }
	if len(fileNames)==0 {
		return nil, errors.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	for id, fileName:=range fileNames {
		promises, err:=NewOpLoad(id, fileName).MakePromises(nil, c)
		if err!=nil { return nil, err }
		outs=append(outs, promises[0])
	}

	w, h, ch, err:=raster.ReadDimensions(fileNames[0])
	if err!=nil {
		// reported again when loading
		fmt.Fprintf(c.Log, "Found %d files.\n", len(fileNames))
		return outs, nil
	}
	threads:=c.LimitThreadsByMemory(w, h, ch)
	fmt.Fprintf(c.Log, "Found %d files, the first with %dx%dx%d pixels. %d MiB of memory allow %d concurrent conversions.\n",
		len(fileNames), w, h, ch, c.MemoryMB, threads)
	return outs, nil
}

// Returns the files matching any of the patterns, in pattern order and without duplicates
func (op *OpLoadMany) expand() ([]string, error) {
	seen:=map[string]bool{}
	var res []string
	for _, pattern:=range op.FilePatterns {
		matches, err:=filepath.Glob(pattern)
		if err!=nil { return nil, errors.Wrapf(err, "pattern %s", pattern) }
		for _, m:=range matches {
			if seen[m] { continue }
			seen[m]=true
			res=append(res, m)
		}
	}
	return res, nil
}


// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern       string          `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault()}) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op:=OpSave{
		OpUnaryBase : OpUnaryBase{OpBase : OpBase{Type: "save", Active: filenamePattern!=""}},
		FilePattern : filenamePattern,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def:=defaults( *NewOpSaveDefault() )
	def.Active=true // a pattern given in JSON activates the save
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpSave(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

// Returns the file name for the given image ID, expanding %d if present
func (op *OpSave) FileName(id int) string {
	if strings.Contains(op.FilePattern, "%d") {
		return fmt.Sprintf(op.FilePattern, id)
	}
	return op.FilePattern
}

func (op *OpSave) Apply(f *raster.Image, c *Context) (result *raster.Image, err error) {
	if !op.Active || op.FilePattern=="" { return f, nil }
	fileName:=op.FileName(f.ID)
	if !c.AllowAbsPaths && !isPathAllowed(fileName) {
		return nil, errors.Errorf("%d: file name %s outside current directory tree, aborting", f.ID, fileName)
	}
	format, err:=raster.FormatFromFileName(fileName)
	if err!=nil { return nil, errors.Wrapf(err, "%d", f.ID) }

	fmt.Fprintf(c.Log, "%d: Writing %s pixel %s to %s\n", f.ID, f.DimensionsToString(), format, fileName)
	if err=f.WriteFile(fileName, c.Linear); err!=nil {
		return nil, errors.Wrapf(err, "%d: error writing to file %s", f.ID, fileName)
	}
	return f, nil
}


// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps       []Operator        `json:"-"`      // the actual steps
	StepsRaw    []json.RawMessage `json:"steps"`  // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault()}) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase : OpBase{Type: "seq", Active: len(steps)>0},
		Steps  : steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err:=json.Unmarshal(b, (*alias)(op)); err!=nil { return err }

	op.Steps=nil
	for _, raw := range op.StepsRaw {
		step, err:=UnmarshalOperator(raw)
		if err!=nil { return err }
		op.Steps=append(op.Steps, step)
	}
	op.StepsRaw=nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps=append(op.Steps, steps...)
	op.Active=len(op.Steps)>0
}

// Marshals a sequence with its polymorphic steps, ignoring op.StepsRaw
func (op *OpSequence) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string     `json:"type"`
		Active bool       `json:"active"`
		Steps  []Operator `json:"steps"`
	}{op.Type, op.Active, op.Steps})
}

// Chains the steps, feeding each step's promises into the next
func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	outs=ins
	for i, step:=range op.Steps {
		if outs, err=step.MakePromises(outs, c); err!=nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i+1, step.GetType())
		}
	}
	return outs, nil
}


// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator  `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault()}) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase    : OpBase{Type: "forEach", Active: operation!=nil},
		Operation : operation,
	}
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	var aux struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	if err:=json.Unmarshal(b, &aux); err!=nil { return err }
	op.OpBase, op.Operation=aux.OpBase, nil
	if len(aux.Operation)==0 || string(aux.Operation)=="null" { return nil }
	inner, err:=UnmarshalOperator(aux.Operation)
	if err!=nil { return err }
	op.Operation=inner
	return nil
}

// Applies the operation to each input separately
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return ins, nil }
	if op.Operation==nil { return nil, errors.Errorf("%s operator has no operation to apply", op.Type) }
	for _,in:=range ins {
		out, err:=op.Operation.MakePromises([]Promise{in}, c)
		if err!=nil { return nil, err }
		if len(out)!=1 { return nil, errors.Errorf("%s operator needs exactly one promise from embedded operation", op.Type) }
		outs=append(outs, out[0])
	}
	return outs, nil
}
