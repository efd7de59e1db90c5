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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/panoproj/internal/config"
	"github.com/mlnoga/panoproj/internal/grid"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/ops"
	"github.com/mlnoga/panoproj/internal/ops/project"
	_ "github.com/mlnoga/panoproj/internal/ops/sharpen" // registers the unsharpMask operator
	"github.com/mlnoga/panoproj/internal/pixel"
	"github.com/mlnoga/panoproj/internal/stats"
	"github.com/mlnoga/panoproj/web"
)

// Returns the router with all API routes and the static web page
func NewRouter(ctx *ops.Context) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if ctx==nil { ctx=ops.NewContext(io.Discard, stats.LSEMeanStdDev) }
	s:=&server{ctx: ctx}
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",        getPing)
			v1.GET ("/projections", getProjections)
			v1.POST("/forward",     s.postProject(grid.Forward))
			v1.POST("/backward",    s.postProject(grid.Backward))
			v1.POST("/run",         s.postRun)
			v1.POST("/preview",     s.postPreview)
		}
	}
	r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML) })
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string, ctx *ops.Context) error {
	return NewRouter(ctx).Run(addr)
}

// Operator settings shared by all requests. Each request gets its own copy with the response as log
type server struct {
	ctx *ops.Context
}

func (s *server) context(log io.Writer) *ops.Context {
	c:=*s.ctx
	c.Log, c.AllowAbsPaths=log, false
	return &c
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

type projectionInfo struct {
	Name     config.Family   `json:"name"`
	Defaults json.RawMessage `json:"defaults"`
}

func getProjections(c *gin.Context) {
	var infos []projectionInfo
	for _,f:=range config.Families() {
		cfg, err:=config.Default(f)
		if err==nil {
			var b []byte
			if b, err=config.Marshal(cfg); err==nil {
				infos=append(infos, projectionInfo{Name: f, Defaults: b})
				continue
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projections":    infos,
		"interpolations": interp.Kernels(),
		"borderModes":    interp.BorderModes(),
		"folds":          []pixel.FoldPolicy{pixel.FoldReflect, pixel.FoldWrap},
		"operators":      ops.OperatorTypes(),
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Starts a plain text response into which the operator log is streamed
func startLog(c *gin.Context) gin.ResponseWriter {
	logWriter := c.Writer
	logWriter.Header().Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)
	return logWriter
}

// Source file and projection of a conversion request
type projectArgs struct {
	FileName   string           `json:"fileName"   binding:"required"`
	Projection config.Family    `json:"projection" binding:"required"`
	Params     config.Overrides `json:"params"`
}

func (a *projectArgs) sequence(dir grid.Direction) *ops.OpSequence {
	return ops.NewOpSequence(ops.NewOpLoad(0, a.FileName), project.NewOpProject(dir, a.Projection, a.Params))
}

type postProjectArgs struct {
	projectArgs
	Out        string           `json:"out"        binding:"required"`
}

func (s *server) postProject(dir grid.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		var args postProjectArgs
		if err:=c.ShouldBindJSON(&args); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
			return
		}
		logWriter:=startLog(c)
		if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
			fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
			return
		}
		seq:=args.sequence(dir)
		seq.Append(ops.NewOpSave(args.Out))
		s.run(logWriter, seq)
	}
}

func (s *server) postRun(c *gin.Context) {
	var seq ops.OpSequence
	if err:=c.ShouldBindJSON(&seq); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	logWriter:=startLog(c)
	if err:=printArgs(logWriter, "Sequence:\n", "\n", &seq); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	s.run(logWriter, &seq)
}

// Runs the sequence with zero inputs, streaming the log into the response
func (s *server) run(logWriter gin.ResponseWriter, seq *ops.OpSequence) {
	ctx:=s.context(logWriter)
	promises, err:=seq.MakePromises(nil, ctx)
	if err==nil {
		_, err=ops.MaterializeAll(promises, ctx.MaxThreads, true)
	}
	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "Done.\n")
	}
	logWriter.Flush()
}

type postPreviewArgs struct {
	projectArgs
	Direction grid.Direction   `json:"direction"`
	MaxWidth  int              `json:"maxWidth"`
}

// Converts a single file and returns a downscaled JPEG of the result. Nothing is written to disk
func (s *server) postPreview(c *gin.Context) {
	var args postPreviewArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	dir:=grid.Forward
	if args.Direction!="" {
		var err error
		if dir, err=grid.ParseDirection(string(args.Direction)); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
			return
		}
	}
	maxWidth:=args.MaxWidth
	if maxWidth<=0 { maxWidth=1024 }

	ctx:=s.context(io.Discard)
	promises, err:=args.sequence(dir).MakePromises(nil, ctx)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	res, err:=ops.MaterializeAll(promises, 1, false)
	if err!=nil || len(res)!=1 {
		msg:="no result"
		if err!=nil { msg=err.Error() }
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg } )
		return
	}

	c.Header("Content-Type", "image/jpeg")
	c.Status(http.StatusOK)
	if err:=res[0].WritePreviewJPG(c.Writer, maxWidth, ctx.Linear); err!=nil {
		c.Error(err)
	}
}
