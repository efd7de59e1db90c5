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


// Package config holds the typed, validated parameter sets of the supported projection families.
// Configurations are values: overrides derive a new configuration and never modify the original.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/mlnoga/panoproj/internal/errs"
	"github.com/mlnoga/panoproj/internal/interp"
	"github.com/mlnoga/panoproj/internal/pixel"
)

// A projection family
type Family string

const (
	FamilyGnomonic             Family = "gnomonic"
	FamilyStereographic        Family = "stereographic"
	FamilyMercator             Family = "mercator"
	FamilyObliqueMercator      Family = "oblique_mercator"
	FamilyAzimuthalEquidistant Family = "azimuthal_equidistant"
)

// Returns all supported projection families, in a fixed order
func Families() []Family {
	return []Family{FamilyGnomonic, FamilyStereographic, FamilyMercator, FamilyObliqueMercator, FamilyAzimuthalEquidistant}
}

// Parses a projection family name. Accepts dashes in place of underscores
func ParseFamily(s string) (Family, error) {
	name:=strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _,f:=range Families() {
		if string(f)==name { return f, nil }
	}
	return "", errs.New(errs.Configuration, "unknown projection '%s', expecting one of %v", s, Families())
}

// Bounding box of the equirectangular image, in degrees
type BBox struct {
	LonMin float64 `json:"lon_min" validate:"gte=-180,lte=180"`
	LonMax float64 `json:"lon_max" validate:"gte=-180,lte=180,gtfield=LonMin"`
	LatMin float64 `json:"lat_min" validate:"gte=-90,lte=90"`
	LatMax float64 `json:"lat_max" validate:"gte=-90,lte=90,gtfield=LatMin"`
}

// Returns the bounding box as rectangle, with longitudes on the X and latitudes on the Y axis
func (b BBox) Rect() r2.Rect {
	return r2.Rect{X: r1.Interval{Lo: b.LonMin, Hi: b.LonMax}, Y: r1.Interval{Lo: b.LatMin, Hi: b.LatMax}}
}

// Parameters shared by all projection families
type Common struct {
	R           float64           `json:"R"            validate:"gt=0"`
	XPoints     int               `json:"x_points"     validate:"min=1,max=4096"`
	YPoints     int               `json:"y_points"     validate:"min=1,max=4096"`
	LonPoints   int               `json:"lon_points"   validate:"min=1,max=4096"`
	LatPoints   int               `json:"lat_points"   validate:"min=1,max=4096"`
	BBox
	Interpolation interp.Kernel   `json:"interpolation" validate:"oneof=nearest bilinear bicubic lanczos4"`
	BorderMode  interp.BorderMode `json:"border_mode"  validate:"oneof=constant wrap clamp reflect"`
	BorderValue float32           `json:"border_value"`
	Fold        pixel.FoldPolicy  `json:"fold"         validate:"oneof=reflect wrap"`
	ReturnMask  bool              `json:"return_mask"`
}

// Returns the shared parameters. Promoted to all families embedding Common
func (c *Common) Base() *Common { return c }

// Returns an interpolator configured from the shared parameters
func (c *Common) Interpolator() *interp.Interpolator {
	return &interp.Interpolator{Kernel: c.Interpolation, Border: c.BorderMode, BorderValue: c.BorderValue}
}

func defaultCommon() Common {
	return Common{
		R:             1,
		XPoints:       512,
		YPoints:       512,
		LonPoints:     1024,
		LatPoints:     512,
		BBox:          BBox{LonMin: -180, LonMax: 180, LatMin: -90, LatMax: 90},
		Interpolation: interp.Bilinear,
		BorderMode:    interp.BorderConstant,
		BorderValue:   0,
		Fold:          pixel.FoldReflect,
		ReturnMask:    true,
	}
}

// A validated configuration of one projection family
type Config interface {
	Family() Family
	Base()   *Common
}

// Gnomonic projection centered on (phi1, lam0)
type Gnomonic struct {
	Common
	Phi1Deg float64 `json:"phi1_deg" validate:"gte=-90,lte=90"`
	Lam0Deg float64 `json:"lam0_deg" validate:"gte=-180,lte=180"`
	FovDeg  float64 `json:"fov_deg"  validate:"gt=0,lte=180"`
}

func (c *Gnomonic) Family() Family { return FamilyGnomonic }

// Stereographic projection centered on (phi0, lam0), with a scale factor
type Stereographic struct {
	Common
	Phi0Deg       float64 `json:"phi0_deg"       validate:"gte=-90,lte=90"`
	Lam0Deg       float64 `json:"lam0_deg"       validate:"gte=-180,lte=180"`
	FovDeg        float64 `json:"fov_deg"        validate:"gt=0,lte=180"`
	ScalingFactor float64 `json:"scaling_factor" validate:"gt=0"`
}

func (c *Stereographic) Family() Family { return FamilyStereographic }

// Normal Mercator projection with central meridian lam0. The planar extent follows the bounding box
type Mercator struct {
	Common
	Lam0Deg float64 `json:"lam0_deg" validate:"gte=-180,lte=180"`
}

func (c *Mercator) Family() Family { return FamilyMercator }

// Oblique Mercator projection along a central line through a center point with given azimuth
type ObliqueMercator struct {
	Common
	K0         float64 `json:"k0"          validate:"gt=0"`
	CenterLat  float64 `json:"center_lat"  validate:"gte=-90,lte=90"`
	CenterLon  float64 `json:"center_lon"  validate:"gte=-180,lte=180"`
	AzimuthDeg float64 `json:"azimuth_deg" validate:"gte=-360,lte=360"`
	FovDeg     float64 `json:"fov_deg"     validate:"gt=0,lte=180"`
}

func (c *ObliqueMercator) Family() Family { return FamilyObliqueMercator }

// Azimuthal equidistant projection centered on (phi1, lam0)
type AzimuthalEquidistant struct {
	Common
	Phi1Deg float64 `json:"phi1_deg" validate:"gte=-90,lte=90"`
	Lam0Deg float64 `json:"lam0_deg" validate:"gte=-180,lte=180"`
	FovDeg  float64 `json:"fov_deg"  validate:"gt=0,lte=180"`
}

func (c *AzimuthalEquidistant) Family() Family { return FamilyAzimuthalEquidistant }

// Returns a new default configuration for the given family
func Default(f Family) (Config, error) {
	c:=defaultCommon()
	switch f {
	case FamilyGnomonic:
		return &Gnomonic{Common: c, FovDeg: 90}, nil
	case FamilyStereographic:
		return &Stereographic{Common: c, FovDeg: 90, ScalingFactor: 1}, nil
	case FamilyMercator:
		c.XPoints, c.YPoints=1024, 512
		c.LatMin, c.LatMax=-85, 85
		return &Mercator{Common: c}, nil
	case FamilyObliqueMercator:
		c.XPoints, c.YPoints=1024, 512
		c.LatMin, c.LatMax=-85, 85
		return &ObliqueMercator{Common: c, K0: 1, CenterLat: 40, CenterLon: -100, AzimuthDeg: 30, FovDeg: 90}, nil
	case FamilyAzimuthalEquidistant:
		return &AzimuthalEquidistant{Common: c, FovDeg: 180}, nil
	}
	return nil, errs.New(errs.Configuration, "unknown projection '%s'", f)
}

// Returns a new zero configuration of the given family, for decoding
func zero(f Family) (Config, error) {
	switch f {
	case FamilyGnomonic:             return &Gnomonic{}, nil
	case FamilyStereographic:        return &Stereographic{}, nil
	case FamilyMercator:             return &Mercator{}, nil
	case FamilyObliqueMercator:      return &ObliqueMercator{}, nil
	case FamilyAzimuthalEquidistant: return &AzimuthalEquidistant{}, nil
	}
	return nil, errs.New(errs.Configuration, "unknown projection '%s'", f)
}


// Per-call parameter overrides, keyed by JSON field name
type Overrides map[string]interface{}

// Validator instance. Caches struct metadata and is safe for concurrent use
var validate=validator.New()

// Validates a configuration. Failures are configuration errors listing all offending fields
func Validate(c Config) error {
	if c==nil { return errs.New(errs.Configuration, "missing configuration") }
	err:=validate.Struct(c)
	if err==nil { return nil }
	verrs, ok:=err.(validator.ValidationErrors)
	if !ok { return errs.Wrap(errs.Configuration, err, "%s configuration", c.Family()) }

	msgs:=make([]string, 0, len(verrs))
	for _,fe:=range verrs {
		if fe.Param()!="" {
			msgs=append(msgs, fmt.Sprintf("%s=%v violates %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
		} else {
			msgs=append(msgs, fmt.Sprintf("%s=%v violates %s", fe.Field(), fe.Value(), fe.Tag()))
		}
	}
	return errs.New(errs.Configuration, "invalid %s configuration: %s", c.Family(), strings.Join(msgs, "; "))
}

// Derives a new, validated configuration by applying the overrides to a copy of the given one.
// Unknown keys and invalid values are configuration errors. The given configuration is never modified
func Derive(c Config, overrides Overrides) (Config, error) {
	if c==nil { return nil, errs.New(errs.Configuration, "missing configuration") }

	// Flatten the current values into a map keyed by JSON name
	b, err:=json.Marshal(c)
	if err!=nil { return nil, errs.Wrap(errs.Configuration, err, "encoding %s configuration", c.Family()) }
	values:=map[string]interface{}{}
	if err=json.Unmarshal(b, &values); err!=nil {
		return nil, errs.Wrap(errs.Configuration, err, "decoding %s configuration", c.Family())
	}

	var unknown []string
	for k,v:=range overrides {
		if _, ok:=values[k]; !ok {
			unknown=append(unknown, k)
			continue
		}
		values[k]=v
	}
	if len(unknown)>0 {
		sort.Strings(unknown)
		return nil, errs.New(errs.Configuration, "unknown parameters %v for %s projection", unknown, c.Family())
	}

	// Decode the merged values into a fresh configuration of the same family
	if b, err=json.Marshal(values); err!=nil {
		return nil, errs.Wrap(errs.Configuration, err, "encoding overrides")
	}
	res, err:=zero(c.Family())
	if err!=nil { return nil, err }
	dec:=json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err=dec.Decode(res); err!=nil {
		return nil, errs.Wrap(errs.Configuration, err, "applying overrides to %s configuration", c.Family())
	}
	if err=Validate(res); err!=nil { return nil, err }
	return res, nil
}

// Creates a validated default configuration for the given family, with overrides applied
func New(f Family, overrides Overrides) (Config, error) {
	c, err:=Default(f)
	if err!=nil { return nil, err }
	return Derive(c, overrides)
}

// Loads a configuration from a JSON document of the form {"projection": "gnomonic", "fov_deg": 60, ...}.
// Missing parameters take their family's default values
func Load(r io.Reader) (Config, error) {
	values:=Overrides{}
	dec:=json.NewDecoder(r)
	dec.UseNumber()
	if err:=dec.Decode(&values); err!=nil {
		return nil, errs.Wrap(errs.Configuration, err, "reading configuration")
	}
	name, ok:=values["projection"].(string)
	if !ok { return nil, errs.New(errs.Configuration, "configuration lacks a 'projection' name") }
	delete(values, "projection")
	f, err:=ParseFamily(name)
	if err!=nil { return nil, err }
	return New(f, values)
}

// Returns the configuration as a JSON document readable by Load
func Marshal(c Config) ([]byte, error) {
	b, err:=json.Marshal(c)
	if err!=nil { return nil, err }
	values:=map[string]interface{}{}
	if err=json.Unmarshal(b, &values); err!=nil { return nil, err }
	values["projection"]=c.Family()
	return json.MarshalIndent(values, "", "  ")
}
