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


package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics on data arrays
type BasicStats struct {
	Min    float32  // Minimum
	Max    float32  // Maximum
	Mean   float32  // Mean (average)
	StdDev float32  // Standard deviation (norm 2, sigma)

	Location float32 // Selected location indicator, see LSEstimatorMode
	Scale    float32 // Selected scale indicator, see LSEstimatorMode
}

// Enumerated type for location and scale estimator modes
type LSEstimatorMode int
const (
	LSEMeanStdDev LSEstimatorMode = iota
	LSEMedianMAD
	LSEHistogram
)

// Number of samples drawn for the approximate median and MAD
const numSamples = 64*1024

// Pretty print basic stats to string
func (s *BasicStats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale)
}

// Calculate basic statistics for a data array. Location and scale default to mean and standard deviation.
// NaNs are ignored. Returns all zeros for empty or all-NaN data
func CalcBasicStats(data []float32) (s *BasicStats) {
	s=&BasicStats{}
	n:=0
	s.Min, s.Mean, s.Max, n=calcMinMeanMax(data)
	if n==0 { return s }
	s.StdDev=float32(math.Sqrt(calcVariance(data, s.Mean, n)))
	s.Location, s.Scale=s.Mean, s.StdDev
	return s
}

// Calculates basic statistics, plus location and scale with the given estimator
func CalcExtendedStats(data []float32, mode LSEstimatorMode) (s *BasicStats, err error) {
	s=CalcBasicStats(data)
	switch mode {
	case LSEMeanStdDev:
	case LSEMedianMAD:
		s.Location, s.Scale=FastApproxMedianMAD(data, numSamples)
	case LSEHistogram:
		if s.Max-s.Min<1e-8 { return s, nil }
		bins:=make([]int32, 1024)
		Histogram(data, s.Min, s.Max, bins)
		s.Location, s.Scale, err=GetModeStdDevFromHistogram(bins, s.Min, s.Max)
		if err!=nil { return nil, err }
	default:
		return nil, fmt.Errorf("unknown location and scale estimator mode %d", mode)
	}
	return s, nil
}

// Calculate minimum, mean and maximum of given data, skipping NaNs. Also returns the number of values used
func calcMinMeanMax(data []float32) (min, mean, max float32, n int) {
	mmin, mmean, mmax:=float32(math.MaxFloat32), float64(0), float32(-math.MaxFloat32)
	for _,v := range data {
		if v!=v { continue }
		if v<mmin { mmin=v }
		if v>mmax { mmax=v }
		mmean+=float64(v)
		n++
	}
	if n==0 { return 0, 0, 0, 0 }
	return mmin, float32(mmean/float64(n)), mmax, n
}

// Calculate variance of given data from provided mean, skipping NaNs
func calcVariance(data []float32, mean float32, n int) (result float64) {
	variance:=float64(0)
	for _,v :=range data {
		if v!=v { continue }
		diff:=float64(v-mean)
		variance+=diff*diff
	}
	return variance/float64(n)
}

// Calculates fast approximate median and median absolute deviation of the (presumably large) data
// by subsampling the given number of values. MAD is normalized to a Gaussian standard deviation.
// Small inputs are used in full
func FastApproxMedianMAD(data []float32, numSamples int) (median, mad float32) {
	if len(data)==0 { return 0, 0 }
	var samples []float64
	if len(data)<=numSamples {
		samples=make([]float64, 0, len(data))
		for _,d:=range data {
			if d==d { samples=append(samples, float64(d)) }
		}
	} else {
		samples=make([]float64, 0, numSamples)
		max:=uint32(len(data))
		rng:=fastrand.RNG{}
		for i:=0; i<numSamples; i++ {
			d:=data[rng.Uint32n(max)]
			if d==d { samples=append(samples, float64(d)) }
		}
	}
	if len(samples)==0 { return 0, 0 }

	sort.Float64s(samples)
	m:=stat.Quantile(0.5, stat.Empirical, samples, nil)
	for i,s:=range samples {
		samples[i]=math.Abs(s-m)
	}
	sort.Float64s(samples)
	d:=stat.Quantile(0.5, stat.Empirical, samples, nil)
	return float32(m), float32(d*1.4826)
}
