package volume

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// statsBatchSize bounds how many values a StatsAccumulator holds at once
const statsBatchSize = 4096

// Stats summarizes the active values of a field
type Stats struct {
	// Count is the number of active voxels
	Count int

	// Min, Max and Mean describe the active values; all zero when Count is zero
	Min, Max, Mean float64

	// OutOfRange counts values outside [0,1], which wrap when quantized to a byte
	OutOfRange int
}

// StatsAccumulator builds Stats from a stream of values.
// Values are summarized in fixed-size batches, so memory stays bounded by the
// batch size plus one mean per batch. The zero value is ready to use.
type StatsAccumulator struct {
	batch []float64

	// means and weights hold the mean and length of every flushed batch
	means   []float64
	weights []float64

	s Stats
}

// Add records one value
func (a *StatsAccumulator) Add(v float64) {
	if a.batch == nil {
		a.batch = make([]float64, 0, statsBatchSize)
	}
	if v < 0 || v > 1 {
		a.s.OutOfRange++
	}
	a.batch = append(a.batch, v)
	if len(a.batch) == statsBatchSize {
		a.flush()
	}
}

func (a *StatsAccumulator) flush() {
	if len(a.batch) == 0 {
		return
	}

	lo, hi := floats.Min(a.batch), floats.Max(a.batch)
	if a.s.Count == 0 {
		a.s.Min, a.s.Max = lo, hi
	} else {
		a.s.Min = min(a.s.Min, lo)
		a.s.Max = max(a.s.Max, hi)
	}
	a.s.Count += len(a.batch)

	a.means = append(a.means, stat.Mean(a.batch, nil))
	a.weights = append(a.weights, float64(len(a.batch)))
	a.batch = a.batch[:0]
}

// Stats returns the summary of every value added so far
func (a *StatsAccumulator) Stats() Stats {
	a.flush()
	s := a.s
	if len(a.means) > 0 {
		s.Mean = stat.Mean(a.means, a.weights)
	}
	return s
}

// ComputeStats summarizes a set of active values
func ComputeStats(values []float64) Stats {
	var a StatsAccumulator
	for _, v := range values {
		a.Add(v)
	}
	return a.Stats()
}

func (s Stats) String() string {
	return fmt.Sprintf("%d active, min %.4f, max %.4f, mean %.4f, %d outside [0,1]",
		s.Count, s.Min, s.Max, s.Mean, s.OutOfRange)
}
