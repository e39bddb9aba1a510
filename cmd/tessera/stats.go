package main

import (
	"io"
	"math"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/tessera/internal/tensor"
)

// rowStat summarizes one [channels] row of a kernel output. Rows holding a
// non-finite value report zero mean and std with Finite unset.
type rowStat struct {
	Batch  int     `json:"batch"`
	Token  int     `json:"token"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Finite bool    `json:"finite"`
}

func rowStats(out []float32, shape tensor.Shape, limit int) []rowStat {
	c := shape[0]
	rows := shape[1] * shape[2]
	if limit > 0 && limit < rows {
		rows = limit
	}
	stats := make([]rowStat, 0, rows)
	for i := range rows {
		s := rowStat{Batch: i / shape[1], Token: i % shape[1], Finite: true}
		var sum, sq float64
		for _, v := range out[i*c : (i+1)*c] {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				s.Finite = false
				break
			}
			sum += f
			sq += f * f
		}
		if s.Finite && c > 0 {
			s.Mean = sum / float64(c)
			s.Std = math.Sqrt(max(sq/float64(c)-s.Mean*s.Mean, 0))
		}
		stats = append(stats, s)
	}
	return stats
}

func countNonFinite(out []float32) int {
	n := 0
	for _, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			n++
		}
	}
	return n
}

// maxAbsError compares got against a float64 reference.
func maxAbsError(got []float32, want []float64) float64 {
	var worst float64
	for i, w := range want {
		worst = max(worst, math.Abs(float64(got[i])-w))
	}
	return worst
}

type durationSummary struct {
	Min    time.Duration `json:"min_ns"`
	Median time.Duration `json:"median_ns"`
	Mean   time.Duration `json:"mean_ns"`
	Max    time.Duration `json:"max_ns"`
}

func summarize(ds []time.Duration) durationSummary {
	if len(ds) == 0 {
		return durationSummary{}
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return durationSummary{
		Min:    sorted[0],
		Median: sorted[len(sorted)/2],
		Mean:   total / time.Duration(len(sorted)),
		Max:    sorted[len(sorted)-1],
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
