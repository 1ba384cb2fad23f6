package anomaly

import (
	"errors"
	"fmt"
	"math"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"gonum.org/v1/gonum/stat"
)

// Normalizer standardises each feature to zero mean and unit variance using
// population statistics. Constant features keep a scale of 1.
type Normalizer struct {
	Mean  []float64
	Scale []float64
}

func FitNormalizer(X [][]float64) (Normalizer, error) {
	if len(X) == 0 {
		return Normalizer{}, model.ErrInsufficientData
	}
	dims := len(X[0])
	if dims == 0 {
		return Normalizer{}, errors.Join(model.ErrDegenerateData, errors.New("empty feature vector"))
	}

	var (
		n   = Normalizer{Mean: make([]float64, dims), Scale: make([]float64, dims)}
		col = make([]float64, len(X))
	)
	for j := 0; j < dims; j++ {
		for i, row := range X {
			if len(row) != dims {
				return Normalizer{}, errors.Join(model.ErrDegenerateData, fmt.Errorf("row %d has %d features, want %d", i, len(row), dims))
			}
			if math.IsNaN(row[j]) || math.IsInf(row[j], 0) {
				return Normalizer{}, errors.Join(model.ErrDegenerateData, fmt.Errorf("row %d feature %d is not finite", i, j))
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		n.Mean[j] = mean
		n.Scale[j] = math.Sqrt(variance)
		if n.Scale[j] == 0 {
			n.Scale[j] = 1
		}
	}
	return n, nil
}

func (n Normalizer) Transform(x []float64) ([]float64, error) {
	if len(x) != len(n.Mean) {
		return nil, errors.Join(model.ErrDegenerateData, fmt.Errorf("vector has %d features, normalizer fitted on %d", len(x), len(n.Mean)))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - n.Mean[j]) / n.Scale[j]
	}
	return out, nil
}

func (n Normalizer) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		t, err := n.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
