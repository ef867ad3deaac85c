package model

import "gonum.org/v1/gonum/mat"

// Argmax returns the index of the maximum value in data, breaking
// ties in favour of the lowest index
func Argmax(data []float64) int {
	best := 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}

// OneHot returns a one-hot vector of length n with a 1.0 at index i
func OneHot(i, n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	v.SetVec(i, 1.0)
	return v
}

// RawObs copies an observation vector into a flat slice
func RawObs(obs mat.Vector) []float64 {
	data := make([]float64, obs.Len())
	for i := range data {
		data[i] = obs.AtVec(i)
	}
	return data
}
