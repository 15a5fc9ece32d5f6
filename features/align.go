package features

import "github.com/maastricht-university/edmo-emotion/types"

// AlignRepeat forces frames to length n. Short sequences repeat their last
// frame; long ones are subsampled at evenly spaced indices over the whole
// clip so temporal coverage is kept.
func AlignRepeat(frames [][]float64, n int) ([][]float64, error) {
	t := len(frames)
	if t == 0 {
		return nil, types.ErrEmptySequence
	}
	out := make([][]float64, n)
	if t <= n {
		copy(out, frames)
		last := frames[t-1]
		for i := t; i < n; i++ {
			out[i] = cloneRow(last)
		}
		return out, nil
	}
	for i, idx := range spacedIndices(t, n) {
		out[i] = frames[idx]
	}
	return out, nil
}

// AlignZero forces frames to length n by appending zero frames or keeping
// only the first n.
func AlignZero(frames [][]float64, n int) ([][]float64, error) {
	t := len(frames)
	if t == 0 {
		return nil, types.ErrEmptySequence
	}
	if t >= n {
		return frames[:n:n], nil
	}
	width := len(frames[0])
	out := make([][]float64, n)
	copy(out, frames)
	for i := t; i < n; i++ {
		out[i] = make([]float64, width)
	}
	return out, nil
}

// spacedIndices returns n indices linearly spaced over [0, t-1], truncated
// toward zero. The first is 0 and the last is t-1.
func spacedIndices(t, n int) []int {
	idx := make([]int, n)
	if n == 1 {
		return idx
	}
	step := float64(t-1) / float64(n-1)
	for i := range idx {
		idx[i] = int(float64(i) * step)
	}
	idx[n-1] = t - 1
	return idx
}

func cloneRow(r []float64) []float64 {
	out := make([]float64, len(r))
	copy(out, r)
	return out
}
