package features

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"
)

type ProjectionMode string

const (
	// ProjectionFixed draws one matrix per input width and reuses it for
	// the lifetime of the Projector.
	ProjectionFixed ProjectionMode = "fixed"
	// ProjectionPerCall draws a fresh matrix on every call, so identical
	// inputs produce different outputs.
	ProjectionPerCall ProjectionMode = "per_call"
)

// Projector maps per-frame width F to a target width D through a Gaussian
// random matrix scaled by 1/sqrt(F). Safe for concurrent use.
type Projector struct {
	target int
	mode   ProjectionMode
	seed   uint64

	mu    sync.Mutex
	cache map[int]*mat.Dense
}

// NewProjector returns a Projector. A zero seed in fixed mode picks a
// random one, which keeps outputs stable within the process only.
func NewProjector(target int, mode ProjectionMode, seed uint64) *Projector {
	if mode == "" {
		mode = ProjectionFixed
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Projector{target: target, mode: mode, seed: seed, cache: map[int]*mat.Dense{}}
}

func (p *Projector) Target() int { return p.target }

// Project returns frames unchanged when their width already equals the
// target; otherwise every frame is multiplied by the projection matrix.
func (p *Projector) Project(frames [][]float64) ([][]float64, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("project: no frames")
	}
	width := len(frames[0])
	if width == p.target {
		return frames, nil
	}
	if width == 0 {
		return nil, fmt.Errorf("project: zero-width frames")
	}

	flat := make([]float64, 0, len(frames)*width)
	for i, f := range frames {
		if len(f) != width {
			return nil, fmt.Errorf("project: frame %d has width %d, want %d", i, len(f), width)
		}
		flat = append(flat, f...)
	}
	x := mat.NewDense(len(frames), width, flat)

	var y mat.Dense
	y.Mul(x, p.matrix(width))

	out := make([][]float64, len(frames))
	for i := range out {
		out[i] = mat.Row(nil, i, &y)
	}
	return out, nil
}

func (p *Projector) matrix(width int) *mat.Dense {
	if p.mode == ProjectionPerCall {
		return gaussian(width, p.target, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.cache[width]; ok {
		return m
	}
	m := gaussian(width, p.target, rand.New(rand.NewPCG(p.seed, uint64(width))))
	p.cache[width] = m
	return m
}

func gaussian(rows, cols int, rng *rand.Rand) *mat.Dense {
	scale := 1 / math.Sqrt(float64(rows))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, cols, data)
}
