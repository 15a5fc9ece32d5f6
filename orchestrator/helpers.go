package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/types"
)

// withTimeout bounds ctx by d; d <= 0 leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// guarded runs fn while holding one slot of the model gate.
func (p *Pipeline) guarded(ctx context.Context, fn func() error) error {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.gate.Release(1)
	return fn()
}

// release removes the request's scratch directory. Failures are logged and
// never returned.
func (p *Pipeline) release(ctx context.Context, log logrus.FieldLogger, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		p.metrics.RecordCleanupFailure(ctx)
		log.WithError(err).WithField("dir", dir).Warn("resource cleanup warning: temp audio not removed")
		return
	}
	log.WithField("dir", dir).Debug("temp audio released")
}

func zeroSequence(m types.Modality) types.Sequence {
	frames := make([][]float64, types.SequenceLength)
	for i := range frames {
		frames[i] = make([]float64, types.FusionWidth)
	}
	return types.Sequence{Modality: m, Frames: frames}
}

func shape(s types.Sequence) string {
	sh := s.Shape()
	return fmt.Sprintf("[%d %d]", sh[0], sh[1])
}
