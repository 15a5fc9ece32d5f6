// Package fusion runs the fusion classifier through whichever calling
// convention it accepts.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

const component = "fusion"

// Strategy names accepted in models.strategies.
const (
	Direct    = "direct"
	Signature = "signature"
	Session   = "session"
)

type Strategy struct {
	Name    string
	Predict func(ctx context.Context, in types.FusionInput) (types.Scores, error)
}

// Strategies builds the named calling conventions of c in order.
func Strategies(c ports.FusionClassifier, signature string, names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		switch n {
		case Direct:
			out = append(out, Strategy{Name: n, Predict: c.PredictDirect})
		case Signature:
			out = append(out, Strategy{Name: n, Predict: func(ctx context.Context, in types.FusionInput) (types.Scores, error) {
				return c.PredictSignature(ctx, in, signature)
			}})
		case Session:
			out = append(out, Strategy{Name: n, Predict: c.PredictSession})
		default:
			return nil, fmt.Errorf("fusion: unknown strategy %q", n)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("fusion: no strategies configured")
	}
	return out, nil
}

type Invoker struct {
	strategies []Strategy
	log        logrus.FieldLogger
	metrics    *observe.Metrics
}

func NewInvoker(log logrus.FieldLogger, m *observe.Metrics, strategies ...Strategy) *Invoker {
	if log == nil {
		log = observe.Discard()
	}
	return &Invoker{strategies: strategies, log: log, metrics: m}
}

// Invoke returns the scores of the first strategy that succeeds. When all
// fail the error wraps types.ErrInferenceInvocation and every cause.
func (iv *Invoker) Invoke(ctx context.Context, in types.FusionInput) (types.Scores, error) {
	log := observe.WithComponent(iv.log, component)
	errs := []error{types.ErrInferenceInvocation}
	for _, s := range iv.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		scores, err := s.Predict(ctx, in)
		if err == nil && len(scores.Values) == 0 {
			err = errors.New("empty output")
		}
		if err == nil {
			iv.metrics.RecordAttempt(ctx, component, s.Name, observe.StatusOK)
			log.WithFields(logrus.Fields{
				"strategy": s.Name,
				"shape":    fmt.Sprintf("[%d %d]", len(scores.Values), scores.Classes()),
				"took":     time.Since(start).Round(time.Millisecond),
			}).Debug("fusion classifier invoked")
			return scores, nil
		}
		iv.metrics.RecordAttempt(ctx, component, s.Name, observe.StatusError)
		log.WithField("strategy", s.Name).WithError(err).Warn("fusion strategy failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return types.Scores{}, errors.Join(errs...)
}
