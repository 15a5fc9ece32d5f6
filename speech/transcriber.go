// Package speech turns a demuxed audio track into a transcript by trying
// an ordered list of recognition strategies.
package speech

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/types"
)

const component = "speech"

// Strategy is one way of producing a transcript. A nil error ends the
// chain, as does types.ErrUnrecognized (the audio was heard but held no
// words). Any other error hands over to the next strategy.
type Strategy interface {
	Name() string
	Transcribe(ctx context.Context, track types.AudioTrack, dir string) (string, error)
}

type Transcript struct {
	Text   string
	Engine string
	// Degraded is set when every strategy failed.
	Degraded bool
}

type Transcriber struct {
	strategies []Strategy
	log        logrus.FieldLogger
	metrics    *observe.Metrics
}

func NewTranscriber(log logrus.FieldLogger, m *observe.Metrics, strategies ...Strategy) *Transcriber {
	if log == nil {
		log = observe.Discard()
	}
	return &Transcriber{strategies: strategies, log: log, metrics: m}
}

func (t *Transcriber) Strategies() []string {
	out := make([]string, len(t.strategies))
	for i, s := range t.strategies {
		out[i] = s.Name()
	}
	return out
}

// Transcribe never fails: when no strategy produces text the transcript is
// empty and marked degraded. dir receives any temporary files, which are
// removed before Transcribe returns.
func (t *Transcriber) Transcribe(ctx context.Context, track types.AudioTrack, dir string) Transcript {
	log := observe.WithComponent(t.log, component)
	for _, s := range t.strategies {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		text, err := s.Transcribe(ctx, track, dir)
		switch {
		case err == nil:
			t.metrics.RecordAttempt(ctx, component, s.Name(), observe.StatusOK)
			log.WithFields(logrus.Fields{
				"engine": s.Name(),
				"chars":  len(text),
				"took":   time.Since(start).Round(time.Millisecond),
			}).Debug("transcribed")
			return Transcript{Text: text, Engine: s.Name()}
		case errors.Is(err, types.ErrUnrecognized):
			t.metrics.RecordAttempt(ctx, component, s.Name(), observe.StatusEmpty)
			log.WithField("engine", s.Name()).Info("speech not recognized")
			return Transcript{Engine: s.Name()}
		default:
			t.metrics.RecordAttempt(ctx, component, s.Name(), observe.StatusError)
			log.WithField("engine", s.Name()).WithError(err).Warn("speech engine failed, trying next")
		}
	}

	t.metrics.RecordDegraded(ctx)
	log.WithField("engines", t.Strategies()).Warn("transcription degraded: no engine produced a transcript")
	return Transcript{Degraded: true}
}
