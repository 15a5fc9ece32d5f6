// Package scoring turns raw fusion classifier output into a labelled
// prediction.
package scoring

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/types"
)

// DefaultSkewThreshold is the binary-model probability above which the two
// classes are swapped.
const DefaultSkewThreshold = 0.95

// MaxReported caps how many labels appear in Prediction.Probabilities.
const MaxReported = 6

var (
	binaryLabels = []string{"negative", "positive"}
	sixWayLabels = []string{"angry", "happy", "sad", "neutral", "excited", "frustrated"}
)

// Labels returns the class names for a classifier with c outputs.
func Labels(c int) []string {
	switch c {
	case 2:
		return binaryLabels
	case 6:
		return sixWayLabels
	}
	out := make([]string, c)
	for i := range out {
		out[i] = fmt.Sprintf("emotion_%d", i)
	}
	return out
}

type PostProcessor struct {
	skew float64
	log  logrus.FieldLogger
}

func New(skewThreshold float64, log logrus.FieldLogger) *PostProcessor {
	if skewThreshold <= 0 {
		skewThreshold = DefaultSkewThreshold
	}
	if log == nil {
		log = observe.Discard()
	}
	return &PostProcessor{skew: skewThreshold, log: log}
}

// Distribution pools scores over time, clips them to [0, 1] and
// renormalizes. Binary outputs past the skew threshold are swapped. It
// fails with types.ErrPostProcessing on empty, non-finite or zero-sum
// input.
func (p *PostProcessor) Distribution(s types.Scores) ([]float64, error) {
	c := s.Classes()
	if c == 0 {
		return nil, fmt.Errorf("%w: no scores", types.ErrPostProcessing)
	}

	probs := make([]float64, c)
	for t, row := range s.Values {
		if len(row) != c {
			return nil, fmt.Errorf("%w: row %d has %d classes, want %d", types.ErrPostProcessing, t, len(row), c)
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite score at [%d,%d]", types.ErrPostProcessing, t, i)
			}
			probs[i] += v
		}
	}

	var sum float64
	for i := range probs {
		probs[i] = clip(probs[i] / float64(len(s.Values)))
		sum += probs[i]
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: scores sum to zero after clipping", types.ErrPostProcessing)
	}
	for i := range probs {
		probs[i] /= sum
	}

	if c == 2 && (probs[0] > p.skew || probs[1] > p.skew) {
		p.log.WithFields(logrus.Fields{
			"raw":       fmt.Sprintf("%.4f", probs),
			"threshold": p.skew,
		}).Debug("binary output past skew threshold, swapping classes")
		probs[0], probs[1] = probs[1], probs[0]
	}
	return probs, nil
}

// Predict builds the final result for transcript text.
func (p *PostProcessor) Predict(s types.Scores, text string) (types.Prediction, error) {
	probs, err := p.Distribution(s)
	if err != nil {
		return types.Prediction{}, err
	}
	labels := Labels(len(probs))

	best := 0
	for i, v := range probs {
		if v > probs[best] {
			best = i
		}
	}

	reported := make(map[string]float64, min(MaxReported, len(probs)))
	for i := 0; i < len(probs) && i < MaxReported; i++ {
		reported[labels[i]] = probs[i]
	}

	return types.Prediction{
		Emotion:       labels[best],
		Confidence:    probs[best],
		Text:          text,
		Probabilities: reported,
	}, nil
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
