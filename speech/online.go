package speech

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

// Ambient calibration parameters. Energies are RMS on the int16 scale.
const (
	initialEnergyThreshold = 300.0
	energyDamping          = 0.15
	energyRatio            = 1.5
	calibrationChunk       = 1024
)

// Online submits the track to a network recognizer after listening to
// the leading calibration window for ambient noise. The calibration
// window is not part of the submitted audio.
type Online struct {
	name        string
	engine      ports.OnlineEngine
	calibration time.Duration
	log         logrus.FieldLogger
}

func NewOnline(name string, engine ports.OnlineEngine, calibration time.Duration, log logrus.FieldLogger) *Online {
	if log == nil {
		log = observe.Discard()
	}
	return &Online{name: name, engine: engine, calibration: calibration, log: log}
}

func (o *Online) Name() string { return o.name }

func (o *Online) Transcribe(ctx context.Context, track types.AudioTrack, dir string) (string, error) {
	mono := track.Mono()
	skip := int(o.calibration.Seconds() * float64(track.SampleRate))
	if skip > len(mono) {
		skip = len(mono)
	}
	threshold := AmbientThreshold(mono[:skip], track.SampleRate)
	o.log.WithFields(logrus.Fields{
		"engine":           o.name,
		"energy_threshold": math.Round(threshold),
	}).Debug("adjusted for ambient noise")

	rest := mono[skip:]
	if len(rest) == 0 {
		return "", types.ErrUnrecognized
	}

	f, err := os.CreateTemp(dir, "online-*.wav")
	if err != nil {
		return "", fmt.Errorf("%s: temp wav: %w", o.name, err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := media.WriteWAV(path, rest, track.SampleRate, 1); err != nil {
		return "", fmt.Errorf("%s: write temp wav: %w", o.name, err)
	}

	text, err := o.engine.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.ErrUnrecognized
	}
	return text, nil
}

// AmbientThreshold estimates the energy level separating speech from
// background noise, moving an initial guess towards 1.5x the observed
// energy of each chunk with time-based damping.
func AmbientThreshold(samples []float32, sampleRate int) float64 {
	threshold := initialEnergyThreshold
	if sampleRate <= 0 {
		return threshold
	}
	secondsPerChunk := float64(calibrationChunk) / float64(sampleRate)
	damping := math.Pow(energyDamping, secondsPerChunk)
	for i := 0; i+calibrationChunk <= len(samples); i += calibrationChunk {
		energy := rms(samples[i : i+calibrationChunk])
		threshold = threshold*damping + energy*energyRatio*(1-damping)
	}
	return threshold
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) * 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
