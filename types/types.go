package types

import "time"

const (
	SequenceLength = 110 // frames per modality fed to the classifier
	FusionWidth    = 100 // per-frame width after projection

	NoSpeechSentinel = "no speech detected"
)

type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityText  Modality = "text"
)

type VideoAsset struct {
	Path       string
	Duration   time.Duration
	FrameRate  float64
	FrameCount int
	Width      int
	Height     int
	HasVideo   bool
	HasAudio   bool
}

// AudioTrack is decoded audio backed by a temporary WAV file.
// Samples are interleaved when Channels > 1.
type AudioTrack struct {
	Path       string
	SampleRate int
	Channels   int
	Samples    []float32
}

func (a AudioTrack) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	frames := len(a.Samples) / a.Channels
	return time.Duration(float64(frames) / float64(a.SampleRate) * float64(time.Second))
}

// Mono returns the track down-mixed to a single channel.
func (a AudioTrack) Mono() []float32 {
	if a.Channels <= 1 {
		return a.Samples
	}
	n := len(a.Samples) / a.Channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for ch := 0; ch < a.Channels; ch++ {
			sum += a.Samples[i*a.Channels+ch]
		}
		out[i] = sum / float32(a.Channels)
	}
	return out
}

type Sequence struct {
	Modality Modality
	Frames   [][]float64
}

// Width is the per-frame width, 0 for an empty sequence.
func (s Sequence) Width() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return len(s.Frames[0])
}

func (s Sequence) Shape() [2]int { return [2]int{len(s.Frames), s.Width()} }

type FusionInput struct {
	Audio Sequence
	Video Sequence
	Text  Sequence
	Mask  []float64
}

// NewFusionInput bundles the projected sequences with an all-ones mask.
func NewFusionInput(audio, video, text Sequence) FusionInput {
	mask := make([]float64, SequenceLength)
	for i := range mask {
		mask[i] = 1
	}
	return FusionInput{Audio: audio, Video: video, Text: text, Mask: mask}
}

// Scores is raw classifier output: a single row [C] or one row per
// timestep [T, C].
type Scores struct {
	Values [][]float64
}

func (s Scores) Classes() int {
	if len(s.Values) == 0 {
		return 0
	}
	return len(s.Values[0])
}

type Prediction struct {
	Emotion       string             `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Text          string             `json:"text"`
	Probabilities map[string]float64 `json:"probabilities"`
}
