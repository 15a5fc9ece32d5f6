package speech

import (
	"time"

	"github.com/maastricht-university/edmo-emotion/media"
)

// DecodeFunc turns a mono float32 segment into text.
type DecodeFunc func(samples []float32) (string, error)

// SegmentRecognizer adapts whole-segment decoders such as whisper.cpp to
// the streaming recognizer contract. PCM is buffered until maxSegment is
// reached; that counts as a completed utterance.
type SegmentRecognizer struct {
	decode     DecodeFunc
	maxSamples int
	buf        []float32
	pending    string
}

func NewSegmentRecognizer(sampleRate int, maxSegment time.Duration, decode DecodeFunc) *SegmentRecognizer {
	n := int(maxSegment.Seconds() * float64(sampleRate))
	if n <= 0 {
		n = 30 * sampleRate
	}
	return &SegmentRecognizer{decode: decode, maxSamples: n}
}

func (r *SegmentRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	r.buf = append(r.buf, media.PCM16ToFloat32(pcm)...)
	if len(r.buf) < r.maxSamples {
		return false, nil
	}
	text, err := r.flush()
	if err != nil {
		return false, err
	}
	r.pending = text
	return true, nil
}

// Result returns the text of the last completed segment once.
func (r *SegmentRecognizer) Result() (string, error) {
	text := r.pending
	r.pending = ""
	return text, nil
}

func (r *SegmentRecognizer) FinalResult() (string, error) {
	if len(r.buf) == 0 {
		return "", nil
	}
	return r.flush()
}

func (r *SegmentRecognizer) flush() (string, error) {
	segment := r.buf
	r.buf = nil
	return r.decode(segment)
}
