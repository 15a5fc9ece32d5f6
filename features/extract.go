package features

import (
	"context"
	"fmt"
	"math"

	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

// VideoExtractor decodes frames at a small fixed resolution, aligns them by
// repeating the last frame or subsampling, then projects.
type VideoExtractor struct {
	decoder       ports.VideoDecoder
	proj          *Projector
	width, height int
}

func NewVideoExtractor(d ports.VideoDecoder, proj *Projector, width, height int) *VideoExtractor {
	return &VideoExtractor{decoder: d, proj: proj, width: width, height: height}
}

func (e *VideoExtractor) Extract(ctx context.Context, path string) (types.Sequence, error) {
	frames, err := e.decoder.DecodeFrames(ctx, path, e.width, e.height)
	if err != nil {
		return fail(types.ModalityVideo, err)
	}
	aligned, err := AlignRepeat(frames, types.SequenceLength)
	if err != nil {
		return fail(types.ModalityVideo, err)
	}
	return finish(types.ModalityVideo, aligned, e.proj)
}

// AudioExtractor computes MFCCs over the whole waveform, zero-pads or
// truncates them, then projects.
type AudioExtractor struct {
	mfcc *MFCC
	rate int
	proj *Projector
}

func NewAudioExtractor(cfg MFCCConfig, proj *Projector) *AudioExtractor {
	return &AudioExtractor{mfcc: NewMFCC(cfg), rate: cfg.SampleRate, proj: proj}
}

func (e *AudioExtractor) Extract(_ context.Context, track types.AudioTrack) (types.Sequence, error) {
	samples, err := media.Resample(track.Mono(), track.SampleRate, e.rate)
	if err != nil {
		return fail(types.ModalityAudio, err)
	}
	coeffs, err := e.mfcc.Compute(samples)
	if err != nil {
		return fail(types.ModalityAudio, err)
	}
	aligned, err := AlignZero(coeffs, types.SequenceLength)
	if err != nil {
		return fail(types.ModalityAudio, err)
	}
	return finish(types.ModalityAudio, aligned, e.proj)
}

// TextExtractor embeds the transcript with the contextual encoder, capped
// at the sequence length, and projects the token embeddings.
type TextExtractor struct {
	encoder ports.TextEncoder
	proj    *Projector
}

func NewTextExtractor(enc ports.TextEncoder, proj *Projector) *TextExtractor {
	return &TextExtractor{encoder: enc, proj: proj}
}

func (e *TextExtractor) Extract(ctx context.Context, text string) (types.Sequence, error) {
	emb, err := e.encoder.Encode(ctx, text, types.SequenceLength)
	if err != nil {
		return fail(types.ModalityText, err)
	}
	aligned, err := AlignZero(emb, types.SequenceLength)
	if err != nil {
		return fail(types.ModalityText, err)
	}
	return finish(types.ModalityText, aligned, e.proj)
}

func finish(m types.Modality, aligned [][]float64, proj *Projector) (types.Sequence, error) {
	out, err := proj.Project(aligned)
	if err != nil {
		return fail(m, err)
	}
	for i, row := range out {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fail(m, fmt.Errorf("non-finite value at [%d,%d]", i, j))
			}
		}
	}
	return types.Sequence{Modality: m, Frames: out}, nil
}

func fail(m types.Modality, err error) (types.Sequence, error) {
	return types.Sequence{}, &types.FeatureExtractionError{Modality: m, Err: err}
}
