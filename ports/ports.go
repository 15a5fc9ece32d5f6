package ports

import (
	"context"

	"github.com/maastricht-university/edmo-emotion/types"
)

type VideoDecoder interface {
	Probe(ctx context.Context, path string) (types.VideoAsset, error)
	ExtractAudio(ctx context.Context, path, outWav string, sampleRate int) error
	DecodeFrames(ctx context.Context, path string, width, height int) ([][]float64, error)
}

// Recognizer is a streaming decoder fed with 16 kHz mono PCM16LE chunks.
// AcceptWaveform reports whether the chunk completed an utterance, whose
// text is then available from Result.
type Recognizer interface {
	AcceptWaveform(pcm []byte) (bool, error)
	Result() (string, error)
	FinalResult() (string, error)
}

// OfflineEngine runs recognition locally. The recognizer is bound to ctx
// for its whole lifetime.
type OfflineEngine interface {
	NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error)
}

// OnlineEngine submits a whole WAV file to a network recognizer. It returns
// types.ErrUnrecognized when the service understood nothing.
type OnlineEngine interface {
	Recognize(ctx context.Context, wavPath string) (string, error)
}

type TextEncoder interface {
	Encode(ctx context.Context, text string, maxLen int) ([][]float64, error)
}

// FusionClassifier exposes the calling conventions of the fusion model.
type FusionClassifier interface {
	PredictDirect(ctx context.Context, in types.FusionInput) (types.Scores, error)
	PredictSignature(ctx context.Context, in types.FusionInput, signature string) (types.Scores, error)
	PredictSession(ctx context.Context, in types.FusionInput) (types.Scores, error)
}
