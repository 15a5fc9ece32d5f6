// Package whisper runs whisper.cpp in-process through its cgo bindings.
// libwhisper.a and whisper.h must be reachable through LIBRARY_PATH and
// C_INCLUDE_PATH at build time.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/speech"
)

var _ ports.OfflineEngine = (*Engine)(nil)

const (
	sampleRate     = 16000
	defaultSegment = 30 * time.Second
)

// Engine shares one loaded model between recognizers. Each decode gets a
// fresh whisper context.
type Engine struct {
	model    whisperlib.Model
	language string
	segment  time.Duration

	mu sync.Mutex
}

func New(modelPath, language string) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &Engine{model: model, language: language, segment: defaultSegment}, nil
}

func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

func (e *Engine) NewRecognizer(ctx context.Context, rate int) (ports.Recognizer, error) {
	if rate != sampleRate {
		return nil, fmt.Errorf("whisper: sample rate %d unsupported, want %d", rate, sampleRate)
	}
	return speech.NewSegmentRecognizer(rate, e.segment, func(samples []float32) (string, error) {
		return e.decode(ctx, samples)
	}), nil
}

func (e *Engine) decode(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", e.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
