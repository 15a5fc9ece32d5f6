package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

// OfflineRate is the sample rate local recognizers are fed with.
const OfflineRate = 16000

const wavHeaderSize = 44

// Offline streams the track through a local recognizer in fixed-size
// chunks. Text from completed utterances and the final flush is joined
// with single spaces.
type Offline struct {
	name         string
	engine       ports.OfflineEngine
	chunkSamples int
}

func NewOffline(name string, engine ports.OfflineEngine, chunkSamples int) *Offline {
	if chunkSamples <= 0 {
		chunkSamples = 4000
	}
	return &Offline{name: name, engine: engine, chunkSamples: chunkSamples}
}

func (o *Offline) Name() string { return o.name }

func (o *Offline) Transcribe(ctx context.Context, track types.AudioTrack, dir string) (string, error) {
	samples, err := media.Resample(track.Mono(), track.SampleRate, OfflineRate)
	if err != nil {
		return "", fmt.Errorf("%s: convert to %d Hz: %w", o.name, OfflineRate, err)
	}

	f, err := os.CreateTemp(dir, "offline-*.wav")
	if err != nil {
		return "", fmt.Errorf("%s: temp wav: %w", o.name, err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(media.EncodeWAV(media.Float32ToPCM16(samples), OfflineRate, 1)); err != nil {
		f.Close()
		return "", fmt.Errorf("%s: write temp wav: %w", o.name, err)
	}
	if _, err := f.Seek(wavHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return "", err
	}
	defer f.Close()

	rec, err := o.engine.NewRecognizer(ctx, OfflineRate)
	if err != nil {
		return "", fmt.Errorf("%s: recognizer: %w", o.name, err)
	}

	var parts []string
	buf := make([]byte, o.chunkSamples*2)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			done, err := rec.AcceptWaveform(buf[:n])
			if err != nil {
				return "", fmt.Errorf("%s: accept waveform: %w", o.name, err)
			}
			if done {
				text, err := rec.Result()
				if err != nil {
					return "", fmt.Errorf("%s: result: %w", o.name, err)
				}
				parts = appendText(parts, text)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("%s: read temp wav: %w", o.name, rerr)
		}
	}

	final, err := rec.FinalResult()
	if err != nil {
		return "", fmt.Errorf("%s: final result: %w", o.name, err)
	}
	parts = appendText(parts, final)
	return strings.Join(parts, " "), nil
}

func appendText(parts []string, text string) []string {
	if t := strings.TrimSpace(text); t != "" {
		return append(parts, t)
	}
	return parts
}
