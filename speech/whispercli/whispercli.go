// Package whispercli runs the whisper.cpp command line binary as an
// offline speech engine.
package whispercli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/speech"
)

var _ ports.OfflineEngine = (*Adapter)(nil)

const defaultSegment = 30 * time.Second

type Adapter struct {
	bin      string
	model    string
	language string
	tmp      string
	segment  time.Duration
}

func New(binPath, modelPath, language, tmpDir string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	if language == "" {
		language = "en"
	}
	return &Adapter{bin: binPath, model: modelPath, language: language, tmp: tmpDir, segment: defaultSegment}
}

func (a *Adapter) NewRecognizer(ctx context.Context, rate int) (ports.Recognizer, error) {
	return speech.NewSegmentRecognizer(rate, a.segment, func(samples []float32) (string, error) {
		return a.run(ctx, samples, rate)
	}), nil
}

// output is the subset of whisper.cpp's -oj report we read.
type output struct {
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

func (a *Adapter) run(ctx context.Context, samples []float32, rate int) (string, error) {
	dir, err := os.MkdirTemp(a.tmp, "whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "segment.wav")
	if err := media.WriteWAV(wav, samples, rate, 1); err != nil {
		return "", err
	}
	outPrefix := filepath.Join(dir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wav,
		"-l", a.language,
		"-oj",
		"-of", outPrefix,
		"-np",
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return "", err
	}
	return parseOutput(jb)
}

func parseOutput(b []byte) (string, error) {
	var out output
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("whisper.cpp output: %w", err)
	}
	var parts []string
	for _, seg := range out.Transcription {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
