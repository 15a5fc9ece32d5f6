package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Service struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"` // seconds
}
type Services struct {
	ASR     Service `yaml:"asr"`
	Encoder Service `yaml:"encoder"`
	Fusion  Service `yaml:"fusion"`
}
type Audio struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Format     string `yaml:"format"`
	Codec      string `yaml:"codec"`
}
type Video struct {
	FrameWidth  int `yaml:"frame_width"`
	FrameHeight int `yaml:"frame_height"`
}
type Offline struct {
	Engine       string `yaml:"engine"` // whisper, whisper-cli or none
	Model        string `yaml:"model"`
	Bin          string `yaml:"bin"`
	Language     string `yaml:"language"`
	ChunkSamples int    `yaml:"chunk_samples"`
}
type OpenAI struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}
type Speech struct {
	Offline       Offline  `yaml:"offline"`
	Online        []string `yaml:"online"` // tried in order: asr, openai
	OpenAI        OpenAI   `yaml:"openai"`
	CalibrationMs int      `yaml:"calibration_ms"`
}
type Models struct {
	NumClasses    int      `yaml:"num_classes"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	Name          string   `yaml:"name"`
	Signature     string   `yaml:"signature"`
	Strategies    []string `yaml:"strategies"` // direct, signature, session
}
type Projection struct {
	Mode string `yaml:"mode"` // fixed or per_call
	Seed uint64 `yaml:"seed"`
}
type Scoring struct {
	SkewThreshold float64 `yaml:"skew_threshold"`
}
type Timeouts struct {
	Probe      int `yaml:"probe"`
	Extract    int `yaml:"extract"`
	Transcribe int `yaml:"transcribe"`
	Encode     int `yaml:"encode"`
	Invoke     int `yaml:"invoke"`
}
type Root struct {
	Pipeline struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		LogLvl    string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"pipeline"`
	Audio      Audio      `yaml:"audio"`
	Video      Video      `yaml:"video"`
	Services   Services   `yaml:"services"`
	Speech     Speech     `yaml:"speech"`
	Models     Models     `yaml:"models"`
	Projection Projection `yaml:"projection"`
	Scoring    Scoring    `yaml:"scoring"`
	Timeouts   Timeouts   `yaml:"timeouts"`
	Paths      struct {
		Temp    string `yaml:"temp"`
		Outputs string `yaml:"outputs"`
		FFmpeg  string `yaml:"ffmpeg"`
		FFprobe string `yaml:"ffprobe"`
	} `yaml:"paths"`
}

func Default() *Root {
	var c Root
	c.Pipeline.Name = "edmo-emotion"
	c.Pipeline.Version = "0.1.0"
	c.Pipeline.LogLvl = "info"
	c.Pipeline.LogFormat = "text"
	c.Audio = Audio{SampleRate: 16000, Channels: 1, Format: "wav", Codec: "pcm_s16le"}
	c.Video = Video{FrameWidth: 64, FrameHeight: 64}
	c.Services = Services{
		ASR:     Service{Timeout: 60},
		Encoder: Service{Timeout: 60},
		Fusion:  Service{Timeout: 60},
	}
	c.Speech = Speech{
		Offline:       Offline{Engine: "none", Language: "en", ChunkSamples: 4000},
		Online:        []string{"asr"},
		OpenAI:        OpenAI{Model: "whisper-1"},
		CalibrationMs: 1000,
	}
	c.Models = Models{
		NumClasses:    6,
		MaxConcurrent: 1,
		Name:          "multimodal",
		Signature:     "serving_default",
		Strategies:    []string{"direct", "signature", "session"},
	}
	c.Projection = Projection{Mode: "fixed"}
	c.Scoring = Scoring{SkewThreshold: 0.95}
	c.Timeouts = Timeouts{Probe: 30, Extract: 300, Transcribe: 300, Encode: 60, Invoke: 120}
	c.Paths.Temp = os.TempDir()
	c.Paths.Outputs = "outputs"
	c.Paths.FFmpeg = "ffmpeg"
	c.Paths.FFprobe = "ffprobe"
	return &c
}

// Load reads path, or the first config found in the CONFIG_ENV guess list
// when path is empty. Values absent from the file keep their defaults.
func Load(path string) (*Root, error) {
	guess := []string{path}
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		guess = []string{
			filepath.Join("config", env, "config.yaml"),
			filepath.Join("src", "shared", "config.yaml"),
		}
	}
	for _, p := range guess {
		f, err := os.Open(p)
		if err != nil {
			if path == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: open %q: %w", p, err)
		}
		defer f.Close()
		cfg, err := Decode(f)
		if err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", p, err)
		}
		return cfg, nil
	}
	return Default(), nil
}

func Decode(r io.Reader) (*Root, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

func (c *Root) Validate() error {
	var errs []error
	if c.Models.NumClasses < 1 {
		errs = append(errs, fmt.Errorf("models.num_classes must be > 0"))
	}
	if c.Models.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("models.max_concurrent must be > 0"))
	}
	if len(c.Models.Strategies) == 0 {
		errs = append(errs, fmt.Errorf("models.strategies must not be empty"))
	}
	for _, s := range c.Models.Strategies {
		switch s {
		case "direct", "signature", "session":
		default:
			errs = append(errs, fmt.Errorf("models.strategies: unknown strategy %q", s))
		}
	}
	for _, s := range c.Speech.Online {
		switch s {
		case "asr", "openai":
		default:
			errs = append(errs, fmt.Errorf("speech.online: unknown engine %q", s))
		}
	}
	switch c.Speech.Offline.Engine {
	case "", "none", "whisper", "whisper-cli":
	default:
		errs = append(errs, fmt.Errorf("speech.offline.engine: unknown engine %q", c.Speech.Offline.Engine))
	}
	if c.Speech.Offline.ChunkSamples < 1 {
		errs = append(errs, fmt.Errorf("speech.offline.chunk_samples must be > 0"))
	}
	switch c.Projection.Mode {
	case "fixed", "per_call":
	default:
		errs = append(errs, fmt.Errorf("projection.mode %q is invalid; valid values: fixed, per_call", c.Projection.Mode))
	}
	if c.Scoring.SkewThreshold <= 0.5 || c.Scoring.SkewThreshold > 1 {
		errs = append(errs, fmt.Errorf("scoring.skew_threshold must be in (0.5, 1]"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be > 0"))
	}
	if c.Video.FrameWidth <= 0 || c.Video.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("video frame size must be > 0"))
	}
	if c.Services.Fusion.URL == "" {
		errs = append(errs, fmt.Errorf("services.fusion.url is required"))
	}
	if c.Services.Encoder.URL == "" {
		errs = append(errs, fmt.Errorf("services.encoder.url is required"))
	}
	return errors.Join(errs...)
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }

func DurMillis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
