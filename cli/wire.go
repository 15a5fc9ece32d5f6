package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/features"
	"github.com/maastricht-university/edmo-emotion/fusion"
	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/scoring"
	"github.com/maastricht-university/edmo-emotion/speech"
	"github.com/maastricht-university/edmo-emotion/speech/whispercli"
	"github.com/maastricht-university/edmo-emotion/types"
)

const defaultWhisperBin = "whisper-cli"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// build assembles the pipeline from cfg. The returned closer releases
// engines holding native resources.
func build(cfg *config.Root, log *logrus.Logger, m *observe.Metrics) (*orchestrator.Pipeline, io.Closer, error) {
	decoder := media.NewFFmpeg(cfg.Paths.FFmpeg, cfg.Paths.FFprobe)

	strategies, closer, err := speechStrategies(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if len(strategies) == 0 {
		log.Warn("no speech engines configured, every clip will use the no-speech sentinel")
	}
	transcriber := speech.NewTranscriber(log, m, strategies...)

	mode := features.ProjectionMode(cfg.Projection.Mode)
	projector := func() *features.Projector {
		return features.NewProjector(types.FusionWidth, mode, cfg.Projection.Seed)
	}

	encoder := clients.NewEncoder(clients.NewHTTP(config.DurSeconds(cfg.Services.Encoder.Timeout)), cfg.Services.Encoder.URL)
	classifier := clients.NewFusion(clients.NewHTTP(config.DurSeconds(cfg.Services.Fusion.Timeout)), cfg.Services.Fusion.URL, cfg.Models.Name)
	fs, err := fusion.Strategies(classifier, cfg.Models.Signature, cfg.Models.Strategies)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	p, err := orchestrator.New(orchestrator.Deps{
		Decoder:     decoder,
		Transcriber: transcriber,
		Video:       features.NewVideoExtractor(decoder, projector(), cfg.Video.FrameWidth, cfg.Video.FrameHeight),
		Audio:       features.NewAudioExtractor(features.DefaultMFCCConfig(), projector()),
		Text:        features.NewTextExtractor(encoder, projector()),
		Invoker:     fusion.NewInvoker(log, m, fs...),
		Scorer:      scoring.New(cfg.Scoring.SkewThreshold, observe.WithComponent(log, "scoring")),
		Log:         observe.WithComponent(log, "pipeline"),
		Metrics:     m,
	}, orchestrator.Options{
		TempDir:       cfg.Paths.Temp,
		SampleRate:    cfg.Audio.SampleRate,
		MaxConcurrent: int64(cfg.Models.MaxConcurrent),
		NumClasses:    cfg.Models.NumClasses,
		Timeouts: orchestrator.Timeouts{
			Probe:      config.DurSeconds(cfg.Timeouts.Probe),
			Extract:    config.DurSeconds(cfg.Timeouts.Extract),
			Transcribe: config.DurSeconds(cfg.Timeouts.Transcribe),
			Encode:     config.DurSeconds(cfg.Timeouts.Encode),
			Invoke:     config.DurSeconds(cfg.Timeouts.Invoke),
		},
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return p, closer, nil
}

// speechStrategies returns the offline engine first, then the online
// engines in configured order. A missing offline model is logged and
// skipped so the online engines still run.
func speechStrategies(cfg *config.Root, log *logrus.Logger) ([]speech.Strategy, io.Closer, error) {
	var out []speech.Strategy
	var closer io.Closer = nopCloser{}

	off := cfg.Speech.Offline
	if off.Engine != "" && off.Engine != "none" {
		engine, c, err := offlineEngine(off, cfg.Paths.Temp)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.WithField("model", off.Model).Warn("offline speech model missing, skipping offline engine")
		case err != nil:
			return nil, nil, err
		default:
			closer = c
			out = append(out, speech.NewOffline(off.Engine, engine, off.ChunkSamples))
		}
	}

	calibration := config.DurMillis(cfg.Speech.CalibrationMs)
	for _, name := range cfg.Speech.Online {
		var engine ports.OnlineEngine
		switch name {
		case "asr":
			if cfg.Services.ASR.URL == "" {
				log.Warn("services.asr.url not set, skipping asr engine")
				continue
			}
			engine = clients.NewASR(clients.NewHTTP(config.DurSeconds(cfg.Services.ASR.Timeout)), cfg.Services.ASR.URL)
		case "openai":
			oa := cfg.Speech.OpenAI
			h := clients.NewHTTP(config.DurSeconds(cfg.Services.ASR.Timeout))
			e, err := speech.NewOpenAI(oa.APIKey, oa.BaseURL, oa.Model, h.Client())
			if err != nil {
				log.WithError(err).Warn("skipping openai engine")
				continue
			}
			log.WithField("api_key", observe.SanitizeKey(oa.APIKey)).Debug("openai engine enabled")
			engine = e
		default:
			return nil, nil, fmt.Errorf("speech: unknown online engine %q", name)
		}
		out = append(out, speech.NewOnline(name, engine, calibration, observe.WithComponent(log, "speech")))
	}
	return out, closer, nil
}

func offlineEngine(off config.Offline, tmp string) (ports.OfflineEngine, io.Closer, error) {
	if _, err := os.Stat(off.Model); err != nil {
		return nil, nil, fmt.Errorf("offline model %q: %w", off.Model, err)
	}
	switch off.Engine {
	case "whisper":
		return openWhisper(off.Model, off.Language)
	case "whisper-cli":
		bin := off.Bin
		if bin == "" {
			bin = defaultWhisperBin
		}
		return whispercli.New(bin, off.Model, off.Language, tmp), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("speech: unknown offline engine %q", off.Engine)
}
