package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/speech"
	"github.com/maastricht-university/edmo-emotion/types"
)

type Transcriber interface {
	Transcribe(ctx context.Context, track types.AudioTrack, dir string) speech.Transcript
}

type VideoExtractor interface {
	Extract(ctx context.Context, path string) (types.Sequence, error)
}

type AudioExtractor interface {
	Extract(ctx context.Context, track types.AudioTrack) (types.Sequence, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, text string) (types.Sequence, error)
}

type Invoker interface {
	Invoke(ctx context.Context, in types.FusionInput) (types.Scores, error)
}

type Scorer interface {
	Predict(s types.Scores, text string) (types.Prediction, error)
}

type Deps struct {
	Decoder     ports.VideoDecoder
	Transcriber Transcriber
	Video       VideoExtractor
	Audio       AudioExtractor
	Text        TextExtractor
	Invoker     Invoker
	Scorer      Scorer

	Log     logrus.FieldLogger
	Metrics *observe.Metrics
}

type Timeouts struct {
	Probe      time.Duration
	Extract    time.Duration
	Transcribe time.Duration
	Encode     time.Duration
	Invoke     time.Duration
}

type Options struct {
	// TempDir holds one scratch directory per request.
	TempDir    string
	SampleRate int
	// MaxConcurrent bounds simultaneous text encoder and fusion classifier
	// calls across requests. 1 serializes them.
	MaxConcurrent int64
	// NumClasses is the configured classifier width, only used to warn
	// about a mismatching model.
	NumClasses int
	Timeouts   Timeouts
}

// Pipeline is built once at startup and shared by all requests.
type Pipeline struct {
	deps    Deps
	opts    Options
	gate    *semaphore.Weighted
	log     logrus.FieldLogger
	metrics *observe.Metrics
}

func New(d Deps, o Options) (*Pipeline, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"decoder":     d.Decoder != nil,
		"transcriber": d.Transcriber != nil,
		"video":       d.Video != nil,
		"audio":       d.Audio != nil,
		"text":        d.Text != nil,
		"invoker":     d.Invoker != nil,
		"scorer":      d.Scorer != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("orchestrator: missing dependencies: %s", strings.Join(missing, ", "))
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = 1
	}
	log := d.Log
	if log == nil {
		log = observe.Discard()
	}
	return &Pipeline{
		deps:    d,
		opts:    o,
		gate:    semaphore.NewWeighted(o.MaxConcurrent),
		log:     log,
		metrics: d.Metrics,
	}, nil
}

// request tracks the state machine of one Run.
type request struct {
	p       *Pipeline
	ctx     context.Context
	log     logrus.FieldLogger
	stage   Stage
	entered time.Time
}

func (r *request) enter(s Stage) {
	if r.stage != "" {
		r.p.metrics.RecordStage(r.ctx, string(r.stage), r.entered)
	}
	r.stage, r.entered = s, time.Now()
	r.log.WithField("stage", s).Debug("stage entered")
}

func (r *request) abort(err error) error {
	r.p.metrics.RecordStage(r.ctx, string(r.stage), r.entered)
	failed := r.stage
	r.stage = StageAborted
	r.p.metrics.RecordRequest(r.ctx, observe.StatusAborted)
	r.log.WithField("stage", failed).WithError(err).Error("request aborted")
	return &StageError{Stage: failed, Err: err}
}

// Run predicts the emotion expressed in the video at path. The decoded
// audio lives in a per-request scratch directory that is removed before
// Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, path string) (types.Prediction, error) {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	log := observe.WithRequestID(p.log, id).WithField("video", filepath.Base(path))
	r := &request{p: p, ctx: ctx, log: log}
	start := time.Now()

	r.enter(StageValidating)
	asset, err := p.validate(ctx, path)
	if err != nil {
		return types.Prediction{}, r.abort(err)
	}
	log.WithFields(logrus.Fields{
		"fps":         fmt.Sprintf("%.2f", asset.FrameRate),
		"frame_count": asset.FrameCount,
		"duration":    asset.Duration.Round(time.Millisecond),
	}).Info("video info")

	r.enter(StageExtractingAudio)
	dir := filepath.Join(p.opts.TempDir, "edmo-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return types.Prediction{}, r.abort(fmt.Errorf("create scratch dir: %w", err))
	}
	defer p.release(ctx, log, dir)

	track, err := p.extractAudio(ctx, path, dir)
	if err != nil {
		return types.Prediction{}, r.abort(err)
	}
	log.WithFields(logrus.Fields{
		"sample_rate": track.SampleRate,
		"seconds":     fmt.Sprintf("%.2f", track.Duration().Seconds()),
	}).Debug("audio extracted")

	r.enter(StageTranscribing)
	tctx, cancel := withTimeout(ctx, p.opts.Timeouts.Transcribe)
	tr := p.deps.Transcriber.Transcribe(tctx, track, dir)
	cancel()
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		log.Warn("no text could be extracted from audio")
		text = types.NoSpeechSentinel
	}
	log.WithFields(logrus.Fields{"engine": tr.Engine, "degraded": tr.Degraded}).Infof("extracted text: %q", text)

	r.enter(StageExtractingFeatures)
	in, err := p.extractFeatures(ctx, log, path, track, text)
	if err != nil {
		return types.Prediction{}, r.abort(err)
	}

	r.enter(StageInvoking)
	var scores types.Scores
	err = p.guarded(ctx, func() error {
		ictx, cancel := withTimeout(ctx, p.opts.Timeouts.Invoke)
		defer cancel()
		var err error
		scores, err = p.deps.Invoker.Invoke(ictx, in)
		return err
	})
	if err != nil {
		return types.Prediction{}, r.abort(err)
	}

	r.enter(StagePostProcessing)
	if c := scores.Classes(); p.opts.NumClasses > 0 && c != p.opts.NumClasses {
		log.WithFields(logrus.Fields{"classes": c, "configured": p.opts.NumClasses}).
			Warn("classifier output width differs from models.num_classes")
	}
	pred, err := p.deps.Scorer.Predict(scores, text)
	if err != nil {
		return types.Prediction{}, r.abort(err)
	}

	r.enter(StageDone)
	p.metrics.RecordRequest(ctx, observe.StatusOK)
	log.WithFields(logrus.Fields{
		"emotion":    pred.Emotion,
		"confidence": fmt.Sprintf("%.4f", pred.Confidence),
		"took":       time.Since(start).Round(time.Millisecond),
	}).Info("prediction completed")
	return pred, nil
}

func (p *Pipeline) validate(ctx context.Context, path string) (types.VideoAsset, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.VideoAsset{}, fmt.Errorf("%w: %s", types.ErrFileNotFound, path)
	}
	if err != nil {
		return types.VideoAsset{}, fmt.Errorf("%w: %v", types.ErrUnreadableMedia, err)
	}
	if fi.IsDir() {
		return types.VideoAsset{}, fmt.Errorf("%w: %s is a directory", types.ErrUnreadableMedia, path)
	}

	pctx, cancel := withTimeout(ctx, p.opts.Timeouts.Probe)
	defer cancel()
	asset, err := p.deps.Decoder.Probe(pctx, path)
	if err != nil {
		if errors.Is(err, types.ErrUnreadableMedia) {
			return types.VideoAsset{}, err
		}
		return types.VideoAsset{}, fmt.Errorf("%w: %v", types.ErrUnreadableMedia, err)
	}
	if !asset.HasAudio {
		return types.VideoAsset{}, fmt.Errorf("%w: %s", types.ErrNoAudioTrack, path)
	}
	return asset, nil
}

func (p *Pipeline) extractAudio(ctx context.Context, path, dir string) (types.AudioTrack, error) {
	ectx, cancel := withTimeout(ctx, p.opts.Timeouts.Extract)
	defer cancel()
	wav := filepath.Join(dir, "audio.wav")
	if err := p.deps.Decoder.ExtractAudio(ectx, path, wav, p.opts.SampleRate); err != nil {
		return types.AudioTrack{}, err
	}
	return media.ReadWAV(wav)
}

func (p *Pipeline) extractFeatures(ctx context.Context, log logrus.FieldLogger, path string, track types.AudioTrack, text string) (types.FusionInput, error) {
	ectx, cancel := withTimeout(ctx, p.opts.Timeouts.Extract)
	defer cancel()

	video, err := p.deps.Video.Extract(ectx, path)
	if err != nil {
		return types.FusionInput{}, err
	}
	audio, err := p.deps.Audio.Extract(ectx, track)
	if err != nil {
		return types.FusionInput{}, err
	}
	var textSeq types.Sequence
	err = p.guarded(ctx, func() error {
		tctx, cancel := withTimeout(ctx, p.opts.Timeouts.Encode)
		defer cancel()
		var err error
		textSeq, err = p.deps.Text.Extract(tctx, text)
		return err
	})
	if err != nil {
		var fe *types.FeatureExtractionError
		if !errors.As(err, &fe) {
			err = &types.FeatureExtractionError{Modality: types.ModalityText, Err: err}
		}
		return types.FusionInput{}, err
	}

	log.WithFields(logrus.Fields{
		"video": shape(video),
		"audio": shape(audio),
		"text":  shape(textSeq),
	}).Debug("feature shapes")
	return types.NewFusionInput(audio, video, textSeq), nil
}

// Probe warms the fusion classifier up with an all-zero input and reports
// the output shape.
func (p *Pipeline) Probe(ctx context.Context) ([2]int, error) {
	in := types.NewFusionInput(
		zeroSequence(types.ModalityAudio),
		zeroSequence(types.ModalityVideo),
		zeroSequence(types.ModalityText),
	)
	var scores types.Scores
	err := p.guarded(ctx, func() error {
		pctx, cancel := withTimeout(ctx, p.opts.Timeouts.Invoke)
		defer cancel()
		var err error
		scores, err = p.deps.Invoker.Invoke(pctx, in)
		return err
	})
	if err != nil {
		p.log.WithError(err).Error("fusion model probe failed")
		return [2]int{}, err
	}
	sh := [2]int{len(scores.Values), scores.Classes()}
	p.log.WithField("shape", fmt.Sprintf("%v", sh)).Info("fusion model probe ok")
	return sh, nil
}
