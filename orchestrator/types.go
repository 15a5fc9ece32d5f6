package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/maastricht-university/edmo-emotion/types"
)

// Stage is a step of the per-request state machine.
type Stage string

const (
	StageValidating         Stage = "validating"
	StageExtractingAudio    Stage = "extracting_audio"
	StageTranscribing       Stage = "transcribing"
	StageExtractingFeatures Stage = "extracting_features"
	StageInvoking           Stage = "invoking"
	StagePostProcessing     Stage = "post_processing"
	StageDone               Stage = "done"
	StageAborted            Stage = "aborted"
)

// StageError reports the stage a request was aborted in. It unwraps to the
// underlying cause, so errors.Is works against the types sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Report is the JSON document written for one processed video.
type Report struct {
	RequestID   string            `json:"request_id"`
	Video       string            `json:"video"`
	GeneratedAt time.Time         `json:"generated_at"`
	Prediction  *types.Prediction `json:"prediction,omitempty"`
	Error       string            `json:"error,omitempty"`
	Stage       Stage             `json:"stage,omitempty"`
}

type requestIDKey struct{}

// WithRequestID makes Run use id instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
