package types

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound        = errors.New("video file not found")
	ErrUnreadableMedia     = errors.New("unreadable media")
	ErrNoAudioTrack        = errors.New("video has no audio track")
	ErrCodec               = errors.New("codec error")
	ErrUnrecognized        = errors.New("speech not recognized")
	ErrEmptySequence       = errors.New("empty feature sequence")
	ErrInferenceInvocation = errors.New("all fusion invocation strategies failed")
	ErrPostProcessing      = errors.New("score post-processing failed")
)

// FeatureExtractionError aborts a request when any modality cannot be
// turned into a projected sequence.
type FeatureExtractionError struct {
	Modality Modality
	Err      error
}

func (e *FeatureExtractionError) Error() string {
	return fmt.Sprintf("extract %s features: %v", e.Modality, e.Err)
}

func (e *FeatureExtractionError) Unwrap() error { return e.Err }
