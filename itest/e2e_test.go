//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/features"
	"github.com/maastricht-university/edmo-emotion/fusion"
	"github.com/maastricht-university/edmo-emotion/media"
	"github.com/maastricht-university/edmo-emotion/observe"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
	"github.com/maastricht-university/edmo-emotion/scoring"
	"github.com/maastricht-university/edmo-emotion/speech"
	"github.com/maastricht-university/edmo-emotion/types"
)

func makeClip(t *testing.T, withAudio bool) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "clip.mp4")
	args := []string{"-y", "-f", "lavfi", "-i", "testsrc=s=160x120:d=3:r=25"}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", "sine=frequency=440:duration=3", "-shortest", "-c:a", "aac")
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", out)
	if b, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return out
}

func modelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/encode", func(w http.ResponseWriter, r *http.Request) {
		var req clients.EncodeReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		rows := make([][]float64, 4)
		for i := range rows {
			rows[i] = make([]float64, 768)
		}
		_ = json.NewEncoder(w).Encode(clients.EncodeResp{Embeddings: rows})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, k := range []string{clients.InputAudio, clients.InputVideo, clients.InputText, clients.InputMask} {
			if _, ok := body[k]; !ok {
				http.Error(w, "missing "+k, http.StatusBadRequest)
				return
			}
		}
		_, _ = w.Write([]byte(`{"predictions":[[0.1,0.2,0.4,0.1,0.1,0.1]]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newPipeline(t *testing.T, url, tmp string) *orchestrator.Pipeline {
	t.Helper()
	dec := media.NewFFmpeg("ffmpeg", "ffprobe")
	h := clients.NewHTTP(30 * time.Second)
	strategies, err := fusion.Strategies(clients.NewFusion(h, url, "multimodal"), "serving_default", []string{fusion.Direct})
	if err != nil {
		t.Fatal(err)
	}
	proj := func() *features.Projector {
		return features.NewProjector(types.FusionWidth, features.ProjectionFixed, 7)
	}
	p, err := orchestrator.New(orchestrator.Deps{
		Decoder:     dec,
		Transcriber: speech.NewTranscriber(nil, nil),
		Video:       features.NewVideoExtractor(dec, proj(), 32, 32),
		Audio:       features.NewAudioExtractor(features.DefaultMFCCConfig(), proj()),
		Text:        features.NewTextExtractor(clients.NewEncoder(h, url), proj()),
		Invoker:     fusion.NewInvoker(nil, nil, strategies...),
		Scorer:      scoring.New(scoring.DefaultSkewThreshold, nil),
		Log:         observe.Discard(),
	}, orchestrator.Options{TempDir: tmp, SampleRate: 16000, MaxConcurrent: 1, NumClasses: 6})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestE2E(t *testing.T) {
	srv := modelServer(t)
	tmp := t.TempDir()
	clip := makeClip(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pred, err := newPipeline(t, srv.URL, tmp).Run(ctx, clip)
	if err != nil {
		t.Fatal(err)
	}
	if pred.Emotion != "sad" {
		t.Fatalf("emotion = %q, want sad", pred.Emotion)
	}
	if pred.Text != types.NoSpeechSentinel {
		t.Fatalf("text = %q", pred.Text)
	}
	if matches, _ := filepath.Glob(filepath.Join(tmp, "edmo-*")); len(matches) != 0 {
		t.Fatalf("scratch dirs left: %v", matches)
	}
}

func TestE2E_NoAudioTrack(t *testing.T) {
	srv := modelServer(t)
	clip := makeClip(t, false)

	_, err := newPipeline(t, srv.URL, t.TempDir()).Run(context.Background(), clip)
	var se *orchestrator.StageError
	if !errors.As(err, &se) || se.Stage != orchestrator.StageValidating {
		t.Fatalf("err = %v, want validating stage error", err)
	}
}
