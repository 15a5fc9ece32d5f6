package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maastricht-university/edmo-emotion/types"
)

func seq(m types.Modality, v float64) types.Sequence {
	frames := make([][]float64, types.SequenceLength)
	for i := range frames {
		frames[i] = make([]float64, types.FusionWidth)
		for j := range frames[i] {
			frames[i][j] = v
		}
	}
	return types.Sequence{Modality: m, Frames: frames}
}

func testInput() types.FusionInput {
	return types.NewFusionInput(seq(types.ModalityAudio, 0.1), seq(types.ModalityVideo, 0.2), seq(types.ModalityText, 0.3))
}

func TestASR_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "clip.wav" || string(b) != "RIFF" {
			t.Errorf("unexpected upload %q %q", hdr.Filename, b)
		}
		json.NewEncoder(w).Encode(ASRResp{Segments: []TransSeg{{Text: " hello "}, {Text: "world"}}})
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "clip.wav")
	os.WriteFile(wav, []byte("RIFF"), 0o644)

	got, err := NewASR(NewHTTP(time.Second), srv.URL+"/").Recognize(context.Background(), wav)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestASR_EmptyIsUnrecognized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"  ","segments":[]}`))
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "clip.wav")
	os.WriteFile(wav, []byte("RIFF"), 0o644)

	_, err := NewASR(NewHTTP(time.Second), srv.URL).Recognize(context.Background(), wav)
	if !errors.Is(err, types.ErrUnrecognized) {
		t.Fatalf("err = %v", err)
	}
}

func TestASR_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "clip.wav")
	os.WriteFile(wav, []byte("RIFF"), 0o644)

	_, err := NewASR(NewHTTP(time.Second), srv.URL).Recognize(context.Background(), wav)
	if err == nil || errors.Is(err, types.ErrUnrecognized) {
		t.Fatalf("err = %v, want service error", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v should carry the status", err)
	}
}

func TestEncoder_Encode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EncodeReq
		json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/encode" || req.Text != "hi" || req.MaxLength != 110 {
			t.Errorf("unexpected request %s %+v", r.URL.Path, req)
		}
		rows := make([][]float64, 120)
		for i := range rows {
			rows[i] = []float64{1, 2, 3}
		}
		json.NewEncoder(w).Encode(EncodeResp{Embeddings: rows})
	}))
	defer srv.Close()

	got, err := NewEncoder(NewHTTP(time.Second), srv.URL).Encode(context.Background(), "hi", 110)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 110 || len(got[0]) != 3 {
		t.Fatalf("shape %dx%d", len(got), len(got[0]))
	}
}

func TestEncoder_RaggedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1,2],[1]]}`))
	}))
	defer srv.Close()

	if _, err := NewEncoder(NewHTTP(time.Second), srv.URL).Encode(context.Background(), "hi", 110); err == nil {
		t.Fatal("expected error")
	}
}

func TestFusion_Conventions(t *testing.T) {
	var paths []string
	var bodies []map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.Write([]byte(`{"predictions":[[[0.2,0.8],[0.4,0.6]]]}`))
	}))
	defer srv.Close()

	f := NewFusion(NewHTTP(time.Second), srv.URL, "emotion")
	ctx := context.Background()
	in := testInput()

	for _, call := range []func() (types.Scores, error){
		func() (types.Scores, error) { return f.PredictDirect(ctx, in) },
		func() (types.Scores, error) { return f.PredictSignature(ctx, in, "serving_default") },
		func() (types.Scores, error) { return f.PredictSession(ctx, in) },
	} {
		s, err := call()
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Values) != 2 || s.Classes() != 2 {
			t.Fatalf("scores = %v", s.Values)
		}
	}

	want := []string{"/predict", "/v1/models/emotion:predict", "/v1/models/emotion:predict"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("call %d path = %s, want %s", i, paths[i], p)
		}
	}

	var direct map[string][][][]float64
	delete(bodies[0], InputMask)
	raw, _ := json.Marshal(bodies[0])
	if err := json.Unmarshal(raw, &direct); err != nil {
		t.Fatalf("direct body: %v", err)
	}
	if len(direct[InputAudio]) != 1 || len(direct[InputAudio][0]) != 110 || direct[InputText][0][0][0] != 0.3 {
		t.Fatal("direct body is not batched [1,110,100]")
	}
	if string(bodies[1]["signature_name"]) != `"serving_default"` {
		t.Fatalf("signature body = %s", bodies[1]["signature_name"])
	}
	if _, ok := bodies[2]["instances"]; !ok {
		t.Fatal("session body has no instances")
	}
}

func TestFusion_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such signature", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFusion(NewHTTP(time.Second), srv.URL, "m").PredictSignature(context.Background(), testInput(), "x")
	if err == nil || !strings.Contains(err.Error(), "no such signature") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseScores(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantRows int
		wantCols int
	}{
		{"vector", `{"scores":[0.1,0.9]}`, 1, 2},
		{"time major", `{"predictions":[[0.1,0.9],[0.3,0.7],[0.5,0.5]]}`, 3, 2},
		{"batched", `{"predictions":[[[0.1,0.2,0.7]]]}`, 1, 3},
		{"named outputs", `{"outputs":{"dense_2":[[[0.5,0.5],[0.4,0.6]]],"logits_aux":[1]}}`, 2, 2},
		{"row instances", `{"predictions":[{"output_0":[[0.1,0.9]]}]}`, 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tc.body), &resp); err != nil {
				t.Fatal(err)
			}
			s, err := ParseScores(resp)
			if err != nil {
				t.Fatal(err)
			}
			if len(s.Values) != tc.wantRows || s.Classes() != tc.wantCols {
				t.Fatalf("shape %dx%d", len(s.Values), s.Classes())
			}
		})
	}
}

func TestParseScores_Invalid(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"error":"bad input"}`,
		`{"predictions":[]}`,
		`{"predictions":[[0.1,0.9],[0.3]]}`,
		`{"predictions":[[[0.1]],[[0.2]]]}`,
		`{"predictions":["a"]}`,
	} {
		var resp map[string]json.RawMessage
		json.Unmarshal([]byte(body), &resp)
		if _, err := ParseScores(resp); err == nil {
			t.Fatalf("%s: expected error", body)
		}
	}
}
