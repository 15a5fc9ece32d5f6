package features

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/maastricht-university/edmo-emotion/types"
)

func seq(t, width int) [][]float64 {
	out := make([][]float64, t)
	for i := range out {
		out[i] = make([]float64, width)
		for j := range out[i] {
			out[i][j] = float64(i + 1)
		}
	}
	return out
}

func TestAlign_AlwaysFixedLength(t *testing.T) {
	for _, n := range []int{1, 2, 50, 109, 110, 111, 200, 1000} {
		for name, align := range map[string]func([][]float64, int) ([][]float64, error){
			"repeat": AlignRepeat,
			"zero":   AlignZero,
		} {
			out, err := align(seq(n, 3), types.SequenceLength)
			if err != nil {
				t.Fatalf("%s T=%d: %v", name, n, err)
			}
			if len(out) != types.SequenceLength {
				t.Fatalf("%s T=%d: got %d frames", name, n, len(out))
			}
			for i, f := range out {
				if len(f) != 3 {
					t.Fatalf("%s T=%d: frame %d width %d", name, n, i, len(f))
				}
			}
		}
	}
}

func TestAlignRepeat_PadsWithLastFrame(t *testing.T) {
	out, err := AlignRepeat(seq(50, 2), types.SequenceLength)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if out[i][0] != float64(i+1) {
			t.Fatalf("frame %d changed: %v", i, out[i])
		}
	}
	for i := 50; i < 110; i++ {
		if out[i][0] != 50 || out[i][1] != 50 {
			t.Fatalf("pad frame %d = %v, want last frame", i, out[i])
		}
	}
}

func TestAlignRepeat_SubsamplesEvenly(t *testing.T) {
	out, err := AlignRepeat(seq(200, 1), types.SequenceLength)
	if err != nil {
		t.Fatal(err)
	}
	if out[0][0] != 1 || out[109][0] != 200 {
		t.Fatalf("expected coverage of [0,199], got first=%v last=%v", out[0][0], out[109][0])
	}
	for i := 1; i < len(out); i++ {
		if out[i][0] <= out[i-1][0] {
			t.Fatalf("indices not strictly increasing at %d", i)
		}
	}
	step := 199.0 / 109.0
	for i, f := range out {
		want := float64(int(float64(i)*step)) + 1
		if i == 109 {
			want = 200
		}
		if f[0] != want {
			t.Fatalf("frame %d picked %v, want %v", i, f[0], want)
		}
	}
}

func TestAlignZero_PadsAndTruncates(t *testing.T) {
	out, err := AlignZero(seq(50, 2), types.SequenceLength)
	if err != nil {
		t.Fatal(err)
	}
	for i := 50; i < 110; i++ {
		if out[i][0] != 0 || out[i][1] != 0 {
			t.Fatalf("frame %d = %v, want zeros", i, out[i])
		}
	}

	out, err = AlignZero(seq(200, 1), types.SequenceLength)
	if err != nil {
		t.Fatal(err)
	}
	if out[109][0] != 110 {
		t.Fatalf("last kept frame = %v, want 110", out[109][0])
	}
}

func TestAlign_EmptyIsError(t *testing.T) {
	if _, err := AlignRepeat(nil, 110); !errors.Is(err, types.ErrEmptySequence) {
		t.Fatalf("repeat err = %v", err)
	}
	if _, err := AlignZero(nil, 110); !errors.Is(err, types.ErrEmptySequence) {
		t.Fatalf("zero err = %v", err)
	}
}

func TestProjector_Shape(t *testing.T) {
	p := NewProjector(types.FusionWidth, ProjectionFixed, 7)
	for _, width := range []int{1, 20, 768, 12288} {
		out, err := p.Project(seq(types.SequenceLength, width))
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		if len(out) != types.SequenceLength || len(out[0]) != types.FusionWidth {
			t.Fatalf("width %d: got %dx%d", width, len(out), len(out[0]))
		}
	}
}

func TestProjector_IdentityAtTargetWidth(t *testing.T) {
	p := NewProjector(types.FusionWidth, ProjectionPerCall, 0)
	in := seq(types.SequenceLength, types.FusionWidth)
	out, err := p.Project(in)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		for j := range in[i] {
			if out[i][j] != in[i][j] {
				t.Fatalf("value changed at [%d,%d]", i, j)
			}
		}
	}
}

func TestProjector_FixedIsDeterministic(t *testing.T) {
	p := NewProjector(types.FusionWidth, ProjectionFixed, 42)
	in := seq(4, 20)
	a, _ := p.Project(in)
	b, _ := p.Project(in)
	if !equal(a, b) {
		t.Fatal("fixed projector returned different outputs")
	}

	q := NewProjector(types.FusionWidth, ProjectionFixed, 42)
	c, _ := q.Project(in)
	if !equal(a, c) {
		t.Fatal("same seed should give the same matrix")
	}
}

func TestProjector_PerCallIsNotReproducible(t *testing.T) {
	p := NewProjector(types.FusionWidth, ProjectionPerCall, 42)
	in := seq(4, 20)
	a, _ := p.Project(in)
	b, _ := p.Project(in)
	if equal(a, b) {
		t.Fatal("per-call projector reused its matrix")
	}
}

func TestProjector_RejectsRaggedFrames(t *testing.T) {
	p := NewProjector(types.FusionWidth, ProjectionFixed, 1)
	if _, err := p.Project([][]float64{{1, 2}, {1}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMFCC_Shape(t *testing.T) {
	cfg := DefaultMFCCConfig()
	m := NewMFCC(cfg)
	samples := make([]float32, cfg.SampleRate) // one second
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(cfg.SampleRate)))
	}
	out, err := m.Compute(samples)
	if err != nil {
		t.Fatal(err)
	}
	wantFrames := 1 + len(samples)/cfg.HopSize
	if len(out) != wantFrames {
		t.Fatalf("frames = %d, want %d", len(out), wantFrames)
	}
	for _, row := range out {
		if len(row) != cfg.NumCoeffs {
			t.Fatalf("coeffs = %d, want %d", len(row), cfg.NumCoeffs)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite coefficient %v", v)
			}
		}
	}
}

func TestMFCC_Silence(t *testing.T) {
	m := NewMFCC(DefaultMFCCConfig())
	out, err := m.Compute(make([]float32, 4096))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("expected frames for silent input")
	}
}

type fakeDecoder struct {
	frames [][]float64
	err    error
}

func (f fakeDecoder) Probe(context.Context, string) (types.VideoAsset, error) {
	return types.VideoAsset{}, nil
}
func (f fakeDecoder) ExtractAudio(context.Context, string, string, int) error { return nil }
func (f fakeDecoder) DecodeFrames(context.Context, string, int, int) ([][]float64, error) {
	return f.frames, f.err
}

type fakeEncoder struct {
	rows, width int
	gotMax      int
}

func (f *fakeEncoder) Encode(_ context.Context, _ string, maxLen int) ([][]float64, error) {
	f.gotMax = maxLen
	return seq(f.rows, f.width), nil
}

func TestVideoExtractor(t *testing.T) {
	e := NewVideoExtractor(fakeDecoder{frames: seq(30, 64*64*3)}, NewProjector(types.FusionWidth, ProjectionFixed, 1), 64, 64)
	s, err := e.Extract(context.Background(), "x.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if s.Shape() != [2]int{110, 100} || s.Modality != types.ModalityVideo {
		t.Fatalf("unexpected sequence %v %s", s.Shape(), s.Modality)
	}
}

func TestVideoExtractor_NoFrames(t *testing.T) {
	e := NewVideoExtractor(fakeDecoder{}, NewProjector(types.FusionWidth, ProjectionFixed, 1), 64, 64)
	_, err := e.Extract(context.Background(), "x.mp4")
	var fe *types.FeatureExtractionError
	if !errors.As(err, &fe) || fe.Modality != types.ModalityVideo {
		t.Fatalf("err = %v, want video FeatureExtractionError", err)
	}
	if !errors.Is(err, types.ErrEmptySequence) {
		t.Fatalf("err = %v should wrap ErrEmptySequence", err)
	}
}

func TestAudioExtractor(t *testing.T) {
	e := NewAudioExtractor(DefaultMFCCConfig(), NewProjector(types.FusionWidth, ProjectionFixed, 1))
	track := types.AudioTrack{SampleRate: 22050, Channels: 1, Samples: make([]float32, 22050*3)}
	s, err := e.Extract(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if s.Shape() != [2]int{110, 100} {
		t.Fatalf("shape = %v", s.Shape())
	}
}

func TestTextExtractor(t *testing.T) {
	for _, rows := range []int{3, 110, 140} {
		enc := &fakeEncoder{rows: rows, width: 768}
		e := NewTextExtractor(enc, NewProjector(types.FusionWidth, ProjectionFixed, 1))
		s, err := e.Extract(context.Background(), "hello")
		if err != nil {
			t.Fatalf("rows %d: %v", rows, err)
		}
		if s.Shape() != [2]int{110, 100} {
			t.Fatalf("rows %d: shape = %v", rows, s.Shape())
		}
		if enc.gotMax != types.SequenceLength {
			t.Fatalf("encoder max len = %d", enc.gotMax)
		}
	}
}

func equal(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
