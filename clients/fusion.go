package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

// Tensor names the fusion model was exported with.
const (
	InputAudio = "a_input"
	InputVideo = "v_input"
	InputText  = "t_input"
	InputMask  = "mask"
)

// --- Fusion classifier ---
type SignatureReq struct {
	SignatureName string         `json:"signature_name"`
	Inputs        map[string]any `json:"inputs"`
}
type SessionReq struct {
	Instances []map[string]any `json:"instances"`
}

var _ ports.FusionClassifier = (*Fusion)(nil)

// Fusion reaches the fusion classifier over HTTP. The direct convention
// posts batched tensors to /predict; the signature and session
// conventions use the model server's /v1/models/{name}:predict endpoint in
// columnar and row format respectively.
type Fusion struct {
	http  *HTTP
	url   string
	model string
}

func NewFusion(h *HTTP, url, model string) *Fusion {
	return &Fusion{http: h, url: strings.TrimRight(url, "/"), model: model}
}

func (f *Fusion) PredictDirect(ctx context.Context, in types.FusionInput) (types.Scores, error) {
	var out map[string]json.RawMessage
	if err := f.http.postJSON(ctx, f.url+"/predict", "fusion direct", batched(in), &out); err != nil {
		return types.Scores{}, err
	}
	return ParseScores(out)
}

func (f *Fusion) PredictSignature(ctx context.Context, in types.FusionInput, signature string) (types.Scores, error) {
	req := SignatureReq{SignatureName: signature, Inputs: batched(in)}
	var out map[string]json.RawMessage
	if err := f.http.postJSON(ctx, f.modelURL(), "fusion signature", req, &out); err != nil {
		return types.Scores{}, err
	}
	return ParseScores(out)
}

func (f *Fusion) PredictSession(ctx context.Context, in types.FusionInput) (types.Scores, error) {
	req := SessionReq{Instances: []map[string]any{{
		InputAudio: in.Audio.Frames,
		InputVideo: in.Video.Frames,
		InputText:  in.Text.Frames,
		InputMask:  in.Mask,
	}}}
	var out map[string]json.RawMessage
	if err := f.http.postJSON(ctx, f.modelURL(), "fusion session", req, &out); err != nil {
		return types.Scores{}, err
	}
	return ParseScores(out)
}

func (f *Fusion) modelURL() string {
	return fmt.Sprintf("%s/v1/models/%s:predict", f.url, f.model)
}

// batched adds the leading batch dimension of 1 to every input.
func batched(in types.FusionInput) map[string]any {
	return map[string]any{
		InputAudio: [][][]float64{in.Audio.Frames},
		InputVideo: [][][]float64{in.Video.Frames},
		InputText:  [][][]float64{in.Text.Frames},
		InputMask:  [][]float64{in.Mask},
	}
}

// scoreKeys are the response fields that may carry the output tensor.
var scoreKeys = []string{"predictions", "outputs", "scores"}

// ParseScores extracts a [C] or [T,C] tensor from a model server
// response. Named outputs resolve to the first name in sorted order, and
// batch dimensions of size 1 are dropped.
func ParseScores(resp map[string]json.RawMessage) (types.Scores, error) {
	for _, k := range scoreKeys {
		raw, ok := resp[k]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Scores{}, fmt.Errorf("fusion %s: %w", k, err)
		}
		rows, err := toScores(v)
		if err != nil {
			return types.Scores{}, fmt.Errorf("fusion %s: %w", k, err)
		}
		return types.Scores{Values: rows}, nil
	}
	if msg, ok := resp["error"]; ok {
		return types.Scores{}, fmt.Errorf("fusion error: %s", string(msg))
	}
	return types.Scores{}, errors.New("fusion response has no scores")
}

func toScores(v any) ([][]float64, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil, errors.New("empty output map")
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return toScores(t[keys[0]])
	case []any:
		if len(t) == 0 {
			return nil, errors.New("empty scores")
		}
		switch first := t[0].(type) {
		case float64:
			row, err := toRow(t)
			if err != nil {
				return nil, err
			}
			return [][]float64{row}, nil
		case []any:
			if len(first) > 0 {
				if _, ok := first[0].(float64); ok {
					return toMatrix(t)
				}
			}
		}
		if len(t) != 1 {
			return nil, fmt.Errorf("batch of %d predictions, want 1", len(t))
		}
		return toScores(t[0])
	}
	return nil, fmt.Errorf("unexpected score value %T", v)
}

func toMatrix(rows []any) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		vals, ok := r.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d is %T, want array", i, r)
		}
		row, err := toRow(vals)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if i > 0 && len(row) != len(out[0]) {
			return nil, fmt.Errorf("row %d has %d classes, want %d", i, len(row), len(out[0]))
		}
		out[i] = row
	}
	return out, nil
}

func toRow(vals []any) ([]float64, error) {
	row := make([]float64, len(vals))
	for i, x := range vals {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("value %d is %T, want number", i, x)
		}
		row[i] = f
	}
	return row, nil
}
