package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/maastricht-university/edmo-emotion/ports"
)

// --- Text encoder (/encode) ---
type EncodeReq struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
}
type EncodeResp struct {
	Embeddings [][]float64 `json:"embeddings"` // one row per token
}

var _ ports.TextEncoder = (*Encoder)(nil)

// Encoder calls the contextual text encoder service, which tokenizes with
// truncation at max_length and returns the last hidden state.
type Encoder struct {
	http *HTTP
	url  string
}

func NewEncoder(h *HTTP, url string) *Encoder {
	return &Encoder{http: h, url: strings.TrimRight(url, "/")}
}

func (e *Encoder) Encode(ctx context.Context, text string, maxLen int) ([][]float64, error) {
	var out EncodeResp
	if err := e.http.postJSON(ctx, e.url+"/encode", "encoder", EncodeReq{Text: text, MaxLength: maxLen}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("encoder returned no embeddings")
	}
	if len(out.Embeddings) > maxLen {
		out.Embeddings = out.Embeddings[:maxLen]
	}
	width := len(out.Embeddings[0])
	for i, row := range out.Embeddings {
		if len(row) != width {
			return nil, fmt.Errorf("encoder row %d has width %d, want %d", i, len(row), width)
		}
	}
	return out.Embeddings, nil
}
