package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/types"
)

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
type ASRResp struct {
	Text     string     `json:"text"`
	Segments []TransSeg `json:"segments"`
	Language string     `json:"language"`
}

// Transcript prefers the full text and falls back to joining segments.
func (r *ASRResp) Transcript() string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// transcribe streams wavPath to {url}/transcribe as the "file" part of a
// multipart form, so the clip is never held in memory twice.
func (h *HTTP) transcribe(ctx context.Context, url, wavPath string) (*ASRResp, error) {
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(wavPath))
		if err == nil {
			_, err = io.Copy(part, fd)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/transcribe", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("asr %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	out := &ASRResp{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("asr decode: %w", err)
	}
	return out, nil
}

var _ ports.OnlineEngine = (*ASR)(nil)

// ASR is the speech service behind services.asr.url used as an online
// engine. An empty transcript counts as unrecognized speech.
type ASR struct {
	http *HTTP
	url  string
}

func NewASR(h *HTTP, url string) *ASR { return &ASR{http: h, url: strings.TrimRight(url, "/")} }

func (a *ASR) Recognize(ctx context.Context, wavPath string) (string, error) {
	resp, err := a.http.transcribe(ctx, a.url, wavPath)
	if err != nil {
		return "", err
	}
	text := resp.Transcript()
	if text == "" {
		return "", types.ErrUnrecognized
	}
	return text, nil
}
