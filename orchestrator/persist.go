package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maastricht-university/edmo-emotion/types"
)

// NewReport records the outcome of one Run.
func NewReport(id, video string, pred types.Prediction, err error) Report {
	r := Report{RequestID: id, Video: video, GeneratedAt: time.Now()}
	if err != nil {
		r.Error = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			r.Stage = se.Stage
		}
		return r
	}
	r.Prediction = &pred
	return r
}

func mkSessionDir(outputsRoot string) (string, string, error) {
	ts := time.Now().Format("20060102-150405")
	sid := "session_" + ts
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

// WriteJSON writes v indented to path, creating parent directories.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Persist writes one JSON file per report plus a summary.json into a new
// session directory under outputsRoot and returns that directory.
func Persist(outputsRoot string, reports []Report) (string, error) {
	_, dir, err := mkSessionDir(outputsRoot)
	if err != nil {
		return "", err
	}
	seen := map[string]int{}
	for _, r := range reports {
		name := strings.TrimSuffix(filepath.Base(r.Video), filepath.Ext(r.Video))
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		if err := WriteJSON(filepath.Join(dir, name+".json"), r); err != nil {
			return "", err
		}
	}
	if err := WriteJSON(filepath.Join(dir, "summary.json"), reports); err != nil {
		return "", err
	}
	return dir, nil
}
