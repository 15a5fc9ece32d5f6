//go:build whisper

package cli

import (
	"io"

	"github.com/maastricht-university/edmo-emotion/ports"
	"github.com/maastricht-university/edmo-emotion/speech/whisper"
)

func openWhisper(model, language string) (ports.OfflineEngine, io.Closer, error) {
	e, err := whisper.New(model, language)
	if err != nil {
		return nil, nil, err
	}
	return e, e, nil
}
