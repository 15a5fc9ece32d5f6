//go:build !whisper

package cli

import (
	"errors"
	"io"

	"github.com/maastricht-university/edmo-emotion/ports"
)

// Build with -tags whisper to link whisper.cpp; whisper-cli needs no cgo.
func openWhisper(string, string) (ports.OfflineEngine, io.Closer, error) {
	return nil, nil, errors.New("speech: built without whisper support, use engine whisper-cli or build with -tags whisper")
}
