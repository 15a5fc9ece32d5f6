package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/maastricht-university/edmo-emotion/types"
)

const bitsPerSample = 16

type wavInfo struct {
	DataOffset    int
	DataSize      int
	SampleRate    int
	Channels      int
	AudioFormat   int
	BitsPerSample int
}

// parseWAV walks the RIFF chunks and returns the fmt metadata and the
// location of the data chunk.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("wav: missing RIFF/WAVE header")
	}

	var info wavInfo
	foundFmt := false
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return wavInfo{}, errors.New("wav: truncated fmt chunk")
			}
			f := wav[offset+8:]
			info.AudioFormat = int(binary.LittleEndian.Uint16(f[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("wav: data chunk before fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			// ffmpeg writes 0xFFFFFFFF sizes when streaming to a pipe
			if info.DataOffset+info.DataSize > len(wav) || chunkSize == 0 {
				info.DataSize = len(wav) - info.DataOffset
			}
			return info, nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("wav: missing data chunk")
}

// ReadWAV decodes a PCM16 WAV file into an AudioTrack whose Path is path.
func ReadWAV(path string) (types.AudioTrack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.AudioTrack{}, err
	}
	info, err := parseWAV(b)
	if err != nil {
		return types.AudioTrack{}, fmt.Errorf("%w: %v", types.ErrCodec, err)
	}
	if info.AudioFormat != 1 || info.BitsPerSample != bitsPerSample {
		return types.AudioTrack{}, fmt.Errorf("%w: wav format %d with %d bits, want PCM16",
			types.ErrCodec, info.AudioFormat, info.BitsPerSample)
	}
	if info.Channels < 1 || info.SampleRate < 1 {
		return types.AudioTrack{}, fmt.Errorf("%w: wav has %d channels at %d Hz", types.ErrCodec, info.Channels, info.SampleRate)
	}
	pcm := b[info.DataOffset : info.DataOffset+info.DataSize]
	return types.AudioTrack{
		Path:       path,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		Samples:    PCM16ToFloat32(pcm),
	}, nil
}

// WriteWAV stores samples as PCM16LE.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	return os.WriteFile(path, EncodeWAV(Float32ToPCM16(samples), sampleRate, channels), 0o644)
}

// EncodeWAV wraps raw PCM16LE data in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// PCM16ToFloat32 converts little-endian 16-bit samples to [-1, 1].
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// Float32ToPCM16 clamps samples to [-1, 1] and encodes them as PCM16LE.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32767)
		if s >= 1 {
			v = 32767
		} else if s <= -1 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
