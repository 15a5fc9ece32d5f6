package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/maastricht-university/edmo-emotion/types"
)

type FFmpeg struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe opens the container and reports its video/audio streams. Files
// ffprobe cannot open, or without a video stream, are ErrUnreadableMedia.
func (f *FFmpeg) Probe(ctx context.Context, path string) (types.VideoAsset, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.VideoAsset{}, fmt.Errorf("%w: ffprobe %s: %v\n%s", types.ErrUnreadableMedia, path, err, stderr.String())
	}
	return parseProbe(path, b)
}

func parseProbe(path string, b []byte) (types.VideoAsset, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.VideoAsset{}, fmt.Errorf("%w: ffprobe decode: %v", types.ErrUnreadableMedia, err)
	}
	asset := types.VideoAsset{Path: path}
	if sec, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		asset.Duration = time.Duration(sec * float64(time.Second))
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if asset.HasVideo {
				continue
			}
			asset.HasVideo = true
			asset.Width, asset.Height = s.Width, s.Height
			asset.FrameRate = parseRate(s.AvgFrameRate)
			if asset.FrameRate == 0 {
				asset.FrameRate = parseRate(s.RFrameRate)
			}
			asset.FrameCount, _ = strconv.Atoi(s.NbFrames)
		case "audio":
			asset.HasAudio = true
		}
	}
	if !asset.HasVideo {
		return asset, fmt.Errorf("%w: %s has no video stream", types.ErrUnreadableMedia, path)
	}
	return asset, nil
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ExtractAudio demuxes the first audio stream into a mono PCM16 WAV.
func (f *FFmpeg) ExtractAudio(ctx context.Context, path, outWav string, sampleRate int) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-y",
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		if bytes.Contains(b, []byte("does not contain any stream")) ||
			bytes.Contains(b, []byte("matches no streams")) {
			return fmt.Errorf("%w: %s", types.ErrNoAudioTrack, path)
		}
		return fmt.Errorf("%w: ffmpeg extract audio: %v\n%s", types.ErrCodec, err, string(b))
	}
	return nil
}

// DecodeFrames decodes every frame scaled to width x height, as BGR pixel
// rows flattened into one vector per frame with values in [0, 1].
func (f *FFmpeg) DecodeFrames(ctx context.Context, path string, width, height int) ([][]float64, error) {
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-v", "error",
		"-i", path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d:flags=bilinear", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", types.ErrCodec, err)
	}

	frames, readErr := readFrames(stdout, width*height*3)
	waitErr := cmd.Wait()
	if readErr != nil {
		return nil, fmt.Errorf("%w: read frames: %v", types.ErrCodec, readErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("%w: ffmpeg decode frames: %v\n%s", types.ErrCodec, waitErr, stderr.String())
	}
	return frames, nil
}

func readFrames(r io.Reader, frameBytes int) ([][]float64, error) {
	buf := make([]byte, frameBytes)
	var frames [][]float64
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frame := make([]float64, frameBytes)
		for i, px := range buf {
			frame[i] = float64(px) / 255.0
		}
		frames = append(frames, frame)
	}
}
