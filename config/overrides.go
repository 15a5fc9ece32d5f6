package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Env vars use this prefix, e.g. EDMO_FUSION_URL.
const EnvPrefix = "EDMO"

// NewViper returns a viper instance reading EDMO_* environment variables.
// Keys use dashes to match CLI flag names.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Apply overlays values set through flags or environment on top of c.
func (c *Root) Apply(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("log-level", &c.Pipeline.LogLvl)
	str("log-format", &c.Pipeline.LogFormat)
	str("fusion-url", &c.Services.Fusion.URL)
	str("encoder-url", &c.Services.Encoder.URL)
	str("asr-url", &c.Services.ASR.URL)
	str("offline-engine", &c.Speech.Offline.Engine)
	str("offline-model", &c.Speech.Offline.Model)
	str("openai-api-key", &c.Speech.OpenAI.APIKey)
	str("openai-base-url", &c.Speech.OpenAI.BaseURL)
	str("projection-mode", &c.Projection.Mode)
	str("temp-dir", &c.Paths.Temp)
	str("outputs", &c.Paths.Outputs)
	str("ffmpeg", &c.Paths.FFmpeg)
	str("ffprobe", &c.Paths.FFprobe)
	num("num-classes", &c.Models.NumClasses)
	num("max-concurrent", &c.Models.MaxConcurrent)

	if v.IsSet("online") {
		c.Speech.Online = v.GetStringSlice("online")
	}
	if v.IsSet("skew-threshold") {
		c.Scoring.SkewThreshold = v.GetFloat64("skew-threshold")
	}
	if v.IsSet("projection-seed") {
		c.Projection.Seed = v.GetUint64("projection-seed")
	}
}
