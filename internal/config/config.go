// Package config holds run options: a flat struct populated from
// environment variables with hardcoded fallbacks. Command-line flags
// that override these values live in cmd/bbbrecorder.
package config

import (
	"os"
	"strconv"
)

// Options holds every knob the orchestrator threads through the
// pipeline. Zero value is never valid; use Load or fill in explicitly
// from parsed flags.
type Options struct {
	WorkingDir string
	OutputDir  string
	OutputName string // empty means auto-generate from title+timestamp

	FFmpegPath  string
	FFprobePath string
	BrowserPath string // empty means let go-rod's launcher download/locate one

	VideoEncoder string
	AudioCodec   string
	Preset       string
	CRF          string
	AutoHW       bool

	MaxParallelRenderers int
	FetchConcurrency     int

	ForceWidth  int
	ForceHeight int

	SkipWebcam      bool
	SkipFreezeCheck bool
	SkipAnnotations bool
	SkipCursor      bool

	Backup       bool
	KeepTmpFiles bool
	Verbose      bool
}

// Load reads Options from the environment, with hardcoded fallbacks for
// unset variables.
func Load() *Options {
	return &Options{
		WorkingDir:  env("BBBR_WORKING_DIR", "./bbbrecorder-work"),
		OutputDir:   env("BBBR_OUTPUT_DIR", "."),
		OutputName:  env("BBBR_OUTPUT_NAME", ""),
		FFmpegPath:  env("BBBR_FFMPEG_PATH", "ffmpeg"),
		FFprobePath: env("BBBR_FFPROBE_PATH", "ffprobe"),
		BrowserPath: env("BBBR_BROWSER_PATH", ""),

		VideoEncoder: env("BBBR_VIDEO_ENCODER", "libx264"),
		AudioCodec:   env("BBBR_AUDIO_CODEC", "copy"),
		Preset:       env("BBBR_PRESET", "fast"),
		CRF:          env("BBBR_CRF", ""),
		AutoHW:       envBool("BBBR_AUTO_HW", false),

		MaxParallelRenderers: envInt("BBBR_MAX_PARALLEL_RENDERERS", 10),
		FetchConcurrency:     envInt("BBBR_FETCH_CONCURRENCY", 5),

		ForceWidth:  envInt("BBBR_FORCE_WIDTH", 0),
		ForceHeight: envInt("BBBR_FORCE_HEIGHT", 0),

		SkipWebcam:      envBool("BBBR_SKIP_WEBCAM", false),
		SkipFreezeCheck: envBool("BBBR_SKIP_FREEZE_CHECK", false),
		SkipAnnotations: envBool("BBBR_SKIP_ANNOTATIONS", false),
		SkipCursor:      envBool("BBBR_SKIP_CURSOR", false),

		Backup:       envBool("BBBR_BACKUP", false),
		KeepTmpFiles: envBool("BBBR_KEEP_TMP_FILES", false),
		Verbose:      envBool("BBBR_VERBOSE", false),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
