package ffmpeg

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// FFprobe wraps the ffprobe binary: one subprocess invocation, JSON
// output decoded into the duration/width/height triple the pipeline
// needs.
type FFprobe struct{ Path string }

type ProbeResult struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

type FormatInfo struct {
	Duration string `json:"duration"`
}

type StreamInfo struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func NewFFprobe(path string) *FFprobe { return &FFprobe{Path: path} }

func (f *FFprobe) Probe(filePath string) (*ProbeResult, error) {
	cmd := exec.Command(f.Path, "-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", filePath)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoInfo is the duration/width/height triple of a video file's first
// video stream.
type VideoInfo struct {
	DurationSec float64
	Width       int
	Height      int
}

func (f *FFprobe) ProbeVideo(filePath string) (VideoInfo, error) {
	r, err := f.Probe(filePath)
	if err != nil {
		return VideoInfo{}, err
	}
	duration, _ := strconv.ParseFloat(r.Format.Duration, 64)
	info := VideoInfo{DurationSec: duration}
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	return info, nil
}
