package ffmpeg

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Driver is a set of typed wrappers over an external ffmpeg binary, one
// subprocess invocation per call, each idempotent against its declared
// output path.
type Driver struct {
	FFmpegPath  string
	FFprobePath string

	VideoEncoder string // default "libx264"
	AudioCodec   string // default "copy"
	Preset       string // default "fast"
	CRF          string // optional, empty means omit -crf
	AutoHW       bool   // probe for a hardware H.264 encoder and prefer it over VideoEncoder
}

func NewDriver(ffmpegPath, ffprobePath string) *Driver {
	return &Driver{
		FFmpegPath:   ffmpegPath,
		FFprobePath:  ffprobePath,
		VideoEncoder: "libx264",
		AudioCodec:   "copy",
		Preset:       "fast",
	}
}

const defaultTimeout = 30 * time.Minute

// outputExists makes every wrapper idempotent against its declared output
// path: if a non-empty file is already there, the call short-circuits.
func outputExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// run invokes ffmpeg and, on failure, unlinks the partial output it may
// have left behind: outputExists only checks for a non-empty file, so a
// truncated file from a crashed or timed-out invocation would otherwise
// be treated as done by the next run.
func (d *Driver) run(args []string, timeout time.Duration, outPath string) error {
	cmd := exec.Command(d.FFmpegPath, args...)
	out, err := runWithTimeout(cmd, timeout)
	if err != nil {
		if cerr := CleanPartialOutput(outPath); cerr != nil {
			log.Printf("[transcode] could not remove partial output %s: %v", outPath, cerr)
		}
		return fmt.Errorf("ffmpeg: %w (last output: %s)", err, lastLines(string(out), 20))
	}
	return nil
}

// runWithTimeout starts cmd in its own process group and kills the whole
// group if it exceeds timeout, avoiding the known exec.CommandContext
// hang-on-pipe-drain issue.
func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) ([]byte, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return buf.Bytes(), err
	case <-time.After(timeout):
		killProcessGroup(cmd)
		<-done
		return buf.Bytes(), fmt.Errorf("timed out after %s", timeout)
	}
}

func killProcessGroup(cmd *exec.Cmd) {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// ProbeVideo streams {duration, width, height} metadata from v:0.
func (d *Driver) ProbeVideo(path string) (VideoInfo, error) {
	return NewFFprobe(d.FFprobePath).ProbeVideo(path)
}

var freezeStartRe = regexp.MustCompile(`freeze_start: ([\d.]+)`)
var freezeEndRe = regexp.MustCompile(`freeze_end: ([\d.]+)`)

// parseFreezeOutput reads freezedetect log lines from ffmpeg output.
// ok is true when the text contains exactly one parsable freeze_start;
// hasEnd reports whether any freeze_end line appeared.
func parseFreezeOutput(text string) (startSec float64, hasEnd bool, ok bool) {
	hasEnd = freezeEndRe.MatchString(text)
	starts := freezeStartRe.FindAllStringSubmatch(text, -1)
	if len(starts) != 1 {
		return 0, hasEnd, false
	}
	v, err := strconv.ParseFloat(starts[0][1], 64)
	if err != nil {
		return 0, hasEnd, false
	}
	return v, hasEnd, true
}

// freezeVerdict is the audio-only trigger: exactly one freeze that
// begins within the first 10 seconds and never ends.
func freezeVerdict(startSec float64, hasEnd, ok bool) bool {
	return ok && !hasEnd && startSec <= 10.0
}

// DetectFreeze runs the freezedetect filter with threshold -60dB, min
// 2s, over the full stream, returning true iff there is exactly one
// freeze-start at or before 10s and no freeze-end. That is the signature
// of a webcam track that is really a static placeholder image, which
// routes the orchestrator to the audio-only mux variant.
func (d *Driver) DetectFreeze(videoPath string) (bool, error) {
	cmd := exec.Command(d.FFmpegPath,
		"-hide_banner", "-i", videoPath,
		"-vf", "freezedetect=n=-60dB:d=2",
		"-an", "-f", "null", "-",
	)
	out, err := runWithTimeout(cmd, defaultTimeout)
	// ffmpeg with -f null commonly exits non-zero here; a genuine run
	// error only needs surfacing when no freeze lines came back at all.
	text := string(out)
	if err != nil && !freezeStartRe.MatchString(text) {
		return false, fmt.Errorf("ffmpeg freezedetect: %w", err)
	}
	startSec, hasEnd, ok := parseFreezeOutput(text)
	return freezeVerdict(startSec, hasEnd, ok), nil
}

// evenDim rounds a target dimension down to the nearest even integer;
// most H.264 encoders reject odd output dimensions.
func evenDim(v int) int {
	if v%2 != 0 {
		v--
	}
	if v < 2 {
		v = 2
	}
	return v
}

func letterboxFilter(w, h int) string {
	w, h = evenDim(w), evenDim(h)
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		w, h, w, h,
	)
}

// encodeArgs builds the video+audio codec args for every encoding wrapper.
// When AutoHW is set, it defers encoder choice and quality args to the
// hardware-encoder autodetection in hwaccel.go rather than the configured
// VideoEncoder/Preset/CRF triple.
func (d *Driver) encodeArgs() []string {
	if d.AutoHW {
		enc := DetectH264Encoder(d.FFmpegPath)
		cfg := EncodeConfig(enc)
		args := append([]string{}, cfg.PreInputArgs...)
		args = append(args, "-c:v", cfg.Encoder)
		args = append(args, cfg.QualityArgs...)
		args = append(args, "-c:a", d.AudioCodec)
		return args
	}

	args := []string{"-c:v", d.VideoEncoder, "-preset", d.Preset}
	if d.CRF != "" {
		args = append(args, "-crf", d.CRF)
	}
	args = append(args, "-c:a", d.AudioCodec)
	return args
}

// BuildSlideshow assembles the still-frame concat manifest into an mp4 at
// fps=24 with letterbox-pad scaling to (w,h).
func (d *Driver) BuildSlideshow(concatPath, outPath string, w, h int) error {
	if outputExists(outPath) {
		return nil
	}
	args := []string{
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0", "-i", concatPath,
		"-vf", fmt.Sprintf("fps=24,%s", letterboxFilter(w, h)),
	}
	args = append(args, d.encodeArgs()...)
	args = append(args, outPath)
	return d.run(args, defaultTimeout, outPath)
}

// ResizeDeskshare letterbox-scales a deskshare video to (w,h) using the
// configured video encoder and audio codec.
func (d *Driver) ResizeDeskshare(inPath, outPath string, w, h int) error {
	if outputExists(outPath) {
		return nil
	}
	args := []string{
		"-hide_banner", "-y",
		"-i", inPath,
		"-vf", letterboxFilter(w, h),
	}
	args = append(args, d.encodeArgs()...)
	args = append(args, outPath)
	return d.run(args, defaultTimeout, outPath)
}

// AddDeskshare concats the precomputed slideshow and resized deskshare
// slices named in the presentation concat manifest.
func (d *Driver) AddDeskshare(concatPath, outPath string) error {
	if outputExists(outPath) {
		return nil
	}
	args := []string{
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0", "-i", concatPath,
		"-c", "copy",
		outPath,
	}
	return d.run(args, defaultTimeout, outPath)
}

// AddWebcam overlays the webcam as a 1/5-width thumbnail at 4:3 aspect and
// 80% alpha, anchored bottom-right, taking its audio from the webcam
// stream.
func (d *Driver) AddWebcam(slideshowPath, webcamPath, outPath string, w, h int) error {
	if outputExists(outPath) {
		return nil
	}
	thumbW := evenDim(w / 5)
	thumbH := evenDim(thumbW * 3 / 4)
	filter := fmt.Sprintf(
		"[1:v]scale=%d:%d,format=yuva420p,colorchannelmixer=aa=0.8[pip];"+
			"[0:v][pip]overlay=W-w-20:H-h-20[v]",
		thumbW, thumbH,
	)
	args := []string{
		"-hide_banner", "-y",
		"-i", slideshowPath,
		"-i", webcamPath,
		"-filter_complex", filter,
		"-map", "[v]", "-map", "1:a",
	}
	args = append(args, d.encodeArgs()...)
	args = append(args, "-shortest", outPath)
	return d.run(args, defaultTimeout, outPath)
}

// AddAudioOnly maps webcam audio onto the slideshow video track, duration
// = shortest. The orchestrator selects this variant when DetectFreeze
// reports the webcam is a frozen placeholder image.
func (d *Driver) AddAudioOnly(slideshowPath, webcamPath, outPath string) error {
	if outputExists(outPath) {
		return nil
	}
	args := []string{
		"-hide_banner", "-y",
		"-i", slideshowPath,
		"-i", webcamPath,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy", "-c:a", d.AudioCodec,
		"-shortest", outPath,
	}
	return d.run(args, defaultTimeout, outPath)
}

// CleanPartialOutput removes an output file left behind by an aborted
// run, since the idempotence check above only checks for a non-empty file.
func CleanPartialOutput(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
