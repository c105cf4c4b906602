// Package orchestrator sequences the whole reconstruction: fetch the
// essential manifests, fetch webcam and optional deskshare video, parse,
// compile the timeline, serve the scene, render, assemble the slideshow,
// splice in deskshare, freeze-check the webcam and mux the final output.
// Each step is a hard barrier: a phase's errors never leak into the next
// one, they convert straight into the Run error return.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bbbrecorder/bbbrecorder/internal/config"
	"github.com/bbbrecorder/bbbrecorder/internal/cutlist"
	"github.com/bbbrecorder/bbbrecorder/internal/ffmpeg"
	"github.com/bbbrecorder/bbbrecorder/internal/fetcher"
	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
	"github.com/bbbrecorder/bbbrecorder/internal/progress"
	"github.com/bbbrecorder/bbbrecorder/internal/recording"
	"github.com/bbbrecorder/bbbrecorder/internal/renderpool"
	"github.com/bbbrecorder/bbbrecorder/internal/sceneserver"
	"github.com/bbbrecorder/bbbrecorder/internal/timeline"
)

// essentialFiles are the manifest documents the reconstruction cannot
// proceed without. captions.json and events.xml are fetched alongside for
// completeness but their absence is never fatal.
var essentialFiles = []string{"metadata.xml", "shapes.svg"}
var optionalManifestFiles = []string{"panzooms.xml", "cursor.xml", "deskshare.xml", "captions.json", "events.xml"}

// transcoder is the slice of ffmpeg.Driver the assembly and mux phases
// drive; a narrow interface so those phases can be tested with a fake.
type transcoder interface {
	ProbeVideo(path string) (ffmpeg.VideoInfo, error)
	DetectFreeze(videoPath string) (bool, error)
	BuildSlideshow(concatPath, outPath string, w, h int) error
	ResizeDeskshare(inPath, outPath string, w, h int) error
	AddDeskshare(concatPath, outPath string) error
	AddWebcam(slideshowPath, webcamPath, outPath string, w, h int) error
	AddAudioOnly(slideshowPath, webcamPath, outPath string) error
}

// Result is what a successful Run produced.
type Result struct {
	OutputPath string
	BackedUp   bool // true if the run stopped after Fetch because opts.Backup was set
}

// Run drives one recording URL through the full pipeline. ctx is checked
// between phases; a cancellation observed at a phase boundary stops
// dispatching further phases and returns ctx.Err().
func Run(ctx context.Context, url string, opts *config.Options) (*Result, error) {
	id, err := recording.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	rc := recording.New(id, opts.WorkingDir)

	if err := os.MkdirAll(rc.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: create working dir: %w", err)
	}
	log.Printf("[orchestrator] working directory: %s", rc.WorkDir)

	f := &fetcher.Fetcher{BaseURL: rc.ID.BaseURL(), WorkDir: rc.WorkDir, Concurrency: opts.FetchConcurrency}
	if err := f.Start(); err != nil {
		return nil, fmt.Errorf("orchestrator: start fetcher: %w", err)
	}
	defer f.Stop()

	if err := phaseFetchEssential(f); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outPath, err := resolveOutputPath(rc, opts)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(outPath); err == nil {
		return nil, fmt.Errorf("orchestrator: output %s already exists, refusing to overwrite", outPath)
	}

	webcamRel, err := phaseFetchWebcam(f, opts)
	if err != nil {
		return nil, err
	}
	deskshareRel := phaseFetchDeskshare(f)

	if opts.Backup {
		log.Printf("[orchestrator] backup requested, stopping after fetch: %s", rc.WorkDir)
		return &Result{OutputPath: rc.WorkDir, BackedUp: true}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	parsed, err := manifest.Parse(rc.WorkDir, !opts.SkipAnnotations, !opts.SkipCursor)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse manifest: %w", err)
	}
	if parsed.Metadata.Version != "" {
		log.Printf("[orchestrator] recording published by bbb %s", parsed.Metadata.Version)
	}

	if err := phaseFetchSlides(f, parsed); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tl := timeline.Compile(parsed)
	log.Printf("[orchestrator] compiled %d frames across %d partitions", len(tl.Frames), len(tl.Partitions))

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	width, height := outputDimensions(parsed, opts)

	framesDir := filepath.Join(rc.WorkDir, "frames")
	if err := renderTimeline(rc, tl, framesDir, opts, width, height); err != nil {
		return nil, fmt.Errorf("orchestrator: render: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	driver := ffmpeg.NewDriver(opts.FFmpegPath, opts.FFprobePath)
	driver.VideoEncoder, driver.AudioCodec, driver.Preset, driver.CRF, driver.AutoHW =
		opts.VideoEncoder, opts.AudioCodec, opts.Preset, opts.CRF, opts.AutoHW

	slideshowPath := filepath.Join(rc.WorkDir, "slideshow.mp4")
	if err := assembleSlideshow(rc, tl, driver, slideshowPath, width, height); err != nil {
		return nil, fmt.Errorf("orchestrator: assemble slideshow: %w", err)
	}

	presentationPath := slideshowPath
	if deskshareRel != "" && len(parsed.Deskshares) > 0 {
		presentationPath, err = assembleDeskshare(rc, parsed, driver, slideshowPath, deskshareRel, width, height)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: add deskshare: %w", err)
		}
	}

	if err := finalMux(driver, opts, rc.WorkDir, presentationPath, webcamRel, outPath); err != nil {
		// The idempotence checks accept any non-empty file (and the next run
		// refuses to overwrite an existing output), so a partial final
		// output must not survive into the next run.
		if cerr := ffmpeg.CleanPartialOutput(outPath); cerr != nil {
			log.Printf("[orchestrator] could not remove partial output %s: %v", outPath, cerr)
		}
		return nil, fmt.Errorf("orchestrator: final mux: %w", err)
	}

	if !opts.KeepTmpFiles {
		cleanup(rc.WorkDir)
	}

	return &Result{OutputPath: outPath}, nil
}

func phaseFetchEssential(f *fetcher.Fetcher) error {
	rel := append([]string{}, essentialFiles...)
	if _, err := f.FetchAll(rel, true); err != nil {
		return fmt.Errorf("orchestrator: fetch essential manifests: %w", err)
	}

	// Optional manifests warn and continue on failure.
	if _, err := f.FetchAll(optionalManifestFiles, false); err != nil {
		log.Printf("[orchestrator] some optional manifest files were not obtained: %v", err)
	}
	return nil
}

// phaseFetchWebcam tries video/webcams.webm then .mp4, returning the
// relative path that succeeded. Absence of both is fatal unless the
// caller opted out of webcam overlay entirely.
func phaseFetchWebcam(f *fetcher.Fetcher, opts *config.Options) (string, error) {
	if opts.SkipWebcam {
		return "", nil
	}
	rel, ok := fetchWithContainerFallback(f, "video/webcams")
	if !ok {
		return "", fmt.Errorf("orchestrator: %w: webcam video not obtainable as .webm or .mp4", fetcher.ErrEssentialMissing)
	}
	return rel, nil
}

// phaseFetchDeskshare tries deskshare/deskshare.webm then .mp4. Absence is
// never fatal: a recording with no deskshare.xml events simply has no
// deskshare video to fetch.
func phaseFetchDeskshare(f *fetcher.Fetcher) string {
	rel, ok := fetchWithContainerFallback(f, "deskshare/deskshare")
	if !ok {
		return ""
	}
	return rel
}

// assetRel maps a published href onto the relative path the fetcher
// stores it under: leading slash and query string stripped, everything
// else verbatim.
func assetRel(href string) string {
	rel := strings.TrimPrefix(href, "/")
	if i := strings.IndexByte(rel, '?'); i >= 0 {
		rel = rel[:i]
	}
	return rel
}

// phaseFetchSlides downloads every slide image shapes.svg references.
// These are essential: the render pool's browser requests them from the
// scene server, and a 404 there means a blank canvas in the output.
func phaseFetchSlides(f *fetcher.Fetcher, parsed *manifest.Parsed) error {
	seen := make(map[string]bool)
	var rels []string
	for _, s := range parsed.Slides {
		rel := assetRel(s.SrcRel)
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true
		rels = append(rels, rel)
	}
	if len(rels) == 0 {
		return nil
	}
	if _, err := f.FetchAll(rels, true); err != nil {
		return fmt.Errorf("orchestrator: fetch slide images: %w", err)
	}
	return nil
}

func fetchWithContainerFallback(f *fetcher.Fetcher, relBase string) (string, bool) {
	for _, ext := range []string{".webm", ".mp4"} {
		rel := relBase + ext
		ok, err := f.FetchAll([]string{rel}, false)
		if err == nil && len(ok) == 1 && ok[0] {
			return rel, true
		}
	}
	return "", false
}

func renderTimeline(rc recording.Context, tl *timeline.Timeline, framesDir string, opts *config.Options, width, height int) error {
	svg, err := os.ReadFile(filepath.Join(rc.WorkDir, "shapes.svg"))
	if err != nil {
		return fmt.Errorf("read shapes.svg: %w", err)
	}
	rewritten := manifest.RewriteImageHrefs(svg, assetRel)
	if err := os.WriteFile(filepath.Join(rc.WorkDir, "shapes.svg"), rewritten, 0o644); err != nil {
		return fmt.Errorf("rewrite shapes.svg: %w", err)
	}

	srv, err := sceneserver.Start(rc.WorkDir)
	if err != nil {
		return fmt.Errorf("start scene server: %w", err)
	}
	defer func() {
		if err := srv.Shutdown(); err != nil {
			log.Printf("[orchestrator] scene server shutdown: %v", err)
		}
	}()

	counters := &renderpool.Counters{}
	reporter := progress.New(counters)
	reporter.Start()
	defer reporter.Stop()

	pool := &renderpool.Pool{
		SceneURL:    srv.URL() + "shapes.svg",
		Headless:    true,
		Size:        opts.MaxParallelRenderers,
		Width:       width,
		Height:      height,
		BrowserPath: opts.BrowserPath,
	}
	return pool.Run(tl, framesDir, counters)
}

func assembleSlideshow(rc recording.Context, tl *timeline.Timeline, driver transcoder, outPath string, width, height int) error {
	manifestPath := filepath.Join(rc.WorkDir, "slideshow.txt")
	content := cutlist.Slideshow(tl, func(ts float64) string {
		return filepath.Join("frames", timeline.FrameFileName(ts))
	})
	if err := cutlist.WriteSlideshow(manifestPath, content); err != nil {
		return fmt.Errorf("write slideshow manifest: %w", err)
	}
	return driver.BuildSlideshow(manifestPath, outPath, width, height)
}

func assembleDeskshare(rc recording.Context, parsed *manifest.Parsed, driver transcoder, slideshowPath, deskshareRel string, width, height int) (string, error) {
	deskshareIn := filepath.Join(rc.WorkDir, deskshareRel)
	deskshareResized := filepath.Join(rc.WorkDir, "deskshare.mp4")
	if err := driver.ResizeDeskshare(deskshareIn, deskshareResized, width, height); err != nil {
		return "", fmt.Errorf("resize deskshare: %w", err)
	}

	manifestPath := filepath.Join(rc.WorkDir, "deskshare.txt")
	content := cutlist.Presentation(parsed.Metadata.DurationSec, slideshowPath, deskshareResized, parsed.Deskshares)
	if err := cutlist.WritePresentation(manifestPath, content); err != nil {
		return "", fmt.Errorf("write presentation manifest: %w", err)
	}

	presentationPath := filepath.Join(rc.WorkDir, "presentation.mp4")
	if err := driver.AddDeskshare(manifestPath, presentationPath); err != nil {
		return "", fmt.Errorf("add deskshare: %w", err)
	}
	return presentationPath, nil
}

func finalMux(driver transcoder, opts *config.Options, workDir, videoPath, webcamRel, outPath string) error {
	if webcamRel == "" {
		if err := copyFile(videoPath, outPath); err != nil {
			_ = os.Remove(outPath)
			return err
		}
		return nil
	}
	webcamPath := filepath.Join(workDir, webcamRel)

	useAudioOnly := false
	if !opts.SkipFreezeCheck {
		frozen, err := driver.DetectFreeze(webcamPath)
		if err != nil {
			log.Printf("[orchestrator] freeze detection failed, defaulting to full webcam overlay: %v", err)
		} else {
			useAudioOnly = frozen
		}
	}

	if useAudioOnly {
		return driver.AddAudioOnly(videoPath, webcamPath, outPath)
	}
	info, err := driver.ProbeVideo(videoPath)
	if err != nil {
		return fmt.Errorf("probe slideshow dimensions: %w", err)
	}
	return driver.AddWebcam(videoPath, webcamPath, outPath, info.Width, info.Height)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func resolveOutputPath(rc recording.Context, opts *config.Options) (string, error) {
	if opts.OutputName != "" {
		return filepath.Join(opts.OutputDir, opts.OutputName), nil
	}

	md, err := manifest.Parse(rc.WorkDir, false, false)
	title := "recording"
	if err == nil && md.Metadata.Title != "" {
		title = md.Metadata.Title
	}
	sanitized := sanitizeRe.ReplaceAllString(title, "-")

	stamp := time.Unix(0, 0).UTC()
	if err == nil && md.Metadata.StartEpochMS > 0 {
		stamp = time.UnixMilli(md.Metadata.StartEpochMS).UTC()
	}
	name := fmt.Sprintf("%s_%s.mp4", stamp.Format("2006-01-02T15-04-05"), sanitized)
	return filepath.Join(opts.OutputDir, name), nil
}

func outputDimensions(parsed *manifest.Parsed, opts *config.Options) (int, int) {
	if opts.ForceWidth > 0 && opts.ForceHeight > 0 {
		return opts.ForceWidth, opts.ForceHeight
	}
	for _, s := range parsed.Slides {
		if s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height
		}
	}
	return 1280, 720
}

// cleanup deletes the working directory once the final output has been
// written. keep-tmp-files retains it for inspection or resume; on
// failure it is always retained so the next run can pick up where this
// one stopped.
func cleanup(workDir string) {
	_ = os.RemoveAll(workDir)
}
