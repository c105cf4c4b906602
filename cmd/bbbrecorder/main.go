package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/bbbrecorder/bbbrecorder/internal/config"
	"github.com/bbbrecorder/bbbrecorder/internal/fetcher"
	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
	"github.com/bbbrecorder/bbbrecorder/internal/orchestrator"
	"github.com/bbbrecorder/bbbrecorder/internal/version"
)

const bannerArt = `
 _     _     _     _____                       _
| |   | |   | |   |  __ \                     | |
| |__ | |__ | |__ | |__) |___  ___ ___  _ __ __| | ___ _ __
| '_ \| '_ \| '_ \|  _  // _ \/ __/ _ \| '__/ _' |/ _ \ '__|
| |_) | |_) | |_) | | \ \  __/ (_| (_) | | | (_| |  __/ |
|_.__/|_.__/|_.__/|_|  \_\___|\___\___/|_|  \__,_|\___|_|
`

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.WorkingDir, "working-dir", cfg.WorkingDir, "working directory for downloaded artifacts")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory the final video is written to")
	flag.StringVar(&cfg.OutputName, "output", cfg.OutputName, "output file name (default: auto-generated from title and start time)")
	flag.StringVar(&cfg.VideoEncoder, "encoder", cfg.VideoEncoder, "ffmpeg video encoder")
	flag.StringVar(&cfg.AudioCodec, "audiocodec", cfg.AudioCodec, "ffmpeg audio codec")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "ffmpeg encoder preset")
	flag.StringVar(&cfg.CRF, "crf", cfg.CRF, "ffmpeg constant rate factor (empty omits -crf)")
	flag.BoolVar(&cfg.AutoHW, "auto-hw", cfg.AutoHW, "autodetect and prefer a hardware H.264 encoder")
	flag.StringVar(&cfg.BrowserPath, "browser-path", cfg.BrowserPath, "path to a Chromium/Chrome binary (default: let go-rod locate or download one)")
	flag.IntVar(&cfg.MaxParallelRenderers, "max-parallel-renderers", cfg.MaxParallelRenderers, "max concurrent headless browser workers")
	flag.IntVar(&cfg.ForceWidth, "force-width", cfg.ForceWidth, "force output width (0 = derive from slide geometry)")
	flag.IntVar(&cfg.ForceHeight, "force-height", cfg.ForceHeight, "force output height (0 = derive from slide geometry)")
	flag.BoolVar(&cfg.SkipWebcam, "skip-webcam", cfg.SkipWebcam, "skip webcam fetch and overlay entirely")
	flag.BoolVar(&cfg.SkipFreezeCheck, "skip-freeze-check", cfg.SkipFreezeCheck, "skip webcam freeze detection, always overlay picture-in-picture")
	flag.BoolVar(&cfg.SkipAnnotations, "skip-annotations", cfg.SkipAnnotations, "ignore hand-drawn annotations")
	flag.BoolVar(&cfg.SkipCursor, "skip-cursor", cfg.SkipCursor, "ignore cursor movement")
	flag.BoolVar(&cfg.Backup, "backup", cfg.Backup, "stop after fetch and leave a resumable working directory")
	flag.BoolVar(&cfg.KeepTmpFiles, "keep-tmp-files", cfg.KeepTmpFiles, "keep intermediate artifacts after a successful run")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprint(os.Stderr, bannerArt)
		fmt.Fprintf(os.Stderr, "  bbbrecorder %s\n\n", version.Load().Version)
		fmt.Fprintln(os.Stderr, "usage: bbbrecorder [flags] <playback-url>")
		flag.PrintDefaults()
		os.Exit(-1)
	}
	url := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := orchestrator.Run(ctx, url, cfg)
	if err != nil {
		log.Printf("bbbrecorder: %v", err)
		os.Exit(exitCode(err))
	}

	if result.BackedUp {
		fmt.Printf("backup complete: %s\n", result.OutputPath)
		return
	}
	fmt.Printf("done: %s\n", result.OutputPath)
}

// exitCode is negative for setup failures, positive for missing essential
// data; 0 only on success, which the caller handles before reaching here.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return -2
	}
	if errors.Is(err, fetcher.ErrEssentialMissing) {
		return 2
	}
	if errors.Is(err, manifest.ErrEssentialMissing) {
		return 3
	}
	return -1
}
