// Package renderpool is the bounded pool of headless-browser workers that
// replay the compiled timeline against the scene server and capture PNGs.
// Each worker owns one browser process for the lifetime of one partition,
// then tears it down.
package renderpool

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/bbbrecorder/bbbrecorder/internal/timeline"
)

// Counters are the advisory, racily-updated progress counts the status
// reporter reads once a second.
type Counters struct {
	FramesDone      int64
	FramesTotal     int64
	PartitionsDone  int64
	PartitionsTotal int64
}

// Pool renders every partition of a Timeline against a running scene
// server, at most Size partitions concurrently.
type Pool struct {
	SceneURL string
	Headless bool
	Size     int
	Width    int
	Height   int

	// BrowserPath, when set, pins the launcher to a specific Chromium/Chrome
	// binary instead of letting go-rod download or locate one itself.
	BrowserPath string
}

// Run renders all frames in tl.Partitions into framesDir, skipping
// partitions whose target PNGs all already exist. On any worker error the
// whole run aborts — no partial partition is considered successful.
func (p *Pool) Run(tl *timeline.Timeline, framesDir string, counters *Counters) error {
	atomic.StoreInt64(&counters.PartitionsTotal, int64(len(tl.Partitions)))

	// The terminal hide-everything frame at duration falls outside every
	// half-open partition and is never rendered, so the total counts only
	// frames a partition actually covers.
	var framesTotal int64
	for _, part := range tl.Partitions {
		framesTotal += int64(len(framesInPartition(tl, part)))
	}
	atomic.StoreInt64(&counters.FramesTotal, framesTotal)

	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return fmt.Errorf("renderpool: mkdir frames dir: %w", err)
	}

	partitions := make(chan timeline.Partition, len(tl.Partitions))
	for _, part := range tl.Partitions {
		partitions <- part
	}
	close(partitions)

	size := p.Size
	if size <= 0 {
		size = 10
	}

	var wg sync.WaitGroup
	var failed atomic.Bool
	errCh := make(chan error, size)

	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for part := range partitions {
				if failed.Load() {
					return
				}
				if err := p.renderPartition(part, tl, framesDir, counters); err != nil {
					failed.Store(true)
					errCh <- err
					return
				}
				atomic.AddInt64(&counters.PartitionsDone, 1)
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func framesInPartition(tl *timeline.Timeline, part timeline.Partition) []*timeline.Frame {
	var out []*timeline.Frame
	for _, f := range tl.Frames {
		if f.Timestamp >= part.Start && f.Timestamp < part.End {
			out = append(out, f)
		}
	}
	return out
}

// allFramesExist reports whether every frame's capture file is already on
// disk, the resume check a worker makes before opening a browser at all.
func allFramesExist(framesDir string, frames []*timeline.Frame) bool {
	for _, f := range frames {
		if _, err := os.Stat(filepath.Join(framesDir, timeline.FrameFileName(f.Timestamp))); err != nil {
			return false
		}
	}
	return true
}

func (p *Pool) renderPartition(part timeline.Partition, tl *timeline.Timeline, framesDir string, counters *Counters) error {
	frames := framesInPartition(tl, part)

	if allFramesExist(framesDir, frames) {
		for _, f := range frames {
			f.CapturePath = filepath.Join(framesDir, timeline.FrameFileName(f.Timestamp))
		}
		atomic.AddInt64(&counters.FramesDone, int64(len(frames)))
		return nil
	}

	l := launcher.New().Headless(p.Headless)
	if p.BrowserPath != "" {
		l = l.Bin(p.BrowserPath)
	}
	u := l.MustLaunch()
	defer l.Cleanup() // removes the temp user-data dir once the browser has exited
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("renderpool: connect browser: %w", err)
	}
	defer browser.MustClose()

	page, err := browser.Page(rodTargetURL(p.SceneURL))
	if err != nil {
		return fmt.Errorf("renderpool: open page: %w", err)
	}
	defer page.MustClose()

	w, h := p.Width, p.Height
	if w <= 0 || h <= 0 {
		w, h = 1280, 720
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: w, Height: h, DeviceScaleFactor: 1, Mobile: false,
	}); err != nil {
		return fmt.Errorf("renderpool: set viewport: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("renderpool: wait load: %w", err)
	}
	if _, err := page.Element("#svgfile"); err != nil {
		return fmt.Errorf("renderpool: #svgfile not present: %w", err)
	}

	if _, err := page.Eval(injectJS); err != nil {
		return fmt.Errorf("renderpool: inject dom helpers: %w", err)
	}

	var viewBox timeline.Action
	if vb, ok := tl.ViewBoxAt(part.Start); ok {
		viewBox = vb
		if _, err := page.Eval(setViewBoxJS, vb.X, vb.Y, vb.W, vb.H); err != nil {
			return fmt.Errorf("renderpool: set initial view box: %w", err)
		}
	}

	sessionID := uuid.NewString()
	log.Printf("[render] partition %.1f-%.1f (%s) starting, %d frames", part.Start, part.End, sessionID, len(frames))

	for _, f := range frames {
		for _, a := range f.Actions {
			if err := applyAction(page, a, &viewBox); err != nil {
				return fmt.Errorf("renderpool: apply action at t=%.3f: %w", f.Timestamp, err)
			}
		}

		dest := filepath.Join(framesDir, timeline.FrameFileName(f.Timestamp))
		if _, err := os.Stat(dest); err == nil {
			f.CapturePath = dest
			atomic.AddInt64(&counters.FramesDone, 1)
			continue
		}

		img, err := page.Screenshot(false, nil)
		if err != nil {
			return fmt.Errorf("renderpool: screenshot at t=%.3f: %w", f.Timestamp, err)
		}
		if err := os.WriteFile(dest, img, 0o644); err != nil {
			return fmt.Errorf("renderpool: write %s: %w", dest, err)
		}
		f.CapturePath = dest
		atomic.AddInt64(&counters.FramesDone, 1)
	}

	return nil
}
