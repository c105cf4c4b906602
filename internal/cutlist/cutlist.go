// Package cutlist emits the transcoder's concat descriptor files: the
// always-present slideshow manifest, and the presentation manifest that
// interleaves the slideshow with screen-share intervals when any exist.
package cutlist

import (
	"fmt"
	"os"
	"strings"

	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
	"github.com/bbbrecorder/bbbrecorder/internal/timeline"
)

// Slideshow builds the always-present manifest: one "file"/"duration"
// record per adjacent pair of frame timestamps, durations rounded to
// 0.1s. The terminal frame marks the end of the last interval and is
// never emitted itself — a timeline with frames at 0 and at duration
// yields exactly one record.
func Slideshow(tl *timeline.Timeline, captureRelPath func(ts float64) string) string {
	var b strings.Builder
	if len(tl.Frames) == 1 {
		b.WriteString("file '")
		b.WriteString(captureRelPath(tl.Frames[0].Timestamp))
		b.WriteString("'\n")
		return b.String()
	}
	for i := 0; i+1 < len(tl.Frames); i++ {
		b.WriteString("file '")
		b.WriteString(captureRelPath(tl.Frames[i].Timestamp))
		b.WriteString("'\n")
		d := round1(tl.Frames[i+1].Timestamp - tl.Frames[i].Timestamp)
		b.WriteString(fmt.Sprintf("duration %.1f\n", d))
	}
	return b.String()
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// slideshowSlice is one inpoint/outpoint-bounded reference into the
// slideshow file, used by Presentation to splice around deskshare
// segments without physically cutting the slideshow.
type slideshowSlice struct {
	in, out float64
}

// Presentation builds the manifest interleaving the slideshow with
// deskshare intervals, when at least one deskshare event exists. Slices
// into the slideshow use the transcoder's inpoint/outpoint directives
// rather than physical cuts.
func Presentation(duration float64, slideshowFile string, deskshareFile string, events []manifest.DeskshareEvent) string {
	if len(events) == 0 {
		return ""
	}

	var b strings.Builder
	writeSlideshowSlice := func(s slideshowSlice) {
		if s.out <= s.in {
			return
		}
		b.WriteString("file '")
		b.WriteString(slideshowFile)
		b.WriteString("'\n")
		b.WriteString(fmt.Sprintf("inpoint %.1f\n", round1(s.in)))
		b.WriteString(fmt.Sprintf("outpoint %.1f\n", round1(s.out)))
	}
	writeDeskshareSlice := func(e manifest.DeskshareEvent) {
		b.WriteString("file '")
		b.WriteString(deskshareFile)
		b.WriteString("'\n")
		b.WriteString(fmt.Sprintf("inpoint %.1f\n", round1(e.Start)))
		b.WriteString(fmt.Sprintf("outpoint %.1f\n", round1(e.Stop)))
	}

	prevStop := 0.0
	for i, e := range events {
		if i == 0 {
			if e.Start > 0 {
				writeSlideshowSlice(slideshowSlice{in: 0, out: e.Start})
			}
		} else {
			writeSlideshowSlice(slideshowSlice{in: prevStop, out: e.Start})
		}
		writeDeskshareSlice(e)
		prevStop = e.Stop
	}
	if last := events[len(events)-1]; last.Stop < duration {
		writeSlideshowSlice(slideshowSlice{in: last.Stop, out: duration})
	}

	return b.String()
}

// WriteSlideshow and WritePresentation persist the manifests to disk at
// their canonical working-directory locations (slideshow.txt,
// deskshare.txt).
func WriteSlideshow(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func WritePresentation(path, content string) error {
	if content == "" {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
