package cutlist

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
	"github.com/bbbrecorder/bbbrecorder/internal/timeline"
	"github.com/stretchr/testify/require"
)

func capturePath(ts float64) string {
	return fmt.Sprintf("frames/%.1f.png", ts)
}

// Single slide: exactly one file record; the terminal hide frame at
// duration is never emitted.
func TestSlideshowSingleSlide(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 10.0},
		Slides:   []manifest.SlideImage{{ElementID: "image1", TsIn: 0, TsOut: 10}},
		Drawings: map[string][]manifest.Drawing{},
	}
	tl := timeline.Compile(p)
	out := Slideshow(tl, capturePath)
	require.Equal(t, "file 'frames/0.0.png'\nduration 10.0\n", out)
}

// Deskshare interleaving: three slices.
func TestPresentationInterleaving(t *testing.T) {
	events := []manifest.DeskshareEvent{{Start: 10, Stop: 20}}
	out := Presentation(30, "slideshow.mp4", "deskshare.mp4", events)

	require.Contains(t, out, "inpoint 0.0\noutpoint 10.0")
	require.Contains(t, out, "inpoint 10.0\noutpoint 20.0")
	require.Contains(t, out, "inpoint 20.0\noutpoint 30.0")
}

func TestPresentationEmptyWhenNoDeskshare(t *testing.T) {
	require.Equal(t, "", Presentation(30, "a.mp4", "b.mp4", nil))
}

// Cut-list law: sum of slideshow segment durations equals duration (within
// 0.1s rounding tolerance).
func TestSlideshowDurationsSumToTotal(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 12.3},
		Slides: []manifest.SlideImage{
			{ElementID: "a", TsIn: 0, TsOut: 4},
			{ElementID: "b", TsIn: 4, TsOut: 12.3},
		},
		Drawings: map[string][]manifest.Drawing{},
	}
	tl := timeline.Compile(p)
	out := Slideshow(tl, capturePath)
	sum := 0.0
	for _, line := range strings.Split(out, "\n") {
		if d, ok := strings.CutPrefix(line, "duration "); ok {
			v, err := strconv.ParseFloat(d, 64)
			require.NoError(t, err)
			sum += v
		}
	}
	require.InDelta(t, 12.3, sum, 0.1)
}
