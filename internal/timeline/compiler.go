// Package timeline converts the manifest package's typed records into a
// time-ordered, sparse list of per-frame state changes and the partition
// boundaries the render pool dispatches work against.
package timeline

import (
	"sort"

	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
)

// msPerSec keys the internal frame map in milliseconds rather than
// float64 seconds: an integer-keyed map avoids float-equality pitfalls
// when two events land at "the same" timestamp after independent float
// arithmetic.
const msPerSec = 1000.0

type bucket struct {
	ts         float64
	showImage  []Action
	hideImage  []Action
	showDraw   []Action
	hideDraw   []Action
	viewBox    []Action
	cursor     []Action
}

func (b *bucket) actions() []Action {
	out := make([]Action, 0, len(b.showImage)+len(b.hideImage)+len(b.showDraw)+len(b.hideDraw)+len(b.viewBox)+len(b.cursor))
	out = append(out, b.showImage...)
	out = append(out, b.hideImage...)
	out = append(out, b.showDraw...)
	out = append(out, b.hideDraw...)
	out = append(out, b.viewBox...)
	out = append(out, b.cursor...)
	return out
}

// Timeline is the Compiler's output: the sorted frame list, the
// descending-by-time zoom-only index, and the render partitions.
type Timeline struct {
	Frames     []*Frame
	OnlyZooms  []*Frame
	Partitions []Partition
	Duration   float64
}

func key(ts float64) int64 {
	return int64(ts*msPerSec + 0.5)
}

// Compile builds a Timeline from parsed manifest records.
func Compile(p *manifest.Parsed) *Timeline {
	duration := p.Metadata.DurationSec
	buckets := make(map[int64]*bucket)

	get := func(ts float64) *bucket {
		k := key(ts)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{ts: ts}
			buckets[k] = b
		}
		return b
	}

	for _, s := range p.Slides {
		if s.TsIn >= duration {
			continue
		}
		out := s.TsOut
		if out > duration {
			out = duration
		}
		get(s.TsIn).showImage = append(get(s.TsIn).showImage, Action{
			Kind: ShowImage, ElementID: s.ElementID, NumericID: s.NumericID, Width: s.Width, Height: s.Height,
		})
		get(out).hideImage = append(get(out).hideImage, Action{
			Kind: HideImage, ElementID: s.ElementID, NumericID: s.NumericID,
		})
	}

	for _, draws := range p.Drawings {
		for _, d := range draws {
			if d.TsIn >= duration {
				continue
			}
			get(d.TsIn).showDraw = append(get(d.TsIn).showDraw, Action{
				Kind: ShowDrawing, ElementID: d.ElementID, ShapeID: d.ShapeID,
			})
			if d.TsOut >= 0 {
				out := d.TsOut
				if out > duration {
					out = duration
				}
				get(out).hideDraw = append(get(out).hideDraw, Action{
					Kind: HideDrawing, ElementID: d.ElementID, ShapeID: d.ShapeID,
				})
			}
		}
	}

	for _, z := range p.PanZooms {
		get(z.TsIn).viewBox = append(get(z.TsIn).viewBox, Action{
			Kind: SetViewBox, X: z.X, Y: z.Y, W: z.W, H: z.H, Raw: z.Raw,
		})
	}

	for _, c := range p.Cursors {
		get(c.TsIn).cursor = append(get(c.TsIn).cursor, Action{
			Kind: MoveCursor, FX: c.FX, FY: c.FY,
		})
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	frames := make([]*Frame, 0, len(keys))
	var zoomFrames []*Frame
	for _, k := range keys {
		b := buckets[k]
		f := &Frame{Timestamp: b.ts, Actions: b.actions()}
		frames = append(frames, f)
		if len(b.viewBox) > 0 {
			zoomFrames = append(zoomFrames, &Frame{Timestamp: b.ts, Actions: append([]Action{}, b.viewBox...)})
		}
	}

	// OnlyZooms sorted descending so a worker can linear-scan for the
	// first entry at or before its partition start.
	sort.Slice(zoomFrames, func(i, j int) bool { return zoomFrames[i].Timestamp > zoomFrames[j].Timestamp })

	return &Timeline{
		Frames:     frames,
		OnlyZooms:  zoomFrames,
		Partitions: computePartitions(p, duration),
		Duration:   duration,
	}
}

// ViewBoxAt returns the view box in effect at t (the first OnlyZooms
// entry with timestamp <= t), or ok=false if no pan/zoom precedes t.
func (tl *Timeline) ViewBoxAt(t float64) (Action, bool) {
	for _, f := range tl.OnlyZooms {
		if f.Timestamp <= t {
			return f.Actions[0], true
		}
	}
	return Action{}, false
}

// computePartitions scans slides in temporal order, opening a partition at
// the first slide's TsIn and closing it at a slide's TsOut when either the
// slide is last or the slide carries any annotations — annotated slides
// accumulate DOM state a partition boundary must replay from scratch, but
// runs of unannotated slides can share one partition.
func computePartitions(p *manifest.Parsed, duration float64) []Partition {
	slides := append([]manifest.SlideImage(nil), p.Slides...)
	sort.Slice(slides, func(i, j int) bool { return slides[i].TsIn < slides[j].TsIn })

	var partitions []Partition
	var open bool
	var start float64

	for i, s := range slides {
		if !open {
			start = s.TsIn
			open = true
		}
		last := i == len(slides)-1
		annotated := len(p.Drawings[s.ElementID]) > 0
		if last || annotated {
			end := s.TsOut
			if end > duration {
				end = duration
			}
			partitions = append(partitions, Partition{Start: start, End: end})
			open = false
		}
	}

	return partitions
}
